package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/firestore"
	"qrattend/internal/queue"
	"qrattend/internal/roster"
	"qrattend/internal/store"
)

// Worker consumes roster import jobs and provisions student accounts.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.BrokerBackend != "redis" {
		log.Fatalf("worker needs BROKER_BACKEND=redis; with %q the api runs roster jobs in-process", cfg.BrokerBackend)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var (
		profiles roster.Profiles
		accounts auth.AccountStore
		ids      auth.Provider
	)
	switch cfg.StoreBackend {
	case "firestore":
		app, err := firestore.NewApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredsFile)
		if err != nil {
			log.Fatalf("firebase init failed: %v", err)
		}
		repo, err := firestore.New(ctx, app)
		if err != nil {
			log.Fatalf("firestore init failed: %v", err)
		}
		defer repo.Close()
		profiles = repo
		client, err := app.Auth(ctx)
		if err != nil {
			log.Fatalf("firebase auth init failed: %v", err)
		}
		ids = auth.NewFirebaseProvider(client)
	default:
		var db *store.DB
		var err error
		if cfg.StoreBackend == "sqlite" {
			db, err = store.NewSQLite(cfg.SQLitePath)
		} else {
			db, err = store.NewDB(cfg.DatabaseURL)
		}
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				log.Fatalf("migrate failed: %v", err)
			}
		}
		repo := store.NewRepository(db)
		profiles, accounts = repo, repo
	}

	if ids == nil {
		if cfg.IdentityProvider == "firebase" {
			app, err := firestore.NewApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredsFile)
			if err != nil {
				log.Fatalf("firebase init failed: %v", err)
			}
			client, err := app.Auth(ctx)
			if err != nil {
				log.Fatalf("firebase auth init failed: %v", err)
			}
			ids = auth.NewFirebaseProvider(client)
		} else {
			ids = auth.NewLocalProvider(accounts, 0)
		}
	}

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		log.Printf("warning: %v", err)
	}

	log.Println("worker started, waiting for roster jobs...")
	w := roster.NewWorker(roster.NewProvisioner(ids, profiles))
	if err := w.Run(ctx, queue.NewRedisQueue(rdb.Client, "")); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
	log.Println("worker stopped")
}
