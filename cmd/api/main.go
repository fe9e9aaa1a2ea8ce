package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/cloudinary"
	"qrattend/internal/config"
	"qrattend/internal/directory"
	"qrattend/internal/firestore"
	"qrattend/internal/httpapi"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/live"
	"qrattend/internal/queue"
	"qrattend/internal/roster"
	"qrattend/internal/store"
)

// backend is what both the SQL and the Firestore repositories provide.
type backend interface {
	attendance.Repository
	roster.Profiles
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]httpapi.HealthCheck{}

	var (
		repo     backend
		accounts auth.AccountStore
		app      *firebase.App
		notifier live.Notifier
	)
	switch cfg.StoreBackend {
	case "postgres", "sqlite":
		var db *store.DB
		var err error
		if cfg.StoreBackend == "sqlite" {
			db, err = store.NewSQLite(cfg.SQLitePath)
		} else {
			db, err = store.NewDB(cfg.DatabaseURL)
		}
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
		sqlRepo := store.NewRepository(db)
		repo, accounts = sqlRepo, sqlRepo
		health["db"] = db.Healthy
	case "firestore":
		var err error
		app, err = firestore.NewApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredsFile)
		if err != nil {
			return err
		}
		fsRepo, err := firestore.New(ctx, app)
		if err != nil {
			return err
		}
		defer fsRepo.Close()
		repo = fsRepo
		notifier = firestore.NewWatcher(fsRepo)
		health["firestore"] = fsRepo.Healthy
	}

	var ids auth.Provider
	switch cfg.IdentityProvider {
	case "local":
		ids = auth.NewLocalProvider(accounts, 0)
	case "firebase":
		if app == nil {
			var err error
			if app, err = firestore.NewApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredsFile); err != nil {
				return err
			}
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return err
		}
		ids = auth.NewFirebaseProvider(client)
	}
	if created, err := auth.EnsureAdmin(ctx, ids, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Printf("admin bootstrap failed: %v", err)
	} else if created {
		log.Printf("created admin account %s", cfg.AdminEmail)
	}

	prov := roster.NewProvisioner(ids, repo)

	var (
		jobs     queue.Queue
		registry auth.RefreshRegistry
	)
	switch cfg.BrokerBackend {
	case "memory":
		mem := queue.NewInMemory(256)
		jobs = mem
		registry = auth.NewMemoryRegistry()
		if notifier == nil {
			notifier = live.NewMemoryNotifier()
		}
		// The in-memory queue only reaches consumers in this process.
		go func() {
			if err := roster.NewWorker(prov).Run(ctx, mem); err != nil {
				log.Printf("roster worker stopped: %v", err)
			}
		}()
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			log.Printf("warning: %v", err)
		}
		jobs = queue.NewRedisQueue(rdb.Client, "")
		registry = auth.NewRedisRegistry(rdb.Client, "")
		if notifier == nil {
			notifier = live.NewRedisNotifier(rdb.Client, "")
		}
		health["redis"] = rdb.Healthy
	}

	svc := attendance.NewService(repo, cfg.HistoryLimit).WithPublisher(notifier)
	if cfg.CloudinaryEnabled() {
		svc.WithUploader(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder))
		log.Println("cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("cloudinary not configured, QR images are served from /v1/sessions/:id/qr.png only")
	}

	hub := live.NewHub(repo)
	go func() {
		if err := hub.Run(ctx, notifier); err != nil {
			log.Printf("live updates stopped: %v", err)
		}
	}()

	h := &httpapi.Handler{
		Sessions: svc,
		Tokens: &auth.Tokens{
			Issuer:     cfg.JWTIssuer,
			Key:        cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
			Registry:   registry,
		},
		Identity:  ids,
		Profiles:  repo,
		Roster:    prov,
		Directory: directory.NewFile(cfg.DirectoryFile),
		Jobs:      jobs,
		Live:      live.NewStreamer(hub, svc.Partition, cfg.LiveTick, cfg.CORSOrigins),
		Health:    health,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("starting server on :%s (store=%s identity=%s broker=%s)",
			cfg.HTTPPort, cfg.StoreBackend, cfg.IdentityProvider, cfg.BrokerBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}
