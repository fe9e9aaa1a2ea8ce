package live

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"qrattend/internal/model"
	"qrattend/internal/window"
)

const writeWait = 5 * time.Second

// Frame is one message on the live stream.
type Frame = window.Board[model.Session]

// Streamer serves the WebSocket board stream. Each connection re-runs the
// window evaluator over its last snapshot every tick, so countdowns advance
// without any store reads.
type Streamer struct {
	hub       *Hub
	partition func([]model.Session) Frame
	tick      time.Duration
	upgrader  websocket.Upgrader
}

// NewStreamer streams boards built by partition. An empty origins list
// accepts any Origin.
func NewStreamer(hub *Hub, partition func([]model.Session) Frame, tick time.Duration, origins []string) *Streamer {
	if tick <= 0 {
		tick = time.Second
	}
	allowed := map[string]bool{}
	for _, o := range origins {
		allowed[o] = true
	}
	return &Streamer{
		hub:       hub,
		partition: partition,
		tick:      tick,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin] || allowed["*"]
			},
		},
	}
}

// Serve upgrades the request and streams boards for scope until the client
// goes away.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, scope model.Scope) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	// The HTTP server's read timeout would otherwise end idle streams.
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Latest snapshot wins; older undelivered ones are dropped.
	updates := make(chan []model.Session, 1)
	unsubscribe, err := s.hub.Subscribe(ctx, scope, func(list []model.Session) {
		select {
		case <-updates:
		default:
		}
		updates <- list
	})
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"), time.Now().Add(writeWait))
		return err
	}
	defer unsubscribe()

	// Reads only detect the peer closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var sessions []model.Session
	for {
		select {
		case <-ctx.Done():
			return nil
		case sessions = <-updates:
		case <-ticker.C:
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.partition(sessions)); err != nil {
			log.Printf("live client disconnected: %v", err)
			return nil
		}
	}
}
