// Package live pushes session boards to connected clients. A Hub keeps one
// subscription per client; every change signal re-queries each subscription
// and hands it a full snapshot.
package live

import (
	"context"
	"log"
	"sync"

	"qrattend/internal/metrics"
	"qrattend/internal/model"
)

// Source lists the sessions a scope can see.
type Source interface {
	ListSessions(ctx context.Context, scope model.Scope) ([]model.Session, error)
}

// Hub tracks subscriptions.
type Hub struct {
	src  Source
	mu   sync.Mutex
	subs map[uint64]*subscription
	next uint64
}

type subscription struct {
	scope model.Scope
	fn    func([]model.Session)
	// mu orders deliveries so a slow query cannot overwrite a newer snapshot.
	mu sync.Mutex
}

// NewHub creates a hub reading from src.
func NewHub(src Source) *Hub {
	return &Hub{src: src, subs: map[uint64]*subscription{}}
}

// Subscribe registers fn for scope and delivers the current snapshot before
// returning. fn is never called concurrently with itself. The returned func
// removes the subscription and is safe to call more than once.
func (h *Hub) Subscribe(ctx context.Context, scope model.Scope, fn func([]model.Session)) (func(), error) {
	s := &subscription{scope: scope, fn: fn}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = s
	h.mu.Unlock()
	metrics.LiveSubscribers.Inc()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			metrics.LiveSubscribers.Dec()
		})
	}

	if err := h.deliver(ctx, s); err != nil {
		unsubscribe()
		return nil, err
	}
	return unsubscribe, nil
}

// Refresh re-queries every subscription.
func (h *Hub) Refresh(ctx context.Context) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if err := h.deliver(ctx, s); err != nil {
			log.Printf("live refresh failed: %v", err)
		}
	}
}

// Len is the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run refreshes on every signal from n until ctx is done.
func (h *Hub) Run(ctx context.Context, n Notifier) error {
	return n.Listen(ctx, func() { h.Refresh(ctx) })
}

func (h *Hub) deliver(ctx context.Context, s *subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions, err := h.src.ListSessions(ctx, s.scope)
	if err != nil {
		return err
	}
	s.fn(sessions)
	return nil
}
