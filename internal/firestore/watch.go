package firestore

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Watcher turns Firestore snapshot listeners on sessions and every
// attendance subcollection into change signals. Firestore fans writes out
// itself, so Publish does nothing.
type Watcher struct {
	repo *Repository
}

// NewWatcher listens on repo's collections.
func NewWatcher(repo *Repository) *Watcher {
	return &Watcher{repo: repo}
}

// Publish is a no-op; listeners see the write directly.
func (w *Watcher) Publish(context.Context) error { return nil }

// Listen calls fn after every snapshot of either listener until ctx is done.
func (w *Watcher) Listen(ctx context.Context, fn func()) error {
	errc := make(chan error, 2)
	go func() { errc <- w.follow(ctx, "sessions", fn) }()
	go func() { errc <- w.follow(ctx, "attendance", fn) }()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil && first == nil {
			first = err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return first
}

func (w *Watcher) follow(ctx context.Context, name string, fn func()) error {
	q := w.repo.client.Collection(sessionsCol).Query
	if name == "attendance" {
		q = w.repo.client.CollectionGroup(attendanceCol).Query
	}
	snaps := q.Snapshots(ctx)
	defer snaps.Stop()

	for {
		if _, err := snaps.Next(); err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			log.Printf("firestore watch %s stopped: %v", name, err)
			return fmt.Errorf("watch %s: %w", name, err)
		}
		fn()
	}
}
