package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/model"
)

// ErrRefreshReused means the refresh token was already exchanged, revoked or
// never registered.
var ErrRefreshReused = errors.New("refresh token already used")

// RefreshRegistry remembers outstanding refresh token ids. Consume removes
// an id and reports whether it was present, so each token rotates once.
type RefreshRegistry interface {
	Save(ctx context.Context, id, subject string, exp time.Time) error
	Consume(ctx context.Context, id string) (bool, error)
}

// Tokens issues and rotates token pairs.
type Tokens struct {
	Issuer     string
	Key        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Registry   RefreshRegistry
}

// Issue signs a new pair for id and registers its refresh token.
func (t *Tokens) Issue(ctx context.Context, id model.Identity) (TokenPair, error) {
	pair, err := Issue(id, t.Issuer, t.Key, t.AccessTTL, t.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign tokens: %w", err)
	}
	if err := t.Registry.Save(ctx, pair.refreshID, id.UID, pair.RefreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("register refresh token: %w", err)
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The old token is
// consumed even when signing the new pair fails.
func (t *Tokens) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := Parse(refreshToken, t.Key, t.Issuer)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Kind != kindRefresh || claims.ID == "" {
		return TokenPair{}, ErrWrongKind
	}
	ok, err := t.Registry.Consume(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrRefreshReused
	}
	return t.Issue(ctx, claims.Identity())
}

// Verify validates an access token.
func (t *Tokens) Verify(accessToken string) (Claims, error) {
	return ParseAccess(accessToken, t.Key, t.Issuer)
}

// MemoryRegistry keeps refresh ids in process. Entries past their expiry are
// dropped lazily.
type MemoryRegistry struct {
	mu  sync.Mutex
	ids map[string]time.Time
	now func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{ids: map[string]time.Time{}, now: time.Now}
}

// Save records id until exp.
func (m *MemoryRegistry) Save(_ context.Context, id, _ string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.ids {
		if !e.After(now) {
			delete(m.ids, k)
		}
	}
	m.ids[id] = exp
	return nil
}

// Consume removes id and reports whether it was live.
func (m *MemoryRegistry) Consume(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.ids[id]
	delete(m.ids, id)
	return ok && exp.After(m.now()), nil
}

// RedisRegistry keeps refresh ids as keys with a TTL so every API replica
// sees the same set.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry stores keys under prefix.
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "qrattend:refresh:"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

// Save records id with the token's remaining lifetime.
func (r *RedisRegistry) Save(ctx context.Context, id, subject string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+id, subject, ttl).Err()
}

// Consume deletes id atomically and reports whether it existed.
func (r *RedisRegistry) Consume(ctx context.Context, id string) (bool, error) {
	err := r.client.GetDel(ctx, r.prefix+id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
