package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shopbot/internal/cache"
	"shopbot/internal/checkout"
)

const (
	contextKeyPrefix = "shopbot:ctx:"
	lockKeyPrefix    = "shopbot:lock:"
)

// Contexts persists conversation contexts as JSON in Redis. Entries carry a
// TTL slightly past the context's own expiry so Redis garbage-collects
// conversations that never come back.
type Contexts struct {
	redis  *cache.Redis
	ttl    time.Duration
	logger *slog.Logger
}

// NewContexts returns a Redis-backed checkout.ContextStore.
func NewContexts(r *cache.Redis, ttl time.Duration, logger *slog.Logger) *Contexts {
	return &Contexts{
		redis:  r,
		ttl:    ttl,
		logger: logger.With("component", "session"),
	}
}

func contextKey(businessID, customerID string) string {
	return contextKeyPrefix + businessID + ":" + customerID
}

// Get loads the conversation context, or nil when none exists.
func (c *Contexts) Get(ctx context.Context, businessID, customerID string) (*checkout.ConversationContext, error) {
	var cc checkout.ConversationContext
	found, err := c.redis.GetJSON(ctx, contextKey(businessID, customerID), &cc)
	if err != nil {
		return nil, fmt.Errorf("get conversation context: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &cc, nil
}

// Set stores the conversation context. The Redis TTL outlives the logical
// expiry so an expired context is still read back and reset in place rather
// than silently dropped.
func (c *Contexts) Set(ctx context.Context, cc *checkout.ConversationContext) error {
	ttl := c.ttl * 2
	if err := c.redis.SetJSON(ctx, contextKey(cc.BusinessID, cc.CustomerID), cc, ttl); err != nil {
		return fmt.Errorf("set conversation context: %w", err)
	}
	return nil
}

// releaseScript deletes the lock only when it still holds our token, so a
// release that arrives after the lock expired cannot free someone else's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locks serializes checkout transitions per conversation with a Redis
// SET NX lock. The lock TTL bounds how long a crashed worker can block a
// conversation.
type Locks struct {
	redis  *cache.Redis
	ttl    time.Duration
	logger *slog.Logger
}

// NewLocks returns a Redis-backed checkout.ConversationLocker.
func NewLocks(r *cache.Redis, ttl time.Duration, logger *slog.Logger) *Locks {
	return &Locks{
		redis:  r,
		ttl:    ttl,
		logger: logger.With("component", "session"),
	}
}

// Acquire takes the conversation lock, returning ErrConversationBusy when
// another transition holds it.
func (l *Locks) Acquire(ctx context.Context, businessID, customerID string) (func(), error) {
	key := lockKeyPrefix + businessID + ":" + customerID
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire conversation lock: %w", err)
	}
	if !ok {
		return nil, checkout.ErrConversationBusy
	}

	release := func() {
		// Release uses a background context so a cancelled request still
		// frees the lock.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.redis.RunScript(rctx, releaseScript, []string{key}, token); err != nil {
			l.logger.Warn("could not release conversation lock", "key", key, "error", err)
		}
	}
	return release, nil
}
