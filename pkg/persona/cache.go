package persona

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix  = "voicebot:persona:"
	DefaultCacheTTL = 5 * time.Minute
)

// CachedStore caches Store reads in Redis. Cache failures fall through to
// the wrapped store; writes invalidate the affected keys.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps next with a Redis read cache.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

func activeKey(identity string) string { return cacheKeyPrefix + "active:" + identity }
func defaultKey(id string) string      { return cacheKeyPrefix + "default:" + id }
func userKey(identity, id string) string {
	return cacheKeyPrefix + "user:" + identity + ":" + id
}
func summaryCacheKey(identity, personaID string) string {
	return cacheKeyPrefix + "summary:" + identity + ":" + personaID
}

func (c *CachedStore) ActivePersona(ctx context.Context, identity string) (Assignment, error) {
	var a Assignment
	if c.get(ctx, activeKey(identity), &a) {
		return a, nil
	}
	a, err := c.next.ActivePersona(ctx, identity)
	if err != nil {
		return Assignment{}, err
	}
	c.set(ctx, activeKey(identity), a)
	return a, nil
}

func (c *CachedStore) SetActivePersona(ctx context.Context, identity string, a Assignment) error {
	if err := c.next.SetActivePersona(ctx, identity, a); err != nil {
		return err
	}
	c.del(ctx, activeKey(identity))
	return nil
}

func (c *CachedStore) DefaultPersona(ctx context.Context, id string) (Persona, error) {
	var p Persona
	if c.get(ctx, defaultKey(id), &p) {
		return p, nil
	}
	p, err := c.next.DefaultPersona(ctx, id)
	if err != nil {
		return Persona{}, err
	}
	c.set(ctx, defaultKey(id), p)
	return p, nil
}

func (c *CachedStore) UserPersona(ctx context.Context, identity, id string) (Persona, error) {
	var p Persona
	if c.get(ctx, userKey(identity, id), &p) {
		return p, nil
	}
	p, err := c.next.UserPersona(ctx, identity, id)
	if err != nil {
		return Persona{}, err
	}
	c.set(ctx, userKey(identity, id), p)
	return p, nil
}

func (c *CachedStore) Summary(ctx context.Context, identity, personaID string) (string, error) {
	var text string
	if c.get(ctx, summaryCacheKey(identity, personaID), &text) {
		return text, nil
	}
	text, err := c.next.Summary(ctx, identity, personaID)
	if err != nil {
		return "", err
	}
	c.set(ctx, summaryCacheKey(identity, personaID), text)
	return text, nil
}

func (c *CachedStore) UpsertSummary(ctx context.Context, s Summary) error {
	if err := c.next.UpsertSummary(ctx, s); err != nil {
		return err
	}
	c.del(ctx, summaryCacheKey(s.Identity, s.PersonaID))
	return nil
}

func (c *CachedStore) get(ctx context.Context, key string, out any) bool {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Debug("persona cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		c.del(ctx, key)
		return false
	}
	return true
}

func (c *CachedStore) set(ctx context.Context, key string, v any) {
	val, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Debug("persona cache write failed", "key", key, "error", err)
	}
}

func (c *CachedStore) del(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Debug("persona cache invalidate failed", "key", key, "error", err)
	}
}

var _ Store = (*CachedStore)(nil)
