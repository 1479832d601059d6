package criteria

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medmatch/trial-matcher/internal/trialindex"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultKeyPrefix namespaces per-trial criteria entries.
	DefaultKeyPrefix = "trial_criteria"

	// DefaultTTL bounds how long a cached criteria list stays fresh.
	DefaultTTL = 24 * time.Hour
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache stores parsed criteria lists in Redis keyed by trial ID. Every
// failure is reported as a miss; the cache never blocks a run.
type Cache struct {
	client    redisClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

func NewCache(addr, keyPrefix string, ttl time.Duration, log *zap.Logger) *Cache {
	if keyPrefix = strings.TrimSpace(keyPrefix); keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    log.With(zap.String("component", "criteria-cache")),
	}
}

func (c *Cache) key(nctID string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, nctID)
}

// Get returns the cached criteria for a trial, or (nil, false) on a miss.
func (c *Cache) Get(ctx context.Context, nctID string) ([]trialindex.Criterion, bool) {
	payload, err := c.client.Get(ctx, c.key(nctID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("criteria cache read failed",
				zap.String("nct_id", nctID),
				zap.Error(err),
			)
		}
		return nil, false
	}

	var criteria []trialindex.Criterion
	if err := json.Unmarshal([]byte(payload), &criteria); err != nil {
		c.logger.Debug("discarding unreadable criteria cache entry",
			zap.String("nct_id", nctID),
			zap.Error(err),
		)
		return nil, false
	}

	return criteria, true
}

// Put writes a criteria list back to the cache. Write failures are logged
// and swallowed.
func (c *Cache) Put(ctx context.Context, nctID string, criteria []trialindex.Criterion) {
	payload, err := json.Marshal(criteria)
	if err != nil {
		c.logger.Debug("criteria cache encode failed",
			zap.String("nct_id", nctID),
			zap.Error(err),
		)
		return
	}

	if err := c.client.Set(ctx, c.key(nctID), payload, c.ttl).Err(); err != nil {
		c.logger.Debug("criteria cache write failed",
			zap.String("nct_id", nctID),
			zap.Error(err),
		)
	}
}
