package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"comment-moderator/config"
	"comment-moderator/models"
)

const (
	pageKeyFormat    = "page:%s:config"
	rulesKeyFormat   = "page:%s:rules"
	commentKeyFormat = "comment:%s:seen"
)

// Store is the slice of the database the cache reads through to.
type Store interface {
	GetFanPage(ctx context.Context, pageID string) (*models.FanPage, error)
	GetFanPageToken(ctx context.Context, pageID string) (string, error)
	GetReplyRules(ctx context.Context, pageID string) ([]models.ReplyRule, error)
}

// Connect returns a client for cfg, or nil when Redis is not configured or
// unreachable. Callers treat nil as "cache disabled".
func Connect(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if !cfg.Enabled() {
		logger.Info("redis not configured, cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Warn("redis connection failed, cache disabled", zap.String("addr", cfg.Addr), zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("✅ redis connected", zap.String("addr", cfg.Addr))
	return client
}

// RuleCache is a read-through cache of page configuration and reply rules.
// With a nil client every read goes straight to the store. Redis failures
// are logged and fall back to the store; they never fail a lookup.
// Access tokens are never written to Redis: a cached page gets its token
// from the store on every read.
type RuleCache struct {
	client *redis.Client
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

func NewRuleCache(client *redis.Client, store Store, ttl time.Duration, logger *zap.Logger) *RuleCache {
	return &RuleCache{client: client, store: store, ttl: ttl, logger: logger}
}

func (c *RuleCache) GetFanPage(ctx context.Context, pageID string) (*models.FanPage, error) {
	if c.client == nil {
		return c.store.GetFanPage(ctx, pageID)
	}

	key := fmt.Sprintf(pageKeyFormat, pageID)
	var page models.FanPage
	if c.get(ctx, key, &page) {
		token, err := c.store.GetFanPageToken(ctx, pageID)
		if err != nil {
			return nil, err
		}
		page.AccessToken = token
		return &page, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		p, err := c.store.GetFanPage(ctx, pageID)
		if err != nil {
			return nil, err
		}
		entry := *p
		entry.AccessToken = ""
		c.set(ctx, key, entry)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	// Shared between singleflight callers.
	page = *v.(*models.FanPage)
	return &page, nil
}

func (c *RuleCache) GetReplyRules(ctx context.Context, pageID string) ([]models.ReplyRule, error) {
	if c.client == nil {
		return c.store.GetReplyRules(ctx, pageID)
	}

	key := fmt.Sprintf(rulesKeyFormat, pageID)
	var rules []models.ReplyRule
	if c.get(ctx, key, &rules) {
		return rules, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		r, err := c.store.GetReplyRules(ctx, pageID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.ReplyRule), nil
}

// Invalidate drops everything cached for a page. Called after every admin
// mutation touching the page or its rules.
func (c *RuleCache) Invalidate(ctx context.Context, pageID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx,
		fmt.Sprintf(pageKeyFormat, pageID),
		fmt.Sprintf(rulesKeyFormat, pageID),
	).Err()
}

func (c *RuleCache) get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	c.logger.Debug("cache hit", zap.String("key", key))
	return true
}

func (c *RuleCache) set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Deduper remembers comment ids that have already been processed so a
// redelivered webhook does not reply twice.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// Claim reports whether commentID is seen for the first time. Without Redis,
// or when Redis fails, every comment is claimable and the error (if any) is
// returned for logging.
func (d *Deduper) Claim(ctx context.Context, commentID string) (bool, error) {
	if d == nil || d.client == nil {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, fmt.Sprintf(commentKeyFormat, commentID), 1, d.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("dedup claim %s: %w", commentID, err)
	}
	return ok, nil
}
