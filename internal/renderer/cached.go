package renderer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/cesargomez89/etude/internal/logger"
)

const cacheKeyPrefix = "render:"

// Cache stores rendered output. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// CachedClient serves repeated renders of the same IR from a cache and
// collapses concurrent identical requests into one call.
type CachedClient struct {
	renderer Renderer
	cache    Cache
	group    singleflight.Group
	logger   *logger.Logger
	ttl      time.Duration
}

func NewCachedClient(r Renderer, cache Cache, ttl time.Duration, log *logger.Logger) *CachedClient {
	return &CachedClient{
		renderer: r,
		cache:    cache,
		ttl:      ttl,
		logger:   log.WithComponent("render-cache"),
	}
}

// CacheKey hashes the compacted IR with the sorted format list.
func CacheKey(ir []byte, formats []string) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, ir); err != nil {
		compact.Reset()
		compact.Write(ir)
	}
	sorted := append([]string(nil), formats...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write(compact.Bytes())
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedClient) Render(ctx context.Context, jobID string, ir []byte, formats []string) (*Output, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	key := CacheKey(ir, formats)

	data, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Render cache read failed", "error", err)
	} else if data != nil {
		var cached Output
		if unmarshalErr := json.Unmarshal(data, &cached); unmarshalErr == nil {
			c.logger.Debug("Render cache hit", "job_id", jobID)
			return &cached, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		out, err := c.renderer.Render(ctx, jobID, ir, formats)
		if err != nil {
			return nil, err
		}
		if data, marshalErr := json.Marshal(out); marshalErr == nil {
			if setErr := c.cache.Set(ctx, key, data, c.ttl); setErr != nil {
				c.logger.Warn("Render cache write failed", "error", setErr)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Output), nil
}

// RedisCache keeps rendered output in Redis with per-key expiry.
type RedisCache struct {
	rdb goredis.UniversalClient
}

func NewRedisCache(rdb goredis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return data, err
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

type healthChecker interface {
	Health(ctx context.Context, attempts int, wait time.Duration) error
}

// Health forwards to the wrapped renderer when it can be probed.
func (c *CachedClient) Health(ctx context.Context, attempts int, wait time.Duration) error {
	if hc, ok := c.renderer.(healthChecker); ok {
		return hc.Health(ctx, attempts, wait)
	}
	return nil
}
