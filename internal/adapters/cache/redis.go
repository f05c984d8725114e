package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/pkg/logger"
	"github.com/okian/campusfeed/pkg/metrics"
)

// payload is the JSON stored under a viewer's feed key.
type payload struct {
	Generation int64              `json:"gen"`
	Feed       []model.RankedPost `json:"feed"`
}

// RedisCache stores feeds as JSON under <prefix>:feed:<viewer>. InvalidateAll
// bumps a generation counter; entries written under an older generation are
// treated as misses and expire on their own. Invalidate bumps the viewer's
// counter under <prefix>:feed-ver:<viewer> before deleting the entry, so a
// SetIfVersion started earlier cannot bring it back.
type RedisCache struct {
	settings
	client redis.UniversalClient
}

// NewRedisCache wraps client.
func NewRedisCache(client redis.UniversalClient, opts ...Option) *RedisCache {
	return &RedisCache{settings: newSettings(opts), client: client}
}

func (c *RedisCache) feedKey(viewerID string) string {
	return c.prefix + ":feed:" + viewerID
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":feed-gen"
}

func (c *RedisCache) versionKey(viewerID string) string {
	return c.prefix + ":feed-ver:" + viewerID
}

// setIfVersionScript writes ARGV[3] to KEYS[3] only while the generation
// (KEYS[1]) and viewer version (KEYS[2]) still read ARGV[1] and ARGV[2].
// ARGV[4] is the TTL in milliseconds, 0 for none.
const setIfVersionScript = `
local gen = redis.call('GET', KEYS[1]) or '0'
local ver = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] or ver ~= ARGV[2] then
  return 0
end
if tonumber(ARGV[4]) > 0 then
  redis.call('SET', KEYS[3], ARGV[3], 'PX', ARGV[4])
else
  redis.call('SET', KEYS[3], ARGV[3])
end
return 1
`

// Get implements Cache. The generation and the payload are read in one round trip.
func (c *RedisCache) Get(ctx context.Context, viewerID string) ([]model.RankedPost, bool, error) {
	vals, err := c.client.MGet(ctx, c.generationKey(), c.feedKey(viewerID)).Result()
	if err != nil {
		metrics.RecordCacheError()
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrBackend, viewerID, err)
	}
	gen, err := parseCounter(vals[0])
	if err != nil {
		metrics.RecordCacheError()
		return nil, false, err
	}
	raw, ok := vals[1].(string)
	if !ok {
		metrics.RecordCacheMiss()
		return nil, false, nil
	}
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		metrics.RecordCacheError()
		c.logger.Warn(ctx, "dropping undecodable cache entry",
			logger.String("viewer", viewerID), logger.Error(err))
		return nil, false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if p.Generation != gen {
		metrics.RecordCacheMiss()
		return nil, false, nil
	}
	metrics.RecordCacheHit()
	if p.Feed == nil {
		p.Feed = []model.RankedPost{}
	}
	return p.Feed, true, nil
}

// Set implements Cache. The entry is tagged with the current generation.
func (c *RedisCache) Set(ctx context.Context, viewerID string, feed []model.RankedPost) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload{Generation: gen, Feed: feed})
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	if err := c.client.Set(ctx, c.feedKey(viewerID), body, c.ttl).Err(); err != nil {
		metrics.RecordCacheError()
		return fmt.Errorf("%w: set %s: %v", ErrBackend, viewerID, err)
	}
	return nil
}

// Version implements Cache.
func (c *RedisCache) Version(ctx context.Context, viewerID string) (Version, error) {
	vals, err := c.client.MGet(ctx, c.generationKey(), c.versionKey(viewerID)).Result()
	if err != nil {
		metrics.RecordCacheError()
		return Version{}, fmt.Errorf("%w: version %s: %v", ErrBackend, viewerID, err)
	}
	gen, err := parseCounter(vals[0])
	if err != nil {
		metrics.RecordCacheError()
		return Version{}, err
	}
	ver, err := parseCounter(vals[1])
	if err != nil {
		metrics.RecordCacheError()
		return Version{}, err
	}
	return Version{Generation: gen, Viewer: ver}, nil
}

// SetIfVersion implements Cache. The compare and the write run as one
// server-side script.
func (c *RedisCache) SetIfVersion(ctx context.Context, viewerID string, v Version, feed []model.RankedPost) (bool, error) {
	body, err := json.Marshal(payload{Generation: v.Generation, Feed: feed})
	if err != nil {
		return false, fmt.Errorf("encode feed: %w", err)
	}
	keys := []string{c.generationKey(), c.versionKey(viewerID), c.feedKey(viewerID)}
	written, err := c.client.Eval(ctx, setIfVersionScript, keys,
		strconv.FormatInt(v.Generation, 10),
		strconv.FormatInt(v.Viewer, 10),
		string(body),
		strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Int64()
	if err != nil {
		metrics.RecordCacheError()
		return false, fmt.Errorf("%w: set %s: %v", ErrBackend, viewerID, err)
	}
	if written == 0 {
		metrics.RecordCacheStaleWrite()
		return false, nil
	}
	return true, nil
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, viewerID string) error {
	if err := c.client.Incr(ctx, c.versionKey(viewerID)).Err(); err != nil {
		metrics.RecordCacheError()
		return fmt.Errorf("%w: bump version %s: %v", ErrBackend, viewerID, err)
	}
	if err := c.client.Del(ctx, c.feedKey(viewerID)).Err(); err != nil {
		metrics.RecordCacheError()
		return fmt.Errorf("%w: del %s: %v", ErrBackend, viewerID, err)
	}
	metrics.RecordCacheInvalidation(scopeViewer)
	return nil
}

// InvalidateAll implements Cache.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		metrics.RecordCacheError()
		return fmt.Errorf("%w: bump generation: %v", ErrBackend, err)
	}
	metrics.RecordCacheInvalidation(scopeAll)
	return nil
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrBackend, err)
	}
	return nil
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		metrics.RecordCacheError()
		return 0, fmt.Errorf("%w: read generation: %v", ErrBackend, err)
	}
	return gen, nil
}

// parseCounter reads an MGET slot holding an INCR counter. A missing key is 0.
func parseCounter(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %q: %v", ErrDecode, s, err)
	}
	return n, nil
}
