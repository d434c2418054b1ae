package data

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YuminosukeSato/vbtune/pkg/log"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// Cache stores fetched bodies by key. Get reports a miss with ok=false and
// a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (body []byte, ok bool, err error)
	Put(ctx context.Context, key string, body []byte) error
}

// CacheKey derives a cache key from a URL.
func CacheKey(location string) string {
	sum := sha256.Sum256([]byte(location))
	return hex.EncodeToString(sum[:])
}

// FileCache keeps one file per key in a directory. Entries older than ttl
// are misses; a zero ttl never expires.
type FileCache struct {
	dir string
	ttl time.Duration
}

// NewFileCache creates a FileCache rooted at dir. The directory is created
// on the first Put.
func NewFileCache(dir string, ttl time.Duration) *FileCache {
	return &FileCache{dir: dir, ttl: ttl}
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".csv")
}

// Get implements Cache.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	p := c.path(key)
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, vberrors.Wrapf(err, "stat cache entry %s", p)
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return nil, false, nil
	}
	body, err := os.ReadFile(p)
	if err != nil {
		return nil, false, vberrors.Wrapf(err, "read cache entry %s", p)
	}
	return body, true, nil
}

// Put implements Cache. The entry is written to a temporary file and renamed
// so a concurrent Get never sees a partial body.
func (c *FileCache) Put(_ context.Context, key string, body []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return vberrors.Wrapf(err, "create cache dir %s", c.dir)
	}
	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return vberrors.Wrap(err, "create cache entry")
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return vberrors.Wrap(err, "write cache entry")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return vberrors.Wrap(err, "close cache entry")
	}
	return vberrors.Wrap(os.Rename(tmp.Name(), c.path(key)), "commit cache entry")
}

// RedisCache stores bodies as Redis strings with a TTL.
type RedisCache struct {
	client    redis.Cmdable
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, keyPrefix: "vbtune:data:"}
}

// DialRedis connects to addr and checks the connection with PING.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, vberrors.Wrapf(err, "connect to redis at %s", addr)
	}
	return client, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, vberrors.Wrap(err, "redis get")
	}
	return body, true, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key string, body []byte) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, body, c.ttl).Err(); err != nil {
		return vberrors.Wrap(err, "redis set")
	}
	return nil
}

// CachedFetcher consults a Cache before its Source and stores successful
// bodies. Cache errors are logged and otherwise ignored.
type CachedFetcher struct {
	source Source
	cache  Cache
	logger log.Logger
}

// NewCachedFetcher wraps source with cache.
func NewCachedFetcher(source Source, cache Cache) *CachedFetcher {
	return &CachedFetcher{
		source: source,
		cache:  cache,
		logger: log.GetLoggerWithName("data"),
	}
}

// Fetch implements Source.
func (c *CachedFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	key := CacheKey(location)

	body, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("cache read failed", log.SourceKey, location, log.ErrAttrKey, err)
	case ok:
		c.logger.Debug("cache hit", log.SourceKey, location, log.CacheKey, "hit")
		return body, nil
	default:
		c.logger.Debug("cache miss", log.SourceKey, location, log.CacheKey, "miss")
	}

	body, err = c.source.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, body); err != nil {
		c.logger.Warn("cache write failed", log.SourceKey, location, log.ErrAttrKey, err)
	}
	return body, nil
}

// Load fetches location through src and parses it.
func Load(ctx context.Context, src Source, location string) ([]Match, error) {
	body, err := src.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	matches, err := ParseMatches(bytes.NewReader(body))
	if err != nil {
		return nil, vberrors.Wrapf(err, "parse %s", location)
	}
	log.GetLoggerWithName("data").Info("matches loaded",
		log.SourceKey, location,
		log.SamplesKey, len(matches),
		"bytes", len(body),
	)
	return matches, nil
}
