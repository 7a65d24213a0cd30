package settings

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cacheKey = "settings:all"

// CachedStore - ayarların tamamını Redis hash'inde TTL ile tutar.
// Redis erişilemezse doğrudan alttaki Store'a düşer.
type CachedStore struct {
	next Store
	rdb  *redis.Client
	ttl  time.Duration
	log  zerolog.Logger
}

func NewCachedStore(next Store, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedStore {
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (c *CachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	all, err := c.GetAll(ctx)
	if err != nil {
		return "", false, err
	}
	v, ok := all[key]
	return v, ok, nil
}

func (c *CachedStore) GetAll(ctx context.Context) (map[string]string, error) {
	cached, err := c.rdb.HGetAll(ctx, cacheKey).Result()
	if err == nil && len(cached) > 0 {
		return cached, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("settings cache okunamadı, veritabanına gidiliyor")
	}

	all, err := c.next.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return all, nil
	}

	values := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		values = append(values, k, v)
	}
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, cacheKey)
	pipe.HSet(ctx, cacheKey, values...)
	pipe.Expire(ctx, cacheKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Msg("settings cache yazılamadı")
	}
	return all, nil
}

// Invalidate - admin bir ayarı değiştirdiğinde çağrılır
func (c *CachedStore) Invalidate(ctx context.Context) error {
	return errors.Wrap(c.rdb.Del(ctx, cacheKey).Err(), "settings cache invalidate")
}

// Uncached - önbellek katmanı varsa altındaki Store'u döner. Kredi tutarı
// gibi işlem anında güncel okunması gereken ayarlar için.
func Uncached(s Store) Store {
	if c, ok := s.(*CachedStore); ok {
		return c.next
	}
	return s
}
