package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"repair-desk/internal/metrics"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

const (
	fallbackCacheTTL = 30 * time.Second
	versionStripes   = 256
)

// EntityCache - read-through кеш снимков сущностей в JSON с TTL по типу.
// Ошибки бэкенда не пробрасываются: кеш лишь ускоряет чтение, источник истины - БД.
type EntityCache struct {
	backend CacheRepositoryInterface
	ttl     map[constants.CacheType]time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	// versions растут при каждой инвалидации ключа. Ключи делят полосы по хешу,
	// лишний пропуск записи при коллизии безвреден.
	versions [versionStripes]atomic.Uint64
}

func NewEntityCache(backend CacheRepositoryInterface, ttl map[constants.CacheType]time.Duration, logger *zap.Logger, m *metrics.Metrics) *EntityCache {
	return &EntityCache{
		backend: backend,
		ttl:     ttl,
		logger:  logger.Named("cache"),
		metrics: m,
	}
}

func entityKey(cacheType constants.CacheType, key string) string {
	return fmt.Sprintf(constants.CacheKeyEntity, cacheType, key)
}

func (c *EntityCache) TTL(cacheType constants.CacheType) time.Duration {
	if ttl, ok := c.ttl[cacheType]; ok && ttl > 0 {
		return ttl
	}
	return fallbackCacheTTL
}

func (c *EntityCache) version(cacheType constants.CacheType, key string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityKey(cacheType, key)))
	return &c.versions[h.Sum32()%versionStripes]
}

// Version снимается до чтения из БД и передаётся в SetIfUnchanged.
func (c *EntityCache) Version(cacheType constants.CacheType, key string) uint64 {
	return c.version(cacheType, key).Load()
}

// SetIfUnchanged кладёт снимок, только если ключ не инвалидировали после Version.
// Инвалидация между проверкой и записью ловится повторной проверкой.
func (c *EntityCache) SetIfUnchanged(ctx context.Context, cacheType constants.CacheType, key string, version uint64, value interface{}) {
	slot := c.version(cacheType, key)
	if slot.Load() != version {
		c.logger.Debug("Снимок устарел, в кеш не кладём", zap.String("type", string(cacheType)), zap.String("key", key))
		return
	}
	c.Set(ctx, cacheType, key, value)
	if slot.Load() != version {
		_ = c.backend.Del(ctx, entityKey(cacheType, key))
	}
}

// Get заполняет dest и возвращает true при попадании.
func (c *EntityCache) Get(ctx context.Context, cacheType constants.CacheType, key string, dest interface{}) bool {
	raw, err := c.backend.Get(ctx, entityKey(cacheType, key))
	if err != nil {
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			c.logger.Warn("Ошибка чтения кеша", zap.String("type", string(cacheType)), zap.String("key", key), zap.Error(err))
		}
		c.metrics.Cache(string(cacheType), metrics.CacheResultMiss)
		return false
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.logger.Warn("Повреждённая запись кеша, удаляем", zap.String("type", string(cacheType)), zap.String("key", key), zap.Error(err))
		_ = c.backend.Del(ctx, entityKey(cacheType, key))
		c.metrics.Cache(string(cacheType), metrics.CacheResultMiss)
		return false
	}

	c.metrics.Cache(string(cacheType), metrics.CacheResultHit)
	return true
}

func (c *EntityCache) Set(ctx context.Context, cacheType constants.CacheType, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Не удалось сериализовать значение для кеша", zap.String("type", string(cacheType)), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, entityKey(cacheType, key), string(data), c.TTL(cacheType)); err != nil {
		c.logger.Warn("Ошибка записи в кеш", zap.String("type", string(cacheType)), zap.String("key", key), zap.Error(err))
	}
}

// Invalidate удаляет ключи одного типа. Ошибка возвращается вызывающему для логирования.
func (c *EntityCache) Invalidate(ctx context.Context, cacheType constants.CacheType, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		c.version(cacheType, k).Add(1)
		full = append(full, entityKey(cacheType, k))
	}
	if err := c.backend.Del(ctx, full...); err != nil {
		c.logger.Error("Ошибка инвалидации кеша", zap.String("type", string(cacheType)), zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

// Clear сбрасывает все записи перечисленных типов (или всех, если типы не заданы).
func (c *EntityCache) Clear(ctx context.Context, types ...constants.CacheType) error {
	if len(types) == 0 {
		types = constants.AllCacheTypes
	}
	for i := range c.versions {
		c.versions[i].Add(1)
	}
	var firstErr error
	for _, t := range types {
		if err := c.backend.DelPrefix(ctx, fmt.Sprintf(constants.CacheKeyEntity, t, "")); err != nil {
			c.logger.Error("Ошибка очистки кеша", zap.String("type", string(t)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
