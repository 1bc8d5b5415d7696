package repositories

import (
	"context"
	"time"
)

// CacheRepositoryInterface - хранилище ключ-значение с истечением.
// Get возвращает apperrors.ErrCacheMiss, если ключа нет или он истёк.
type CacheRepositoryInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key ...string) error
	DelPrefix(ctx context.Context, prefix string) error
}
