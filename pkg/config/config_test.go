package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"repair-desk/pkg/constants"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("REDIS_ADDRESS", "")
	t.Setenv("ADMIN_IDS", "")
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "", cfg.Redis.Address)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL[constants.CacheOrders])
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL[constants.CacheUsers])
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL[constants.CacheStats])
	assert.Equal(t, 2*time.Second, cfg.ActivityLog.WriteTimeout)
	assert.Empty(t, cfg.AdminIDs)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ADMIN_IDS", "100, 200,abc,,300")
	t.Setenv("CACHE_TTL_ORDERS", "45s")
	t.Setenv("CACHE_TTL_USERS", "-5s")
	t.Setenv("NOTIFY_RATE_PER_SECOND", "3.5")
	t.Setenv("DB_RUN_MIGRATIONS", "false")

	cfg := FromEnv()

	assert.Equal(t, []int64{100, 200, 300}, cfg.AdminIDs)
	assert.True(t, cfg.IsAdminID(200))
	assert.False(t, cfg.IsAdminID(201))
	assert.Equal(t, 45*time.Second, cfg.Cache.TTL[constants.CacheOrders])
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL[constants.CacheUsers], "неположительный TTL игнорируется")
	assert.Equal(t, 3.5, cfg.Notifications.RatePerSecond)
	assert.False(t, cfg.Postgres.RunMigrations)
}
