package dedup

import (
	"context"
	"sync"
	"time"
)

// Deduplicator пропускает ключ не чаще одного раза за ttl.
// Используется для кулдауна команд/кнопок и для подавления одинаковых системных ошибок.
type Deduplicator struct {
	locks sync.Map
	now   func() time.Time
}

func New() *Deduplicator {
	return &Deduplicator{now: time.Now}
}

// NewWithClock - для тестов.
func NewWithClock(now func() time.Time) *Deduplicator {
	return &Deduplicator{now: now}
}

// TryAcquire возвращает false, если ключ уже захвачен и срок ещё не истёк.
func (d *Deduplicator) TryAcquire(key string, ttl time.Duration) bool {
	now := d.now()
	expiry := now.Add(ttl)

	for {
		val, loaded := d.locks.LoadOrStore(key, expiry)
		if !loaded {
			return true
		}
		current := val.(time.Time)
		if now.Before(current) {
			return false
		}
		// Срок истёк - пробуем занять атомарно, чтобы два конкурента не прошли оба.
		if d.locks.CompareAndSwap(key, current, expiry) {
			return true
		}
	}
}

// Forget снимает захват ключа досрочно.
func (d *Deduplicator) Forget(key string) {
	d.locks.Delete(key)
}

func (d *Deduplicator) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Deduplicator) sweep() {
	now := d.now()
	d.locks.Range(func(key, value interface{}) bool {
		expiry := value.(time.Time)
		if now.After(expiry) {
			d.locks.CompareAndDelete(key, expiry)
		}
		return true
	})
}
