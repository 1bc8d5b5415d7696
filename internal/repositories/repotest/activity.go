package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/aarondl/null/v8"

	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	apperrors "repair-desk/pkg/errors"
)

type ActivityLog struct {
	mu       sync.Mutex
	entries  []entities.ActivityLog
	FailWith error
	// Delay имитирует медленную БД.
	Delay time.Duration
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

func optionalID(id *int64) null.Int64 {
	if id == nil {
		return null.Int64{}
	}
	return null.Int64From(*id)
}

func (r *ActivityLog) Append(ctx context.Context, e dto.ActivityEntryDTO) (int64, error) {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return 0, apperrors.NewStorageError("activity_log.append", ctx.Err())
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return 0, apperrors.NewStorageError("activity_log.append", r.FailWith)
	}
	id := int64(len(r.entries) + 1)
	r.entries = append(r.entries, entities.ActivityLog{
		ID:             id,
		UserID:         e.UserID,
		ActionType:     e.ActionType,
		Description:    e.Description,
		RelatedOrderID: optionalID(e.RelatedOrderID),
		RelatedUserID:  optionalID(e.RelatedUserID),
		CreatedAt:      time.Now(),
	})
	return id, nil
}

func (r *ActivityLog) Query(_ context.Context, f dto.ActivityFilter, limit, offset uint64) ([]entities.ActivityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, apperrors.NewStorageError("activity_log.query", r.FailWith)
	}
	out := make([]entities.ActivityLog, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if f.ActionType != "" && e.ActionType != f.ActionType {
			continue
		}
		if f.OrderID != nil && (!e.RelatedOrderID.Valid || e.RelatedOrderID.Int64 != *f.OrderID) {
			continue
		}
		if f.RelatedUserID != nil && (!e.RelatedUserID.Valid || e.RelatedUserID.Int64 != *f.RelatedUserID) {
			continue
		}
		out = append(out, e)
	}
	return page(out, limit, offset), nil
}

// Entries - все записи в порядке добавления.
func (r *ActivityLog) Entries() []entities.ActivityLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.ActivityLog(nil), r.entries...)
}
