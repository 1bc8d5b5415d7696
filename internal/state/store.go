// Package state хранит шаг диалога каждого пользователя с истечением по TTL.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
	"repair-desk/pkg/keylock"
)

const defaultTTL = 30 * time.Minute

type StoreInterface interface {
	Lock(userID int64) (unlock func())
	Get(ctx context.Context, userID int64) (*dto.ConversationState, bool, error)
	Set(ctx context.Context, userID int64, s *dto.ConversationState) error
	Clear(ctx context.Context, userID int64) error
}

// Store - одна запись на пользователя в кеше (Redis или память).
// Чтение-изменение-запись одного пользователя выполняется под Lock.
type Store struct {
	backend repositories.CacheRepositoryInterface
	ttl     time.Duration
	locks   *keylock.KeyedMutex[int64]
	now     func() time.Time
	logger  *zap.Logger
}

func NewStore(backend repositories.CacheRepositoryInterface, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		backend: backend,
		ttl:     ttl,
		locks:   keylock.New[int64](),
		now:     time.Now,
		logger:  logger.Named("state"),
	}
}

func key(userID int64) string {
	return fmt.Sprintf(constants.CacheKeyConversationState, userID)
}

// Lock сериализует обработку одного пользователя. Разные пользователи друг друга не ждут.
func (s *Store) Lock(userID int64) func() {
	return s.locks.Lock(userID)
}

// Get возвращает (nil, false, nil), если состояния нет или оно истекло.
func (s *Store) Get(ctx context.Context, userID int64) (*dto.ConversationState, bool, error) {
	raw, err := s.backend.Get(ctx, key(userID))
	if err != nil {
		if errors.Is(err, apperrors.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, apperrors.NewStorageError("state.get", err)
	}

	var st dto.ConversationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil || st.Step == constants.StepNone {
		s.logger.Warn("Повреждённое состояние диалога, сбрасываем", zap.Int64("user_id", userID), zap.Error(err))
		_ = s.backend.Del(ctx, key(userID))
		return nil, false, nil
	}
	return &st, true, nil
}

func (s *Store) Set(ctx context.Context, userID int64, st *dto.ConversationState) error {
	if st == nil || st.Step == constants.StepNone {
		return s.Clear(ctx, userID)
	}
	st.UpdatedAt = s.now()
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать состояние: %w", err)
	}
	if err := s.backend.Set(ctx, key(userID), string(data), s.ttl); err != nil {
		return apperrors.NewStorageError("state.set", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.backend.Del(ctx, key(userID)); err != nil {
		return apperrors.NewStorageError("state.clear", err)
	}
	return nil
}
