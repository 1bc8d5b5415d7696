package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/internal/metrics"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

const defaultActivityTimeout = 2 * time.Second

type ActivityLogServiceInterface interface {
	Append(ctx context.Context, entry dto.ActivityEntryDTO) (int64, error)
	// Record - Append для рабочих операций: ошибка только логируется.
	Record(ctx context.Context, entry dto.ActivityEntryDTO)
	Query(ctx context.Context, actorID int64, filter dto.ActivityFilter, limit, offset uint64) ([]entities.ActivityLog, error)
}

type ActivityLogService struct {
	repo    repositories.ActivityLogRepositoryInterface
	gate    authz.GateInterface
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewActivityLogService(
	repo repositories.ActivityLogRepositoryInterface,
	gate authz.GateInterface,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ActivityLogService {
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}
	return &ActivityLogService{
		repo:    repo,
		gate:    gate,
		timeout: timeout,
		metrics: m,
		logger:  logger.Named("activity_log"),
	}
}

// Append пишет запись не дольше timeout. Отмена контекста вызывающего запись не прерывает.
func (s *ActivityLogService) Append(ctx context.Context, entry dto.ActivityEntryDTO) (int64, error) {
	if !entry.ActionType.IsValid() {
		return 0, apperrors.NewValidationError("action_type", "неизвестный тип действия %q", entry.ActionType)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	id, err := s.repo.Append(writeCtx, entry)
	if err != nil {
		s.metrics.ActivityLogFailed()
		fields := []zap.Field{
			zap.Int64("user_id", entry.UserID),
			zap.String("action", string(entry.ActionType)),
			zap.String("description", entry.Description),
			zap.Error(err),
		}
		if entry.RelatedOrderID != nil {
			fields = append(fields, zap.Int64("order_id", *entry.RelatedOrderID))
		}
		if entry.RelatedUserID != nil {
			fields = append(fields, zap.Int64("related_user_id", *entry.RelatedUserID))
		}
		s.logger.Error("Не удалось записать действие в журнал", fields...)
		return 0, err
	}
	return id, nil
}

func (s *ActivityLogService) Record(ctx context.Context, entry dto.ActivityEntryDTO) {
	_, _ = s.Append(ctx, entry)
}

// Query - журнал от новых к старым. Только для тех, кому разрешён просмотр журнала.
func (s *ActivityLogService) Query(ctx context.Context, actorID int64, filter dto.ActivityFilter, limit, offset uint64) ([]entities.ActivityLog, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.ActivityView); err != nil {
		return nil, err
	}
	if filter.ActionType != "" && !filter.ActionType.IsValid() {
		return nil, apperrors.NewValidationError("action_type", "неизвестный тип действия %q", filter.ActionType)
	}
	if limit == 0 || limit > constants.MaxActivityLogPerPage {
		limit = constants.MaxActivityLogPerPage
	}
	return s.repo.Query(ctx, filter, limit, offset)
}
