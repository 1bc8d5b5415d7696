package repositories

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	apperrors "repair-desk/pkg/errors"
)

const (
	activityLogTable  = "activity_log"
	activityLogFields = "id, user_id, action_type, description, related_order_id, related_user_id, created_at"
)

type ActivityLogRepositoryInterface interface {
	Append(ctx context.Context, entry dto.ActivityEntryDTO) (int64, error)
	Query(ctx context.Context, filter dto.ActivityFilter, limit, offset uint64) ([]entities.ActivityLog, error)
}

type ActivityLogRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewActivityLogRepository(storage *pgxpool.Pool, logger *zap.Logger) *ActivityLogRepository {
	return &ActivityLogRepository{storage: storage, logger: logger.Named("activity_log_repo")}
}

func nullableID(id *int64) null.Int64 {
	if id == nil {
		return null.Int64{}
	}
	return null.Int64From(*id)
}

func (r *ActivityLogRepository) Append(ctx context.Context, e dto.ActivityEntryDTO) (int64, error) {
	query, args, err := psql().Insert(activityLogTable).
		Columns("user_id", "action_type", "description", "related_order_id", "related_user_id", "created_at").
		Values(e.UserID, e.ActionType, e.Description, nullableID(e.RelatedOrderID), nullableID(e.RelatedUserID), sq.Expr("NOW()")).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("ошибка сборки запроса Append: %w", err)
	}

	var id int64
	if err := r.storage.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, apperrors.NewStorageError("activity_log.append", err)
	}
	return id, nil
}

// Query возвращает записи от новых к старым. Условия фильтра объединяются через AND.
func (r *ActivityLogRepository) Query(ctx context.Context, f dto.ActivityFilter, limit, offset uint64) ([]entities.ActivityLog, error) {
	builder := psql().Select(activityLogFields).From(activityLogTable)
	if f.UserID != nil {
		builder = builder.Where(sq.Eq{"user_id": *f.UserID})
	}
	if f.ActionType != "" {
		builder = builder.Where(sq.Eq{"action_type": f.ActionType})
	}
	if f.OrderID != nil {
		builder = builder.Where(sq.Eq{"related_order_id": *f.OrderID})
	}
	if f.RelatedUserID != nil {
		builder = builder.Where(sq.Eq{"related_user_id": *f.RelatedUserID})
	}
	builder = builder.OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(limit).Offset(offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса Query: %w", err)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("activity_log.query", err)
	}
	defer rows.Close()

	entries := make([]entities.ActivityLog, 0)
	for rows.Next() {
		var e entities.ActivityLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActionType, &e.Description, &e.RelatedOrderID, &e.RelatedUserID, &e.CreatedAt); err != nil {
			return nil, apperrors.NewStorageError("activity_log.query", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("activity_log.query", err)
	}
	return entries, nil
}
