package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"repair-desk/internal/entities"
	apperrors "repair-desk/pkg/errors"
)

const (
	assignmentTable  = "assignments"
	assignmentFields = "id, order_id, technician_id, assigned_by, assigned_at, closed_at"
)

type AssignmentRepositoryInterface interface {
	FindActive(ctx context.Context, tx pgx.Tx, orderID int64) (*entities.Assignment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]entities.Assignment, error)
	CloseActive(ctx context.Context, tx pgx.Tx, orderID int64) error
	Create(ctx context.Context, tx pgx.Tx, a entities.Assignment) (*entities.Assignment, error)
}

type AssignmentRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewAssignmentRepository(storage *pgxpool.Pool, logger *zap.Logger) *AssignmentRepository {
	return &AssignmentRepository{storage: storage, logger: logger.Named("assignment_repo")}
}

func (r *AssignmentRepository) getQuerier(tx pgx.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.storage
}

func scanAssignment(row pgx.Row) (*entities.Assignment, error) {
	var a entities.Assignment
	if err := row.Scan(&a.ID, &a.OrderID, &a.TechnicianID, &a.AssignedBy, &a.AssignedAt, &a.ClosedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования assignments: %w", err)
	}
	return &a, nil
}

func (r *AssignmentRepository) FindActive(ctx context.Context, tx pgx.Tx, orderID int64) (*entities.Assignment, error) {
	query, args, err := psql().Select(assignmentFields).From(assignmentTable).
		Where(sq.Eq{"order_id": orderID, "closed_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса FindActive: %w", err)
	}
	a, err := scanAssignment(r.getQuerier(tx).QueryRow(ctx, query, args...))
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewStorageError("assignments.find_active", err)
	}
	return a, err
}

func (r *AssignmentRepository) ListByOrder(ctx context.Context, orderID int64) ([]entities.Assignment, error) {
	query, args, err := psql().Select(assignmentFields).From(assignmentTable).
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("assigned_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса ListByOrder: %w", err)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("assignments.list", err)
	}
	defer rows.Close()

	result := make([]entities.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("assignments.list", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *AssignmentRepository) CloseActive(ctx context.Context, tx pgx.Tx, orderID int64) error {
	query, args, err := psql().Update(assignmentTable).
		Set("closed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"order_id": orderID, "closed_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки запроса CloseActive: %w", err)
	}
	if _, err := r.getQuerier(tx).Exec(ctx, query, args...); err != nil {
		return apperrors.NewStorageError("assignments.close", err)
	}
	return nil
}

func (r *AssignmentRepository) Create(ctx context.Context, tx pgx.Tx, a entities.Assignment) (*entities.Assignment, error) {
	query, args, err := psql().Insert(assignmentTable).
		Columns("order_id", "technician_id", "assigned_by", "assigned_at").
		Values(a.OrderID, a.TechnicianID, a.AssignedBy, sq.Expr("NOW()")).
		Suffix("RETURNING " + assignmentFields).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса Create: %w", err)
	}
	created, err := scanAssignment(r.getQuerier(tx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, apperrors.NewStorageError("assignments.create", err)
	}
	return created, nil
}
