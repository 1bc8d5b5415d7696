package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	apperrors "repair-desk/pkg/errors"
)

const (
	templateTable  = "problem_templates"
	templateFields = "id, title, description, is_active, created_at"
)

type ProblemTemplateRepositoryInterface interface {
	FindByID(ctx context.Context, id int64) (*entities.ProblemTemplate, error)
	ListActive(ctx context.Context) ([]entities.ProblemTemplate, error)
	Create(ctx context.Context, d dto.CreateTemplateDTO) (*entities.ProblemTemplate, error)
	// EnsureExists добавляет шаблон, если шаблона с таким названием ещё нет. Для сидера.
	EnsureExists(ctx context.Context, d dto.CreateTemplateDTO) (bool, error)
}

type ProblemTemplateRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewProblemTemplateRepository(storage *pgxpool.Pool, logger *zap.Logger) *ProblemTemplateRepository {
	return &ProblemTemplateRepository{storage: storage, logger: logger.Named("template_repo")}
}

func scanTemplate(row pgx.Row) (*entities.ProblemTemplate, error) {
	var t entities.ProblemTemplate
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.IsActive, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования problem_templates: %w", err)
	}
	return &t, nil
}

func (r *ProblemTemplateRepository) FindByID(ctx context.Context, id int64) (*entities.ProblemTemplate, error) {
	query, args, err := psql().Select(templateFields).From(templateTable).
		Where(sq.Eq{"id": id, "is_active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса FindByID: %w", err)
	}
	t, err := scanTemplate(r.storage.QueryRow(ctx, query, args...))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("шаблон", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("templates.find", err)
	}
	return t, nil
}

func (r *ProblemTemplateRepository) ListActive(ctx context.Context) ([]entities.ProblemTemplate, error) {
	query, args, err := psql().Select(templateFields).From(templateTable).
		Where(sq.Eq{"is_active": true}).
		OrderBy("title").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса ListActive: %w", err)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("templates.list", err)
	}
	defer rows.Close()

	result := make([]entities.ProblemTemplate, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("templates.list", err)
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (r *ProblemTemplateRepository) Create(ctx context.Context, d dto.CreateTemplateDTO) (*entities.ProblemTemplate, error) {
	query, args, err := psql().Insert(templateTable).
		Columns("title", "description", "is_active", "created_at").
		Values(d.Title, d.Description, true, sq.Expr("NOW()")).
		Suffix("RETURNING " + templateFields).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса Create: %w", err)
	}

	t, err := scanTemplate(r.storage.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("шаблон %q уже существует: %w", d.Title, apperrors.ErrConflict)
		}
		return nil, apperrors.NewStorageError("templates.create", err)
	}
	return t, nil
}

func (r *ProblemTemplateRepository) EnsureExists(ctx context.Context, d dto.CreateTemplateDTO) (bool, error) {
	query, args, err := psql().Insert(templateTable).
		Columns("title", "description", "is_active", "created_at").
		Values(d.Title, d.Description, true, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (title) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("ошибка сборки запроса EnsureExists: %w", err)
	}
	tag, err := r.storage.Exec(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewStorageError("templates.ensure", err)
	}
	return tag.RowsAffected() > 0, nil
}
