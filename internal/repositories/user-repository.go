package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

const (
	userTable  = "users"
	userFields = "id, first_name, last_name, username, role, is_approved, created_at, updated_at, deleted_at"
)

type UserRepositoryInterface interface {
	// FindByID возвращает и мягко удалённых: вызывающий сам решает, пускать ли пользователя.
	FindByID(ctx context.Context, id int64) (*entities.User, error)
	// Upsert создаёт пользователя при первом обращении или обновляет имя из профиля Telegram.
	// Роль существующего пользователя не меняется.
	Upsert(ctx context.Context, profile dto.TelegramProfileDTO, roleOnCreate constants.Role) (*entities.User, UpsertResult, error)
	// UpdateRole меняет роль, подтверждает аккаунт и восстанавливает мягко удалённого пользователя.
	UpdateRole(ctx context.Context, id int64, role constants.Role) error
	SoftDelete(ctx context.Context, id int64) error
	ListByRole(ctx context.Context, role constants.Role) ([]entities.User, error)
	List(ctx context.Context, limit, offset uint64) ([]entities.User, uint64, error)
}

// UpsertResult: Changed истинно и для новой записи, и при смене имени или username.
type UpsertResult struct {
	Created bool
	Changed bool
}

type UserRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewUserRepository(storage *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{storage: storage, logger: logger.Named("user_repo")}
}

func scanUser(row pgx.Row, extra ...interface{}) (*entities.User, error) {
	var u entities.User
	dest := []interface{}{
		&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Role, &u.IsApproved,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования users: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*entities.User, error) {
	query, args, err := psql().Select(userFields).From(userTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса FindByID: %w", err)
	}

	user, err := scanUser(r.storage.QueryRow(ctx, query, args...))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("пользователь", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("users.find", err)
	}
	return user, nil
}

// Upsert не трогает строку, если профиль не изменился: тогда RETURNING пуст и пользователь читается отдельно.
func (r *UserRepository) Upsert(ctx context.Context, p dto.TelegramProfileDTO, roleOnCreate constants.Role) (*entities.User, UpsertResult, error) {
	query, args, err := psql().Insert(userTable).
		Columns("id", "first_name", "last_name", "username", "role", "is_approved", "created_at", "updated_at").
		Values(p.ID, p.FirstName, null.NewString(p.LastName, p.LastName != ""), null.NewString(p.Username, p.Username != ""),
			roleOnCreate, roleOnCreate != constants.RoleClient, sq.Expr("NOW()"), sq.Expr("NOW()")).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			username   = EXCLUDED.username,
			updated_at = NOW()
		WHERE users.first_name IS DISTINCT FROM EXCLUDED.first_name
		   OR users.last_name IS DISTINCT FROM EXCLUDED.last_name
		   OR users.username IS DISTINCT FROM EXCLUDED.username
		RETURNING ` + userFields + `, (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return nil, UpsertResult{}, fmt.Errorf("ошибка сборки запроса Upsert: %w", err)
	}

	var inserted bool
	user, err := scanUser(r.storage.QueryRow(ctx, query, args...), &inserted)
	if errors.Is(err, apperrors.ErrNotFound) {
		user, err = r.FindByID(ctx, p.ID)
		if err != nil {
			return nil, UpsertResult{}, err
		}
		return user, UpsertResult{}, nil
	}
	if err != nil {
		return nil, UpsertResult{}, apperrors.NewStorageError("users.upsert", err)
	}
	return user, UpsertResult{Created: inserted, Changed: true}, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role constants.Role) error {
	query, args, err := psql().Update(userTable).
		Set("role", role).
		Set("is_approved", true).
		Set("deleted_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки запроса UpdateRole: %w", err)
	}
	return r.execOne(ctx, "users.update_role", id, query, args)
}

func (r *UserRepository) SoftDelete(ctx context.Context, id int64) error {
	query, args, err := psql().Update(userTable).
		Set("deleted_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки запроса SoftDelete: %w", err)
	}
	return r.execOne(ctx, "users.soft_delete", id, query, args)
}

func (r *UserRepository) execOne(ctx context.Context, op string, id int64, query string, args []interface{}) error {
	tag, err := r.storage.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.NewStorageError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("пользователь", id)
	}
	return nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role constants.Role) ([]entities.User, error) {
	query, args, err := psql().Select(userFields).From(userTable).
		Where(sq.Eq{"role": role, "deleted_at": nil}).
		OrderBy("first_name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса ListByRole: %w", err)
	}
	return r.queryUsers(ctx, "users.list_by_role", query, args)
}

func (r *UserRepository) List(ctx context.Context, limit, offset uint64) ([]entities.User, uint64, error) {
	var total uint64
	countQuery, countArgs, err := psql().Select("COUNT(*)").From(userTable).Where(sq.Eq{"deleted_at": nil}).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки запроса подсчёта: %w", err)
	}
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewStorageError("users.count", err)
	}
	if total == 0 {
		return []entities.User{}, 0, nil
	}

	query, args, err := psql().Select(userFields).From(userTable).
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("role", "id").
		Limit(limit).Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки запроса List: %w", err)
	}
	users, err := r.queryUsers(ctx, "users.list", query, args)
	return users, total, err
}

func (r *UserRepository) queryUsers(ctx context.Context, op, query string, args []interface{}) ([]entities.User, error) {
	r.logger.Debug("SQL", zap.String("op", op), zap.String("query", query), zap.Any("args", args))

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	defer rows.Close()

	users := make([]entities.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.NewStorageError(op, err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	return users, nil
}
