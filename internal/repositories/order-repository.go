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
	orderTable = "orders"
	// service_cost хранится как NUMERIC, читаем как float8
	orderFields = "id, creator_id, client_phone, client_name, client_address, problem_description, status, " +
		"service_cost::float8, service_description, assigned_technician_id, completed_at, created_at, updated_at"
)

// AssignResult - итог назначения мастера.
type AssignResult struct {
	Order                *entities.Order
	PreviousStatus       constants.OrderStatus
	PreviousTechnicianID int64
	// Changed=false: тот же мастер назначен повторно, данные не менялись.
	Changed bool
}

type OrderRepositoryInterface interface {
	Create(ctx context.Context, creatorID int64, d dto.CreateOrderDTO) (*entities.Order, error)
	FindByID(ctx context.Context, id int64) (*entities.Order, error)
	// FindFresh всегда читает БД, минуя кеш. Для проверок перед изменением.
	FindFresh(ctx context.Context, id int64) (*entities.Order, error)
	List(ctx context.Context, filter dto.OrderFilter) ([]entities.Order, uint64, error)
	// UpdateStatus - compare-and-set: запись меняется, только если текущий статус равен from.
	UpdateStatus(ctx context.Context, id int64, from, to constants.OrderStatus) (*entities.Order, error)
	Assign(ctx context.Context, orderID, technicianID, assignedBy int64) (*AssignResult, error)
	SetServiceCost(ctx context.Context, id int64, cost float64, allowed []constants.OrderStatus) (*entities.Order, error)
	SetServiceDescription(ctx context.Context, id int64, text string, allowed []constants.OrderStatus) (*entities.Order, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*entities.OrderStats, error)
}

type OrderRepository struct {
	storage     *pgxpool.Pool
	txManager   TxManagerInterface
	assignments AssignmentRepositoryInterface
	logger      *zap.Logger
}

func NewOrderRepository(storage *pgxpool.Pool, txManager TxManagerInterface, assignments AssignmentRepositoryInterface, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		storage:     storage,
		txManager:   txManager,
		assignments: assignments,
		logger:      logger.Named("order_repo"),
	}
}

func (r *OrderRepository) getQuerier(tx pgx.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.storage
}

func scanOrder(row pgx.Row) (*entities.Order, error) {
	var o entities.Order
	err := row.Scan(
		&o.ID, &o.CreatorID, &o.ClientPhone, &o.ClientName, &o.ClientAddress, &o.ProblemDescription,
		&o.Status, &o.ServiceCost, &o.ServiceDescription, &o.AssignedTechnicianID, &o.CompletedAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования orders: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) Create(ctx context.Context, creatorID int64, d dto.CreateOrderDTO) (*entities.Order, error) {
	query, args, err := psql().Insert(orderTable).
		Columns("creator_id", "client_phone", "client_name", "client_address", "problem_description", "status", "created_at", "updated_at").
		Values(creatorID, d.ClientPhone, d.ClientName, d.ClientAddress, d.ProblemDescription, constants.StatusNew, sq.Expr("NOW()"), sq.Expr("NOW()")).
		Suffix("RETURNING " + orderFields).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса Create: %w", err)
	}

	order, err := scanOrder(r.storage.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, apperrors.NewStorageError("orders.create", err)
	}
	return order, nil
}

func (r *OrderRepository) findOne(ctx context.Context, q Querier, id int64, forUpdate bool) (*entities.Order, error) {
	builder := psql().Select(orderFields).From(orderTable).Where(sq.Eq{"id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса findOne: %w", err)
	}

	order, err := scanOrder(q.QueryRow(ctx, query, args...))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("заявка", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("orders.find", err)
	}
	return order, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*entities.Order, error) {
	return r.findOne(ctx, r.storage, id, false)
}

func (r *OrderRepository) FindFresh(ctx context.Context, id int64) (*entities.Order, error) {
	return r.findOne(ctx, r.storage, id, false)
}

func applyOrderFilter(b sq.SelectBuilder, f dto.OrderFilter) sq.SelectBuilder {
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.TechnicianID != 0 {
		b = b.Where(sq.Eq{"assigned_technician_id": f.TechnicianID})
	}
	if f.CreatorID != 0 {
		b = b.Where(sq.Eq{"creator_id": f.CreatorID})
	}
	return b
}

func (r *OrderRepository) List(ctx context.Context, f dto.OrderFilter) ([]entities.Order, uint64, error) {
	countQuery, countArgs, err := applyOrderFilter(psql().Select("COUNT(*)").From(orderTable), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки запроса подсчёта заявок: %w", err)
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewStorageError("orders.count", err)
	}
	if total == 0 {
		return []entities.Order{}, 0, nil
	}

	builder := applyOrderFilter(psql().Select(orderFields).From(orderTable), f).OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		builder = builder.Limit(f.Limit).Offset(f.Offset)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки запроса List: %w", err)
	}
	r.logger.Debug("SQL", zap.String("query", query), zap.Any("args", args))

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.NewStorageError("orders.list", err)
	}
	defer rows.Close()

	orders := make([]entities.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, apperrors.NewStorageError("orders.list", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewStorageError("orders.list", err)
	}
	return orders, total, nil
}

// conflictOrMissing вызывается, когда условный UPDATE не затронул строк.
func (r *OrderRepository) conflictOrMissing(ctx context.Context, id int64, format string, args ...interface{}) error {
	current, err := r.findOne(ctx, r.storage, id, false)
	if err != nil {
		return err
	}
	return apperrors.NewConflictError(id, string(current.Status), format, args...)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to constants.OrderStatus) (*entities.Order, error) {
	builder := psql().Update(orderTable).
		Set("status", to).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": from})
	if to == constants.StatusCompleted {
		builder = builder.Set("completed_at", sq.Expr("NOW()"))
	}
	query, args, err := builder.Suffix("RETURNING " + orderFields).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса UpdateStatus: %w", err)
	}

	order, err := scanOrder(r.storage.QueryRow(ctx, query, args...))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, r.conflictOrMissing(ctx, id, "статус уже изменён, ожидался %q", from)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("orders.update_status", err)
	}
	return order, nil
}

// Assign в одной транзакции закрывает активное назначение, создаёт новое и переводит
// заявку new -> assigned. Строка заявки блокируется FOR UPDATE на время операции.
func (r *OrderRepository) Assign(ctx context.Context, orderID, technicianID, assignedBy int64) (*AssignResult, error) {
	var result *AssignResult

	err := r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		current, err := r.findOne(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if current.Status.IsFinal() {
			return apperrors.NewConflictError(orderID, string(current.Status), "заявка закрыта, назначение невозможно")
		}

		res := &AssignResult{
			PreviousStatus:       current.Status,
			PreviousTechnicianID: current.AssignedTechnicianID.Int64,
		}
		if current.IsAssignedTo(technicianID) {
			res.Order = current
			result = res
			return nil
		}

		if err := r.assignments.CloseActive(ctx, tx, orderID); err != nil {
			return err
		}
		if _, err := r.assignments.Create(ctx, tx, entities.Assignment{
			OrderID:      orderID,
			TechnicianID: technicianID,
			AssignedBy:   assignedBy,
		}); err != nil {
			return err
		}

		newStatus := current.Status
		if current.Status == constants.StatusNew {
			newStatus = constants.StatusAssigned
		}
		query, args, err := psql().Update(orderTable).
			Set("assigned_technician_id", technicianID).
			Set("status", newStatus).
			Set("updated_at", sq.Expr("NOW()")).
			Where(sq.Eq{"id": orderID}).
			Suffix("RETURNING " + orderFields).
			ToSql()
		if err != nil {
			return fmt.Errorf("ошибка сборки запроса Assign: %w", err)
		}
		updated, err := scanOrder(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return apperrors.NewStorageError("orders.assign", err)
		}

		res.Order = updated
		res.Changed = true
		result = res
		return nil
	})
	if err != nil {
		if apperrors.IsUserFacing(err) {
			return nil, err
		}
		return nil, apperrors.NewStorageError("orders.assign", err)
	}
	return result, nil
}

func (r *OrderRepository) SetServiceCost(ctx context.Context, id int64, cost float64, allowed []constants.OrderStatus) (*entities.Order, error) {
	return r.updateServiceField(ctx, id, "service_cost", null.Float64From(cost), allowed)
}

func (r *OrderRepository) SetServiceDescription(ctx context.Context, id int64, text string, allowed []constants.OrderStatus) (*entities.Order, error) {
	return r.updateServiceField(ctx, id, "service_description", null.StringFrom(text), allowed)
}

func (r *OrderRepository) updateServiceField(ctx context.Context, id int64, column string, value interface{}, allowed []constants.OrderStatus) (*entities.Order, error) {
	query, args, err := psql().Update(orderTable).
		Set(column, value).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": allowed}).
		Suffix("RETURNING " + orderFields).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса обновления %s: %w", column, err)
	}

	order, err := scanOrder(r.storage.QueryRow(ctx, query, args...))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, r.conflictOrMissing(ctx, id, "поле можно менять только в статусах %v", allowed)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("orders.update_"+column, err)
	}
	return order, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql().Delete(orderTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки запроса Delete: %w", err)
	}
	tag, err := r.storage.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.NewStorageError("orders.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("заявка", id)
	}
	return nil
}

func (r *OrderRepository) Stats(ctx context.Context) (*entities.OrderStats, error) {
	stats := &entities.OrderStats{ByStatus: make(map[string]int64)}

	query, args, err := psql().Select("status", "COUNT(*)").From(orderTable).GroupBy("status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса статистики: %w", err)
	}
	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("orders.stats", err)
	}
	for rows.Next() {
		var status string
		var cnt int64
		if err := rows.Scan(&status, &cnt); err != nil {
			rows.Close()
			return nil, apperrors.NewStorageError("orders.stats", err)
		}
		stats.ByStatus[status] = cnt
		stats.Total += cnt
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("orders.stats", err)
	}

	query, args, err = psql().
		Select(
			"COALESCE(SUM(service_cost), 0)::float8",
			"COALESCE(AVG(EXTRACT(EPOCH FROM completed_at - created_at)), 0)::float8",
		).
		From(orderTable).
		Where(sq.Eq{"status": constants.StatusCompleted}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса выручки: %w", err)
	}
	if err := r.storage.QueryRow(ctx, query, args...).Scan(&stats.Revenue, &stats.AvgCompletionSeconds); err != nil {
		return nil, apperrors.NewStorageError("orders.stats_revenue", err)
	}

	query, args, err = psql().
		Select(
			"u.id", "u.first_name",
			"COUNT(o.id) FILTER (WHERE o.status IN ('assigned', 'in_progress'))",
			"COUNT(o.id) FILTER (WHERE o.status = 'completed')",
			"COALESCE(SUM(o.service_cost) FILTER (WHERE o.status = 'completed'), 0)::float8",
		).
		From("users u").
		LeftJoin("orders o ON o.assigned_technician_id = u.id").
		Where(sq.Eq{"u.role": constants.RoleTechnician, "u.deleted_at": nil}).
		GroupBy("u.id", "u.first_name").
		OrderBy("u.first_name", "u.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса нагрузки мастеров: %w", err)
	}
	rows, err = r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("orders.stats_technicians", err)
	}
	defer rows.Close()
	for rows.Next() {
		var w entities.TechnicianWorkload
		if err := rows.Scan(&w.TechnicianID, &w.Name, &w.Active, &w.Completed, &w.Revenue); err != nil {
			return nil, apperrors.NewStorageError("orders.stats_technicians", err)
		}
		stats.ByTechnician = append(stats.ByTechnician, w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("orders.stats_technicians", err)
	}
	return stats, nil
}
