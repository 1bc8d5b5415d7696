package repositories

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/pkg/constants"
)

const (
	technicianListKey = "all"
	statsKey          = "summary"
)

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ============================================================
// Пользователи
// ============================================================

type CachedUserRepository struct {
	inner  UserRepositoryInterface
	cache  *EntityCache
	logger *zap.Logger
}

func NewCachedUserRepository(inner UserRepositoryInterface, cache *EntityCache, logger *zap.Logger) *CachedUserRepository {
	return &CachedUserRepository{inner: inner, cache: cache, logger: logger.Named("cached_user_repo")}
}

func (r *CachedUserRepository) FindByID(ctx context.Context, id int64) (*entities.User, error) {
	var u entities.User
	if r.cache.Get(ctx, constants.CacheUsers, idKey(id), &u) {
		return &u, nil
	}
	version := r.cache.Version(constants.CacheUsers, idKey(id))
	user, err := r.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetIfUnchanged(ctx, constants.CacheUsers, idKey(id), version, user)
	return user, nil
}

func (r *CachedUserRepository) invalidate(ctx context.Context, id int64) {
	_ = r.cache.Invalidate(ctx, constants.CacheUsers, idKey(id))
	_ = r.cache.Invalidate(ctx, constants.CacheTechnicians, technicianListKey)
	_ = r.cache.Invalidate(ctx, constants.CacheStats, statsKey)
}

// Upsert вызывается на каждое обновление, поэтому кеш сбрасывается только при реальном изменении профиля.
// Статистика от имени не зависит и остаётся.
func (r *CachedUserRepository) Upsert(ctx context.Context, p dto.TelegramProfileDTO, roleOnCreate constants.Role) (*entities.User, UpsertResult, error) {
	user, res, err := r.inner.Upsert(ctx, p, roleOnCreate)
	if err != nil {
		return nil, UpsertResult{}, err
	}
	if res.Changed {
		_ = r.cache.Invalidate(ctx, constants.CacheUsers, idKey(p.ID))
		_ = r.cache.Invalidate(ctx, constants.CacheTechnicians, technicianListKey)
	}
	return user, res, nil
}

func (r *CachedUserRepository) UpdateRole(ctx context.Context, id int64, role constants.Role) error {
	if err := r.inner.UpdateRole(ctx, id, role); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedUserRepository) SoftDelete(ctx context.Context, id int64) error {
	if err := r.inner.SoftDelete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// ListByRole кеширует только список мастеров: его показывают при каждом назначении.
func (r *CachedUserRepository) ListByRole(ctx context.Context, role constants.Role) ([]entities.User, error) {
	if role != constants.RoleTechnician {
		return r.inner.ListByRole(ctx, role)
	}
	var users []entities.User
	if r.cache.Get(ctx, constants.CacheTechnicians, technicianListKey, &users) {
		return users, nil
	}
	version := r.cache.Version(constants.CacheTechnicians, technicianListKey)
	users, err := r.inner.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	r.cache.SetIfUnchanged(ctx, constants.CacheTechnicians, technicianListKey, version, users)
	return users, nil
}

func (r *CachedUserRepository) List(ctx context.Context, limit, offset uint64) ([]entities.User, uint64, error) {
	return r.inner.List(ctx, limit, offset)
}

// ============================================================
// Заявки
// ============================================================

type CachedOrderRepository struct {
	inner  OrderRepositoryInterface
	cache  *EntityCache
	logger *zap.Logger
}

func NewCachedOrderRepository(inner OrderRepositoryInterface, cache *EntityCache, logger *zap.Logger) *CachedOrderRepository {
	return &CachedOrderRepository{inner: inner, cache: cache, logger: logger.Named("cached_order_repo")}
}

func (r *CachedOrderRepository) FindByID(ctx context.Context, id int64) (*entities.Order, error) {
	var o entities.Order
	if r.cache.Get(ctx, constants.CacheOrders, idKey(id), &o) {
		return &o, nil
	}
	version := r.cache.Version(constants.CacheOrders, idKey(id))
	order, err := r.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetIfUnchanged(ctx, constants.CacheOrders, idKey(id), version, order)
	return order, nil
}

// FindFresh идёт в БД и заодно обновляет кеш свежим снимком.
func (r *CachedOrderRepository) FindFresh(ctx context.Context, id int64) (*entities.Order, error) {
	version := r.cache.Version(constants.CacheOrders, idKey(id))
	order, err := r.inner.FindFresh(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetIfUnchanged(ctx, constants.CacheOrders, idKey(id), version, order)
	return order, nil
}

func (r *CachedOrderRepository) List(ctx context.Context, filter dto.OrderFilter) ([]entities.Order, uint64, error) {
	return r.inner.List(ctx, filter)
}

func (r *CachedOrderRepository) invalidate(ctx context.Context, id int64) {
	_ = r.cache.Invalidate(ctx, constants.CacheOrders, idKey(id))
	_ = r.cache.Invalidate(ctx, constants.CacheAssignments, idKey(id))
	_ = r.cache.Invalidate(ctx, constants.CacheStats, statsKey)
}

func (r *CachedOrderRepository) Create(ctx context.Context, creatorID int64, d dto.CreateOrderDTO) (*entities.Order, error) {
	order, err := r.inner.Create(ctx, creatorID, d)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Invalidate(ctx, constants.CacheStats, statsKey)
	return order, nil
}

func (r *CachedOrderRepository) UpdateStatus(ctx context.Context, id int64, from, to constants.OrderStatus) (*entities.Order, error) {
	order, err := r.inner.UpdateStatus(ctx, id, from, to)
	r.invalidate(ctx, id)
	return order, err
}

func (r *CachedOrderRepository) Assign(ctx context.Context, orderID, technicianID, assignedBy int64) (*AssignResult, error) {
	res, err := r.inner.Assign(ctx, orderID, technicianID, assignedBy)
	r.invalidate(ctx, orderID)
	return res, err
}

func (r *CachedOrderRepository) SetServiceCost(ctx context.Context, id int64, cost float64, allowed []constants.OrderStatus) (*entities.Order, error) {
	order, err := r.inner.SetServiceCost(ctx, id, cost, allowed)
	r.invalidate(ctx, id)
	return order, err
}

func (r *CachedOrderRepository) SetServiceDescription(ctx context.Context, id int64, text string, allowed []constants.OrderStatus) (*entities.Order, error) {
	order, err := r.inner.SetServiceDescription(ctx, id, text, allowed)
	r.invalidate(ctx, id)
	return order, err
}

func (r *CachedOrderRepository) Delete(ctx context.Context, id int64) error {
	err := r.inner.Delete(ctx, id)
	r.invalidate(ctx, id)
	return err
}

func (r *CachedOrderRepository) Stats(ctx context.Context) (*entities.OrderStats, error) {
	var s entities.OrderStats
	if r.cache.Get(ctx, constants.CacheStats, statsKey, &s) {
		return &s, nil
	}
	version := r.cache.Version(constants.CacheStats, statsKey)
	stats, err := r.inner.Stats(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.SetIfUnchanged(ctx, constants.CacheStats, statsKey, version, stats)
	return stats, nil
}

// ============================================================
// Назначения
// ============================================================

type CachedAssignmentRepository struct {
	inner AssignmentRepositoryInterface
	cache *EntityCache
}

func NewCachedAssignmentRepository(inner AssignmentRepositoryInterface, cache *EntityCache) *CachedAssignmentRepository {
	return &CachedAssignmentRepository{inner: inner, cache: cache}
}

// FindActive вне транзакции читает через кеш; внутри транзакции - всегда из БД.
func (r *CachedAssignmentRepository) FindActive(ctx context.Context, tx pgx.Tx, orderID int64) (*entities.Assignment, error) {
	if tx != nil {
		return r.inner.FindActive(ctx, tx, orderID)
	}
	var a entities.Assignment
	if r.cache.Get(ctx, constants.CacheAssignments, idKey(orderID), &a) {
		return &a, nil
	}
	version := r.cache.Version(constants.CacheAssignments, idKey(orderID))
	a2, err := r.inner.FindActive(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	r.cache.SetIfUnchanged(ctx, constants.CacheAssignments, idKey(orderID), version, a2)
	return a2, nil
}

func (r *CachedAssignmentRepository) ListByOrder(ctx context.Context, orderID int64) ([]entities.Assignment, error) {
	return r.inner.ListByOrder(ctx, orderID)
}

func (r *CachedAssignmentRepository) CloseActive(ctx context.Context, tx pgx.Tx, orderID int64) error {
	err := r.inner.CloseActive(ctx, tx, orderID)
	_ = r.cache.Invalidate(ctx, constants.CacheAssignments, idKey(orderID))
	return err
}

func (r *CachedAssignmentRepository) Create(ctx context.Context, tx pgx.Tx, a entities.Assignment) (*entities.Assignment, error) {
	created, err := r.inner.Create(ctx, tx, a)
	_ = r.cache.Invalidate(ctx, constants.CacheAssignments, idKey(a.OrderID))
	return created, err
}
