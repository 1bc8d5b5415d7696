package authz

import (
	"context"
	"errors"

	"github.com/casbin/casbin/v2"
	"go.uber.org/zap"

	"repair-desk/internal/entities"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

// GateInterface - проверка прав перед любым действием.
type GateInterface interface {
	RoleOf(ctx context.Context, userID int64) (constants.Role, error)
	Require(ctx context.Context, userID int64, action string, roles ...constants.Role) (constants.Role, error)
	Can(ctx context.Context, userID int64, permission string) bool
	RequirePermission(ctx context.Context, userID int64, permission string) (constants.Role, error)
	CanViewOrder(ctx context.Context, userID int64, order *entities.Order) bool
	IsAdminID(userID int64) bool
}

// Gatekeeper определяет роль пользователя и спрашивает у casbin, что этой роли можно.
type Gatekeeper struct {
	users    repositories.UserRepositoryInterface
	enforcer *casbin.SyncedEnforcer
	adminIDs map[int64]struct{}
	logger   *zap.Logger
}

func NewGatekeeper(users repositories.UserRepositoryInterface, enforcer *casbin.SyncedEnforcer, adminIDs []int64, logger *zap.Logger) *Gatekeeper {
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &Gatekeeper{
		users:    users,
		enforcer: enforcer,
		adminIDs: ids,
		logger:   logger.Named("authz"),
	}
}

func (g *Gatekeeper) IsAdminID(userID int64) bool {
	_, ok := g.adminIDs[userID]
	return ok
}

// RoleOf - роль пользователя. Незнакомый пользователь считается клиентом,
// отключённый получает ErrUserDisabled, сбой БД возвращается как есть.
func (g *Gatekeeper) RoleOf(ctx context.Context, userID int64) (constants.Role, error) {
	if g.IsAdminID(userID) {
		return constants.RoleAdmin, nil
	}

	user, err := g.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return constants.RoleClient, nil
		}
		return "", err
	}
	if user.IsDeleted() {
		return "", apperrors.ErrUserDisabled
	}
	if !user.Role.IsValid() {
		g.logger.Warn("Неизвестная роль в БД, считаем клиентом", zap.Int64("user_id", userID), zap.String("role", string(user.Role)))
		return constants.RoleClient, nil
	}
	return user.Role, nil
}

// Require пропускает, только если роль пользователя среди roles.
func (g *Gatekeeper) Require(ctx context.Context, userID int64, action string, roles ...constants.Role) (constants.Role, error) {
	role, err := g.RoleOf(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if r == role {
			return role, nil
		}
	}
	g.logger.Info("Отказано в доступе", zap.Int64("user_id", userID), zap.String("action", action), zap.String("role", string(role)))
	return role, apperrors.NewAuthorizationError(userID, action)
}

func (g *Gatekeeper) allowed(role constants.Role, permission string) bool {
	obj, act, err := splitPermission(permission)
	if err != nil {
		g.logger.Error("Проверка некорректного пермишена", zap.String("permission", permission), zap.Error(err))
		return false
	}
	ok, err := g.enforcer.Enforce(subject(role), obj, act)
	if err != nil {
		g.logger.Error("Ошибка casbin", zap.String("permission", permission), zap.Error(err))
		return false
	}
	return ok
}

// Can - есть ли у роли пользователя permission. Любая ошибка означает "нет".
func (g *Gatekeeper) Can(ctx context.Context, userID int64, permission string) bool {
	role, err := g.RoleOf(ctx, userID)
	if err != nil {
		return false
	}
	return g.allowed(role, permission)
}

// RequirePermission - как Can, но с типизированной ошибкой и ролью для вызывающего.
func (g *Gatekeeper) RequirePermission(ctx context.Context, userID int64, permission string) (constants.Role, error) {
	role, err := g.RoleOf(ctx, userID)
	if err != nil {
		return "", err
	}
	if !g.allowed(role, permission) {
		g.logger.Info("Отказано в доступе", zap.Int64("user_id", userID), zap.String("permission", permission), zap.String("role", string(role)))
		return role, apperrors.NewAuthorizationError(userID, permission)
	}
	return role, nil
}

// CanViewOrder: все заявки видят с OrdersViewAll, свои - участники с OrdersViewOwn.
func (g *Gatekeeper) CanViewOrder(ctx context.Context, userID int64, order *entities.Order) bool {
	role, err := g.RoleOf(ctx, userID)
	if err != nil {
		return false
	}
	if g.allowed(role, OrdersViewAll) {
		return true
	}
	return g.allowed(role, OrdersViewOwn) && order.IsParticipant(userID)
}
