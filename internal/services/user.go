package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
	"repair-desk/pkg/types"
	"repair-desk/pkg/utils"
)

type UserServiceInterface interface {
	// EnsureUser регистрирует пользователя при первом обращении и обновляет имя из профиля.
	EnsureUser(ctx context.Context, profile dto.TelegramProfileDTO) (*entities.User, error)
	GetUser(ctx context.Context, actorID, userID int64) (*entities.User, error)
	SetRole(ctx context.Context, actorID, targetID int64, role constants.Role) (*entities.User, error)
	DeleteUser(ctx context.Context, actorID, targetID int64) error
	ListUsers(ctx context.Context, actorID int64, page uint64) ([]entities.User, types.Pagination, error)
	Technicians(ctx context.Context, actorID int64) ([]entities.User, error)
}

type UserService struct {
	users    repositories.UserRepositoryInterface
	gate     authz.GateInterface
	activity ActivityLogServiceInterface
	notifier NotificationServiceInterface
	logger   *zap.Logger
}

func NewUserService(
	users repositories.UserRepositoryInterface,
	gate authz.GateInterface,
	activity ActivityLogServiceInterface,
	notifier NotificationServiceInterface,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:    users,
		gate:     gate,
		activity: activity,
		notifier: notifier,
		logger:   logger.Named("user_service"),
	}
}

func (s *UserService) EnsureUser(ctx context.Context, profile dto.TelegramProfileDTO) (*entities.User, error) {
	if profile.FirstName == "" {
		profile.FirstName = "Пользователь"
	}
	roleOnCreate := constants.RoleClient
	if s.gate.IsAdminID(profile.ID) {
		roleOnCreate = constants.RoleAdmin
	}

	user, res, err := s.users.Upsert(ctx, profile, roleOnCreate)
	if err != nil {
		s.logger.Error("Не удалось сохранить пользователя", zap.Int64("user_id", profile.ID), zap.Error(err))
		return nil, err
	}
	if res.Created {
		s.logger.Info("Новый пользователь", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
		s.activity.Record(ctx, dto.ActivityEntryDTO{
			UserID:        user.ID,
			ActionType:    constants.ActionUserCreate,
			Description:   fmt.Sprintf("Зарегистрирован пользователь %s (%s)", user.DisplayName(), user.Role.Label()),
			RelatedUserID: &user.ID,
		})
	}
	return user, nil
}

// GetUser: себя видит любой, остальных - кому разрешён просмотр пользователей.
func (s *UserService) GetUser(ctx context.Context, actorID, userID int64) (*entities.User, error) {
	if actorID != userID {
		if _, err := s.gate.RequirePermission(ctx, actorID, authz.UsersView); err != nil {
			return nil, err
		}
	}
	return s.users.FindByID(ctx, userID)
}

// SetRole меняет роль, подтверждает аккаунт и снимает отключение.
func (s *UserService) SetRole(ctx context.Context, actorID, targetID int64, role constants.Role) (*entities.User, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.UsersManage); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, apperrors.NewValidationError("Роль", "неизвестная роль %q", role)
	}
	if s.gate.IsAdminID(targetID) && role != constants.RoleAdmin {
		return nil, apperrors.NewValidationError("Роль", "администратор из конфигурации всегда остаётся администратором")
	}

	before, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateRole(ctx, targetID, role); err != nil {
		s.logger.Error("Не удалось сменить роль", zap.Int64("user_id", actorID), zap.Int64("target_id", targetID), zap.Error(err))
		return nil, err
	}
	after, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Роль изменена", zap.Int64("user_id", actorID), zap.Int64("target_id", targetID),
		zap.String("from", string(before.Role)), zap.String("to", string(role)))
	s.activity.Record(ctx, dto.ActivityEntryDTO{
		UserID:        actorID,
		ActionType:    constants.ActionRoleChange,
		Description:   fmt.Sprintf("Роль %s: %s → %s", after.DisplayName(), before.Role.Label(), role.Label()),
		RelatedUserID: &targetID,
	})
	if targetID != actorID {
		s.notifier.Notify(ctx, []int64{targetID}, fmt.Sprintf("Ваша роль изменена: %s", role.Label()), NotifyOptions{})
	}
	return after, nil
}

// DeleteUser - мягкое удаление. Вернуть пользователя можно сменой роли.
func (s *UserService) DeleteUser(ctx context.Context, actorID, targetID int64) error {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.UsersDelete); err != nil {
		return err
	}
	if actorID == targetID {
		return apperrors.NewValidationError("Пользователь", "нельзя отключить самого себя")
	}
	if s.gate.IsAdminID(targetID) {
		return apperrors.NewValidationError("Пользователь", "администратора из конфигурации отключить нельзя")
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.users.SoftDelete(ctx, targetID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) && target.IsDeleted() {
			return apperrors.NewValidationError("Пользователь", "уже отключён")
		}
		return err
	}

	s.logger.Warn("Пользователь отключён", zap.Int64("user_id", actorID), zap.Int64("target_id", targetID))
	s.activity.Record(ctx, dto.ActivityEntryDTO{
		UserID:        actorID,
		ActionType:    constants.ActionUserDelete,
		Description:   fmt.Sprintf("Отключён пользователь %s", target.DisplayName()),
		RelatedUserID: &targetID,
	})
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, actorID int64, page uint64) ([]entities.User, types.Pagination, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.UsersView); err != nil {
		return nil, types.Pagination{}, err
	}
	limit, offset := utils.PageToLimitOffset(page, utils.DefaultLimit)
	users, total, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, types.Pagination{}, err
	}
	if page == 0 {
		page = 1
	}
	return users, types.Pagination{TotalCount: total, Page: page, Limit: limit}, nil
}

func (s *UserService) Technicians(ctx context.Context, actorID int64) ([]entities.User, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.TechniciansView); err != nil {
		return nil, err
	}
	return s.users.ListByRole(ctx, constants.RoleTechnician)
}
