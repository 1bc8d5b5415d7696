// Package seeders наполняет пустую базу: шаблоны проблем и администраторы из конфига.
package seeders

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
)

// SeedTemplates добавляет недостающие шаблоны. Существующие (по названию) не трогает.
func SeedTemplates(ctx context.Context, repo repositories.ProblemTemplateRepositoryInterface, logger *zap.Logger) (int, error) {
	logger.Info("▶️  Наполнение шаблонов проблем...")
	added := 0
	for _, t := range templatesData {
		created, err := repo.EnsureExists(ctx, t)
		if err != nil {
			return added, fmt.Errorf("шаблон %q: %w", t.Title, err)
		}
		if created {
			added++
			logger.Info("  - добавлен шаблон", zap.String("title", t.Title))
		}
	}
	logger.Info("✅ Шаблоны проблем готовы", zap.Int("added", added), zap.Int("total", len(templatesData)))
	return added, nil
}

// SeedAdmins заводит пользователей с ролью администратора для id из конфига.
// Уже зарегистрированным выставляется роль admin.
func SeedAdmins(ctx context.Context, users repositories.UserRepositoryInterface, adminIDs []int64, logger *zap.Logger) error {
	if len(adminIDs) == 0 {
		logger.Warn("ADMIN_IDS пуст, администраторы не созданы")
		return nil
	}
	for _, id := range adminIDs {
		u, res, err := users.Upsert(ctx, dto.TelegramProfileDTO{ID: id, FirstName: "Администратор"}, constants.RoleAdmin)
		if err != nil {
			return fmt.Errorf("администратор %d: %w", id, err)
		}
		if !res.Created && (u.Role != constants.RoleAdmin || u.IsDeleted()) {
			if err := users.UpdateRole(ctx, id, constants.RoleAdmin); err != nil {
				return fmt.Errorf("администратор %d: %w", id, err)
			}
		}
		logger.Info("  - администратор готов", zap.Int64("user_id", id), zap.Bool("created", res.Created))
	}
	return nil
}
