package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"repair-desk/internal/repositories"
	"repair-desk/pkg/config"
	"repair-desk/pkg/database/postgresql"
	applogger "repair-desk/pkg/logger"
	"repair-desk/seeders"
)

func main() {
	runTemplates := flag.Bool("templates", false, "Добавить шаблоны проблем")
	runAdmins := flag.Bool("admins", false, "Создать администраторов из ADMIN_IDS")
	runAll := flag.Bool("all", false, "Запустить все сидеры")
	flag.Parse()

	if !*runTemplates && !*runAdmins && !*runAll {
		log.Println("❌ Не выбран ни один сидер для запуска.")
		flag.PrintDefaults()
		log.Println("Пример: go run ./seeders/cmd/seed -all")
		return
	}

	cfg := config.New()
	logger := applogger.NewLogger(cfg.Log).Named("seed")
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgresql.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer pool.Close()

	if err := postgresql.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("Миграции не применены", zap.Error(err))
	}

	if *runAll || *runTemplates {
		if _, err := seeders.SeedTemplates(ctx, repositories.NewProblemTemplateRepository(pool, logger), logger); err != nil {
			logger.Fatal("Ошибка наполнения шаблонов", zap.Error(err))
		}
	}
	if *runAll || *runAdmins {
		if err := seeders.SeedAdmins(ctx, repositories.NewUserRepository(pool, logger), cfg.AdminIDs, logger); err != nil {
			logger.Fatal("Ошибка создания администраторов", zap.Error(err))
		}
	}
	logger.Info("✅ Сидирование завершено")
}
