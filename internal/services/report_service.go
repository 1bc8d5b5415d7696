package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/utils"
)

const (
	ordersSheet      = "Заявки"
	techniciansSheet = "Мастера"
)

type ReportServiceInterface interface {
	Stats(ctx context.Context, actorID int64) (*entities.OrderStats, error)
	ExportOrders(ctx context.Context, actorID int64) (*dto.Document, error)
}

type ReportService struct {
	orders   repositories.OrderRepositoryInterface
	users    repositories.UserRepositoryInterface
	gate     authz.GateInterface
	activity ActivityLogServiceInterface
	now      func() time.Time
	logger   *zap.Logger
}

func NewReportService(
	orders repositories.OrderRepositoryInterface,
	users repositories.UserRepositoryInterface,
	gate authz.GateInterface,
	activity ActivityLogServiceInterface,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		orders:   orders,
		users:    users,
		gate:     gate,
		activity: activity,
		now:      time.Now,
		logger:   logger.Named("report_service"),
	}
}

// Stats - сводка (кешируется на уровне репозитория).
func (s *ReportService) Stats(ctx context.Context, actorID int64) (*entities.OrderStats, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.StatsView); err != nil {
		return nil, err
	}
	return s.orders.Stats(ctx)
}

var reportHeaders = []interface{}{
	"№", "Создана", "Статус", "Клиент", "Телефон", "Адрес", "Проблема",
	"Мастер", "Стоимость", "Описание работ", "Выполнена", "Время выполнения",
}

var technicianHeaders = []interface{}{"ID", "Мастер", "В работе", "Выполнено", "Выручка"}

func (s *ReportService) technicianNames(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	techs, err := s.users.ListByRole(ctx, constants.RoleTechnician)
	if err != nil {
		s.logger.Warn("Не удалось получить мастеров для отчёта", zap.Error(err))
		return names
	}
	for _, t := range techs {
		names[t.ID] = t.DisplayName()
	}
	return names
}

func orderRow(o entities.Order, techNames map[int64]string) []interface{} {
	var tech, cost, completed, duration string
	if o.AssignedTechnicianID.Valid {
		tech = techNames[o.AssignedTechnicianID.Int64]
		if tech == "" {
			tech = fmt.Sprintf("#%d", o.AssignedTechnicianID.Int64)
		}
	}
	if o.ServiceCost.Valid {
		cost = utils.FormatAmount(o.ServiceCost.Float64)
	}
	if o.CompletedAt.Valid {
		completed = utils.FormatTime(o.CompletedAt.Time)
		duration = utils.FormatDuration(o.CompletedAt.Time.Sub(o.CreatedAt))
	}
	return []interface{}{
		o.ID, utils.FormatTime(o.CreatedAt), o.Status.Label(), o.ClientName, o.ClientPhone, o.ClientAddress,
		o.ProblemDescription, tech, cost, o.ServiceDescription.String, completed, duration,
	}
}

// ExportOrders строит XLSX со всеми заявками и нагрузкой мастеров.
func (s *ReportService) ExportOrders(ctx context.Context, actorID int64) (*dto.Document, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.ReportsExport); err != nil {
		return nil, err
	}

	orders, _, err := s.orders.List(ctx, dto.OrderFilter{})
	if err != nil {
		return nil, err
	}
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ordersSheet); err != nil {
		return nil, fmt.Errorf("ошибка подготовки листа: %w", err)
	}
	if err := f.SetSheetRow(ordersSheet, "A1", &reportHeaders); err != nil {
		return nil, fmt.Errorf("ошибка записи заголовка: %w", err)
	}
	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(ordersSheet, "A1", "L1", style)

	techNames := s.technicianNames(ctx)
	for i, o := range orders {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := orderRow(o, techNames)
		if err := f.SetSheetRow(ordersSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("ошибка записи строки %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(ordersSheet, "B", "B", 18)
	_ = f.SetColWidth(ordersSheet, "C", "E", 16)
	_ = f.SetColWidth(ordersSheet, "F", "G", 40)
	_ = f.SetColWidth(ordersSheet, "H", "H", 25)
	_ = f.SetColWidth(ordersSheet, "J", "J", 40)

	if _, err := f.NewSheet(techniciansSheet); err != nil {
		return nil, fmt.Errorf("ошибка создания листа мастеров: %w", err)
	}
	_ = f.SetSheetRow(techniciansSheet, "A1", &technicianHeaders)
	_ = f.SetCellStyle(techniciansSheet, "A1", "E1", style)
	for i, w := range stats.ByTechnician {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{w.TechnicianID, w.Name, w.Active, w.Completed, w.Revenue}
		_ = f.SetSheetRow(techniciansSheet, cell, &row)
	}
	_ = f.SetColWidth(techniciansSheet, "B", "B", 25)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения XLSX: %w", err)
	}

	s.activity.Record(ctx, dto.ActivityEntryDTO{
		UserID:      actorID,
		ActionType:  constants.ActionReportExport,
		Description: fmt.Sprintf("Выгрузка заявок: %d шт.", len(orders)),
	})

	return &dto.Document{
		FileName: fmt.Sprintf("orders_%s.xlsx", s.now().Format("2006-01-02")),
		Content:  buf.Bytes(),
		Caption:  fmt.Sprintf("Заявки: %d, выручка: %s", stats.Total, utils.FormatAmount(stats.Revenue)),
	}, nil
}
