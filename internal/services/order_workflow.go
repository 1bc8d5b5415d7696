package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/internal/events"
	"repair-desk/internal/metrics"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/customvalidator"
	apperrors "repair-desk/pkg/errors"
	"repair-desk/pkg/eventbus"
	"repair-desk/pkg/keylock"
	"repair-desk/pkg/utils"
)

// EventPublisher - то, что нужно сервису от шины событий.
type EventPublisher interface {
	Publish(ctx context.Context, event eventbus.Event)
}

type OrderWorkflowInterface interface {
	CreateOrder(ctx context.Context, actorID int64, d dto.CreateOrderDTO) (*entities.Order, error)
	AssignTechnician(ctx context.Context, actorID, orderID, technicianID int64) (*repositories.AssignResult, error)
	ChangeStatus(ctx context.Context, actorID, orderID int64, to constants.OrderStatus) (*entities.Order, error)
	SetCost(ctx context.Context, actorID, orderID int64, amount float64) (*entities.Order, error)
	SetDescription(ctx context.Context, actorID, orderID int64, text string) (*entities.Order, error)
	DeleteOrder(ctx context.Context, actorID, orderID int64) error

	GetOrder(ctx context.Context, actorID, orderID int64) (*entities.Order, error)
	AssignmentHistory(ctx context.Context, actorID, orderID int64) ([]entities.Assignment, error)
	ListOrders(ctx context.Context, actorID int64, filter dto.OrderFilter) ([]entities.Order, uint64, error)
	MyOrders(ctx context.Context, actorID int64, limit, offset uint64) ([]entities.Order, uint64, error)
}

// OrderWorkflow - жизненный цикл заявки. Каждая мутация: проверка прав, проверка по
// актуальному статусу из БД, запись (CAS), событие на шину, запись в журнал.
// Мутации одной заявки выполняются по очереди.
type OrderWorkflow struct {
	orders      repositories.OrderRepositoryInterface
	assignments repositories.AssignmentRepositoryInterface
	users       repositories.UserRepositoryInterface
	gate        authz.GateInterface
	activity    ActivityLogServiceInterface
	bus         EventPublisher
	validate    *validator.Validate
	locks       *keylock.KeyedMutex[int64]
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewOrderWorkflow(
	orders repositories.OrderRepositoryInterface,
	assignments repositories.AssignmentRepositoryInterface,
	users repositories.UserRepositoryInterface,
	gate authz.GateInterface,
	activity ActivityLogServiceInterface,
	bus EventPublisher,
	validate *validator.Validate,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OrderWorkflow {
	return &OrderWorkflow{
		orders:      orders,
		assignments: assignments,
		users:       users,
		gate:        gate,
		activity:    activity,
		bus:         bus,
		validate:    validate,
		locks:       keylock.New[int64](),
		metrics:     m,
		logger:      logger.Named("order_workflow"),
	}
}

var serviceDetailStatuses = []constants.OrderStatus{constants.StatusInProgress, constants.StatusCompleted}

func (s *OrderWorkflow) logError(op string, actorID, orderID int64, err error) {
	if apperrors.IsUserFacing(err) {
		s.logger.Info("Операция отклонена", zap.String("action", op), zap.Int64("user_id", actorID), zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	s.logger.Error("Ошибка операции с заявкой", zap.String("action", op), zap.Int64("user_id", actorID), zap.Int64("order_id", orderID), zap.Error(err))
}

func (s *OrderWorkflow) record(ctx context.Context, actorID int64, action constants.ActionType, orderID int64, relatedUserID *int64, format string, args ...interface{}) {
	s.activity.Record(ctx, dto.ActivityEntryDTO{
		UserID:         actorID,
		ActionType:     action,
		Description:    fmt.Sprintf(format, args...),
		RelatedOrderID: &orderID,
		RelatedUserID:  relatedUserID,
	})
}

func (s *OrderWorkflow) normalizeOrder(d dto.CreateOrderDTO) (dto.CreateOrderDTO, error) {
	d.ClientPhone = strings.TrimSpace(d.ClientPhone)
	d.ClientName = strings.TrimSpace(d.ClientName)
	d.ClientAddress = strings.TrimSpace(d.ClientAddress)
	d.ProblemDescription = strings.TrimSpace(d.ProblemDescription)

	if err := s.validate.Struct(d); err != nil {
		return d, customvalidator.Translate(err)
	}
	d.ClientPhone = utils.NormalizePhone(d.ClientPhone, constants.MinPhoneDigits)
	return d, nil
}

func (s *OrderWorkflow) CreateOrder(ctx context.Context, actorID int64, d dto.CreateOrderDTO) (*entities.Order, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.OrdersCreate); err != nil {
		return nil, err
	}
	d, err := s.normalizeOrder(d)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Create(ctx, actorID, d)
	if err != nil {
		s.logError("order_create", actorID, 0, err)
		return nil, err
	}

	s.logger.Info("Создана заявка", zap.Int64("order_id", order.ID), zap.Int64("user_id", actorID))
	s.record(ctx, actorID, constants.ActionOrderCreate, order.ID, nil,
		"Создана заявка #%d: %s", order.ID, utils.Truncate(order.ProblemDescription, 100))
	s.bus.Publish(ctx, events.NewOrderEvent(events.OrderCreated, actorID, order, ""))
	return order, nil
}

// AssignTechnician: new -> assigned или замена мастера без смены статуса.
// Повторное назначение того же мастера ничего не меняет и не рассылается, но пишется в журнал.
func (s *OrderWorkflow) AssignTechnician(ctx context.Context, actorID, orderID, technicianID int64) (*repositories.AssignResult, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.OrdersAssign); err != nil {
		return nil, err
	}

	tech, err := s.users.FindByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("мастер", technicianID)
		}
		return nil, err
	}
	if tech.Role != constants.RoleTechnician || tech.IsDeleted() {
		return nil, apperrors.NewNotFoundError("мастер", technicianID)
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	res, err := s.orders.Assign(ctx, orderID, technicianID, actorID)
	if err != nil {
		s.logError("order_assign", actorID, orderID, err)
		return nil, err
	}

	if !res.Changed {
		s.record(ctx, actorID, constants.ActionOrderAssign, orderID, &technicianID,
			"Повторное назначение мастера %s на заявку #%d", tech.DisplayName(), orderID)
		return res, nil
	}

	if res.PreviousStatus != res.Order.Status {
		s.metrics.Transition(string(res.PreviousStatus), string(res.Order.Status))
	}
	s.record(ctx, actorID, constants.ActionOrderAssign, orderID, &technicianID,
		"Мастер %s назначен на заявку #%d", tech.DisplayName(), orderID)

	ev := events.NewOrderEvent(events.OrderAssigned, actorID, res.Order, res.PreviousStatus)
	ev.PreviousTechnicianID = res.PreviousTechnicianID
	s.bus.Publish(ctx, ev)
	return res, nil
}

// ChangeStatus ведёт заявку по графу статусов. new и assigned выставляются только назначением.
func (s *OrderWorkflow) ChangeStatus(ctx context.Context, actorID, orderID int64, to constants.OrderStatus) (*entities.Order, error) {
	var (
		role constants.Role
		err  error
	)
	switch to {
	case constants.StatusInProgress, constants.StatusCompleted:
		role, err = s.gate.RequirePermission(ctx, actorID, authz.OrdersWork)
	case constants.StatusCancelled:
		role, err = s.gate.RequirePermission(ctx, actorID, authz.OrdersCancel)
	case constants.StatusNew, constants.StatusAssigned:
		role, err = s.gate.RequirePermission(ctx, actorID, authz.OrdersAssign)
	default:
		return nil, apperrors.NewValidationError("status", "неизвестный статус %q", to)
	}
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	current, err := s.orders.FindFresh(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if to == constants.StatusNew || to == constants.StatusAssigned {
		return nil, apperrors.NewConflictError(orderID, string(current.Status), "статус %q выставляется только назначением мастера", to)
	}
	if !constants.CanTransition(current.Status, to) {
		return nil, apperrors.NewConflictError(orderID, string(current.Status), "переход в %q недопустим", to)
	}
	if to != constants.StatusCancelled && role != constants.RoleAdmin && !current.IsAssignedTo(actorID) {
		return nil, apperrors.NewAuthorizationError(actorID, "change_status")
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, current.Status, to)
	if err != nil {
		s.logError("status_update", actorID, orderID, err)
		return nil, err
	}

	s.metrics.Transition(string(current.Status), string(to))
	s.logger.Info("Статус заявки изменён", zap.Int64("order_id", orderID), zap.String("from", string(current.Status)), zap.String("to", string(to)), zap.Int64("user_id", actorID))
	s.record(ctx, actorID, constants.ActionStatusUpdate, orderID, nil,
		"Статус заявки #%d: %s → %s", orderID, current.Status.Label(), to.Label())
	s.bus.Publish(ctx, events.NewOrderEvent(events.OrderStatusChanged, actorID, updated, current.Status))
	return updated, nil
}

// serviceDetailsAllowed - общая часть SetCost и SetDescription. Возвращает актуальную заявку.
func (s *OrderWorkflow) serviceDetailsAllowed(ctx context.Context, actorID, orderID int64, role constants.Role) (*entities.Order, error) {
	current, err := s.orders.FindFresh(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !current.Status.AllowsServiceDetails() {
		return nil, apperrors.NewConflictError(orderID, string(current.Status), "результат работ указывается только в статусах «В работе» и «Выполнена»")
	}
	if role == constants.RoleTechnician && !current.IsAssignedTo(actorID) {
		return nil, apperrors.NewAuthorizationError(actorID, "service_details")
	}
	return current, nil
}

// SetCost перезаписывает стоимость: сохраняется последнее значение, каждый вызов пишется в журнал.
func (s *OrderWorkflow) SetCost(ctx context.Context, actorID, orderID int64, amount float64) (*entities.Order, error) {
	role, err := s.gate.RequirePermission(ctx, actorID, authz.OrdersServiceDetails)
	if err != nil {
		return nil, err
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, apperrors.NewValidationError("Стоимость", "нужно положительное число")
	}
	amount = math.Round(amount*100) / 100

	unlock := s.locks.Lock(orderID)
	defer unlock()

	current, err := s.serviceDetailsAllowed(ctx, actorID, orderID, role)
	if err != nil {
		return nil, err
	}
	updated, err := s.orders.SetServiceCost(ctx, orderID, amount, serviceDetailStatuses)
	if err != nil {
		s.logError("cost_update", actorID, orderID, err)
		return nil, err
	}

	s.record(ctx, actorID, constants.ActionCostUpdate, orderID, nil,
		"Стоимость работ по заявке #%d: %s", orderID, utils.FormatAmount(amount))
	ev := events.NewOrderEvent(events.OrderUpdated, actorID, updated, current.Status)
	ev.Field = events.FieldServiceCost
	s.bus.Publish(ctx, ev)
	return updated, nil
}

func (s *OrderWorkflow) SetDescription(ctx context.Context, actorID, orderID int64, text string) (*entities.Order, error) {
	role, err := s.gate.RequirePermission(ctx, actorID, authz.OrdersServiceDetails)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("Описание работ", "не может быть пустым")
	}
	if utils.RuneLen(text) > constants.MaxTextLength {
		return nil, apperrors.NewValidationError("Описание работ", "не длиннее %d символов", constants.MaxTextLength)
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	current, err := s.serviceDetailsAllowed(ctx, actorID, orderID, role)
	if err != nil {
		return nil, err
	}
	updated, err := s.orders.SetServiceDescription(ctx, orderID, text, serviceDetailStatuses)
	if err != nil {
		s.logError("description_update", actorID, orderID, err)
		return nil, err
	}

	s.record(ctx, actorID, constants.ActionDescriptionUpdate, orderID, nil,
		"Описание работ по заявке #%d: %s", orderID, utils.Truncate(text, 100))
	ev := events.NewOrderEvent(events.OrderUpdated, actorID, updated, current.Status)
	ev.Field = events.FieldServiceDescription
	s.bus.Publish(ctx, ev)
	return updated, nil
}

func (s *OrderWorkflow) DeleteOrder(ctx context.Context, actorID, orderID int64) error {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.OrdersDelete); err != nil {
		return err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	current, err := s.orders.FindFresh(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		s.logError("order_delete", actorID, orderID, err)
		return err
	}

	s.logger.Warn("Заявка удалена", zap.Int64("order_id", orderID), zap.Int64("user_id", actorID))
	s.record(ctx, actorID, constants.ActionOrderDelete, orderID, nil,
		"Удалена заявка #%d (%s, %s)", orderID, current.ClientName, current.Status.Label())
	s.bus.Publish(ctx, events.NewOrderEvent(events.OrderDeleted, actorID, current, current.Status))
	return nil
}

// GetOrder читает через кеш. Видят участники, диспетчеры и администраторы.
func (s *OrderWorkflow) GetOrder(ctx context.Context, actorID, orderID int64) (*entities.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanViewOrder(ctx, actorID, order) {
		return nil, apperrors.NewAuthorizationError(actorID, "order_view")
	}
	return order, nil
}

func (s *OrderWorkflow) AssignmentHistory(ctx context.Context, actorID, orderID int64) ([]entities.Assignment, error) {
	if _, err := s.GetOrder(ctx, actorID, orderID); err != nil {
		return nil, err
	}
	return s.assignments.ListByOrder(ctx, orderID)
}

func clampPage(limit uint64) uint64 {
	if limit == 0 || limit > utils.MaxLimit {
		return constants.MaxOrdersPerPage
	}
	return limit
}

// ListOrders - все заявки с фильтром (/all_orders).
func (s *OrderWorkflow) ListOrders(ctx context.Context, actorID int64, filter dto.OrderFilter) ([]entities.Order, uint64, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.OrdersViewAll); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, apperrors.NewValidationError("status", "неизвестный статус %q", filter.Status)
	}
	filter.Limit = clampPage(filter.Limit)
	return s.orders.List(ctx, filter)
}

// MyOrders: мастеру - назначенные на него, остальным - созданные ими.
func (s *OrderWorkflow) MyOrders(ctx context.Context, actorID int64, limit, offset uint64) ([]entities.Order, uint64, error) {
	role, err := s.gate.RequirePermission(ctx, actorID, authz.OrdersViewOwn)
	if err != nil {
		return nil, 0, err
	}
	filter := dto.OrderFilter{Limit: clampPage(limit), Offset: offset}
	if role == constants.RoleTechnician {
		filter.TechnicianID = actorID
	} else {
		filter.CreatorID = actorID
	}
	return s.orders.List(ctx, filter)
}
