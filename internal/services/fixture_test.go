package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/events"
	"repair-desk/internal/repositories/repotest"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/customvalidator"
	"repair-desk/pkg/eventbus"
)

const (
	clientID     int64 = 100
	dispatcherID int64 = 200
	techID       int64 = 300
	otherTechID  int64 = 301
	adminID      int64 = 400
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (b *recordingBus) Publish(_ context.Context, e eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if oe, ok := e.(events.OrderEvent); ok {
		b.events = append(b.events, oe)
	}
}

func (b *recordingBus) Events() []events.OrderEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.OrderEvent(nil), b.events...)
}

func (b *recordingBus) Types() []string {
	var out []string
	for _, e := range b.Events() {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	users        *repotest.Users
	orders       *repotest.Orders
	activityRepo *repotest.ActivityLog
	templates    *repotest.Templates
	gate         *authz.Gatekeeper
	activity     *ActivityLogService
	bus          *recordingBus
	workflow     *OrderWorkflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		users:        repotest.NewUsers(),
		activityRepo: repotest.NewActivityLog(),
		templates:    repotest.NewTemplates(),
		bus:          &recordingBus{},
	}
	f.users.Put(clientID, "Клиент", constants.RoleClient)
	f.users.Put(dispatcherID, "Диспетчер", constants.RoleDispatcher)
	f.users.Put(techID, "Мастер", constants.RoleTechnician)
	f.users.Put(otherTechID, "Второй мастер", constants.RoleTechnician)
	f.users.Put(adminID, "Админ", constants.RoleAdmin)
	f.orders = repotest.NewOrders(f.users)

	enforcer, err := authz.NewEnforcer(authz.DefaultPolicy)
	require.NoError(t, err)
	f.gate = authz.NewGatekeeper(f.users, enforcer, nil, logger)
	f.activity = NewActivityLogService(f.activityRepo, f.gate, 0, nil, logger)
	f.workflow = NewOrderWorkflow(f.orders, f.orders.AssignmentRepo(), f.users, f.gate, f.activity, f.bus, customvalidator.New(), nil, logger)
	return f
}

func validOrder() dto.CreateOrderDTO {
	return dto.CreateOrderDTO{
		ClientPhone:        "89991234567",
		ClientName:         "Ivan Petrov",
		ClientAddress:      "Moscow, Lenina 5",
		ProblemDescription: "laptop won't boot",
	}
}

// orderIn создаёт заявку и доводит её до нужного статуса напрямую через хранилище.
func (f *fixture) orderIn(t *testing.T, status constants.OrderStatus, technician int64) int64 {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.Create(ctx, clientID, validOrder())
	require.NoError(t, err)
	if status == constants.StatusNew {
		return o.ID
	}
	_, err = f.orders.Assign(ctx, o.ID, technician, dispatcherID)
	require.NoError(t, err)
	path := map[constants.OrderStatus][]constants.OrderStatus{
		constants.StatusAssigned:   nil,
		constants.StatusInProgress: {constants.StatusInProgress},
		constants.StatusCompleted:  {constants.StatusInProgress, constants.StatusCompleted},
		constants.StatusCancelled:  {constants.StatusCancelled},
	}
	from := constants.StatusAssigned
	for _, to := range path[status] {
		_, err = f.orders.UpdateStatus(ctx, o.ID, from, to)
		require.NoError(t, err)
		from = to
	}
	return o.ID
}

func (f *fixture) actions() []constants.ActionType {
	var out []constants.ActionType
	for _, e := range f.activityRepo.Entries() {
		out = append(out, e.ActionType)
	}
	return out
}
