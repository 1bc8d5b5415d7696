package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

type pgFixture struct {
	users       *UserRepository
	orders      *OrderRepository
	assignments *AssignmentRepository
	activity    *ActivityLogRepository
	templates   *ProblemTemplateRepository
}

func newPGFixture(t *testing.T) *pgFixture {
	pool := requireDB(t)
	logger := zap.NewNop()
	assignments := NewAssignmentRepository(pool, logger)
	return &pgFixture{
		users:       NewUserRepository(pool, logger),
		orders:      NewOrderRepository(pool, NewTxManager(pool), assignments, logger),
		assignments: assignments,
		activity:    NewActivityLogRepository(pool, logger),
		templates:   NewProblemTemplateRepository(pool, logger),
	}
}

func (f *pgFixture) user(t *testing.T, id int64, role constants.Role) {
	t.Helper()
	_, res, err := f.users.Upsert(context.Background(), dto.TelegramProfileDTO{ID: id, FirstName: "U"}, role)
	require.NoError(t, err)
	require.True(t, res.Created)
}

func sampleOrder() dto.CreateOrderDTO {
	return dto.CreateOrderDTO{
		ClientPhone:        "+79991234567",
		ClientName:         "Анна",
		ClientAddress:      "ул. Ленина, 1",
		ProblemDescription: "Не включается ноутбук",
	}
}

func TestOrderRepository_Integration_RoundTripWithAbsentOptionalFields(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	f.user(t, 100, constants.RoleDispatcher)

	created, err := f.orders.Create(ctx, 100, sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, constants.StatusNew, created.Status)

	got, err := f.orders.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleOrder().ClientName, got.ClientName)
	assert.False(t, got.ServiceCost.Valid)
	assert.False(t, got.ServiceDescription.Valid)
	assert.False(t, got.AssignedTechnicianID.Valid)
	assert.False(t, got.CompletedAt.Valid)
}

func TestOrderRepository_Integration_UpdateStatusIsCompareAndSet(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	f.user(t, 100, constants.RoleDispatcher)
	f.user(t, 200, constants.RoleTechnician)

	o, err := f.orders.Create(ctx, 100, sampleOrder())
	require.NoError(t, err)
	_, err = f.orders.Assign(ctx, o.ID, 200, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.orders.UpdateStatus(ctx, o.ID, constants.StatusAssigned, constants.StatusInProgress)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range results {
		var ce *apperrors.ConflictError
		switch {
		case err == nil:
			ok++
		case assert.ErrorAs(t, err, &ce):
			conflicts++
			assert.Equal(t, string(constants.StatusInProgress), ce.CurrentStatus)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	_, err = f.orders.UpdateStatus(ctx, 9999, constants.StatusNew, constants.StatusAssigned)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrderRepository_Integration_ReassignClosesPreviousAssignment(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	f.user(t, 100, constants.RoleDispatcher)
	f.user(t, 200, constants.RoleTechnician)
	f.user(t, 300, constants.RoleTechnician)

	o, err := f.orders.Create(ctx, 100, sampleOrder())
	require.NoError(t, err)

	res, err := f.orders.Assign(ctx, o.ID, 200, 100)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, constants.StatusAssigned, res.Order.Status)

	res, err = f.orders.Assign(ctx, o.ID, 200, 100)
	require.NoError(t, err)
	assert.False(t, res.Changed, "тот же мастер - без изменений")

	res, err = f.orders.Assign(ctx, o.ID, 300, 100)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, int64(200), res.PreviousTechnicianID)
	assert.Equal(t, constants.StatusAssigned, res.Order.Status)

	active, err := f.assignments.FindActive(ctx, nil, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), active.TechnicianID)

	history, err := f.assignments.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	var closed int
	for _, a := range history {
		if !a.IsActive() {
			closed++
		}
	}
	assert.Equal(t, 1, closed)
}

func TestOrderRepository_Integration_ServiceCostLatestWins(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	f.user(t, 100, constants.RoleDispatcher)
	f.user(t, 200, constants.RoleTechnician)

	o, _ := f.orders.Create(ctx, 100, sampleOrder())
	allowed := []constants.OrderStatus{constants.StatusInProgress, constants.StatusCompleted}

	_, err := f.orders.SetServiceCost(ctx, o.ID, 1500, allowed)
	var ce *apperrors.ConflictError
	require.ErrorAs(t, err, &ce, "в статусе new стоимость не меняется")

	_, _ = f.orders.Assign(ctx, o.ID, 200, 100)
	_, err = f.orders.UpdateStatus(ctx, o.ID, constants.StatusAssigned, constants.StatusInProgress)
	require.NoError(t, err)

	_, err = f.orders.SetServiceCost(ctx, o.ID, 1500, allowed)
	require.NoError(t, err)
	updated, err := f.orders.SetServiceCost(ctx, o.ID, 1500.5, allowed)
	require.NoError(t, err)
	assert.InDelta(t, 1500.5, updated.ServiceCost.Float64, 0.001)

	stats, err := f.orders.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByStatus[string(constants.StatusInProgress)])
	require.Len(t, stats.ByTechnician, 1)
	assert.Equal(t, int64(1), stats.ByTechnician[0].Active)
}

func TestActivityLogRepository_Integration_QueryFilters(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	orderID := int64(5)
	target := int64(77)
	entries := []dto.ActivityEntryDTO{
		{UserID: 1, ActionType: constants.ActionOrderCreate, Description: "a", RelatedOrderID: &orderID},
		{UserID: 1, ActionType: constants.ActionRoleChange, Description: "b", RelatedUserID: &target},
		{UserID: 2, ActionType: constants.ActionStatusUpdate, Description: "c", RelatedOrderID: &orderID},
	}
	for _, e := range entries {
		_, err := f.activity.Append(ctx, e)
		require.NoError(t, err)
	}

	all, err := f.activity.Query(ctx, dto.ActivityFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Description, "новые сверху")

	byOrder, err := f.activity.Query(ctx, dto.ActivityFilter{OrderID: &orderID}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)

	user1 := int64(1)
	combined, err := f.activity.Query(ctx, dto.ActivityFilter{UserID: &user1, RelatedUserID: &target}, 10, 0)
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, constants.ActionRoleChange, combined[0].ActionType)
	assert.False(t, combined[0].RelatedOrderID.Valid)
}

func TestUserRepository_Integration_SoftDeleteAndRestore(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	f.user(t, 10, constants.RoleTechnician)

	require.NoError(t, f.users.SoftDelete(ctx, 10))
	u, err := f.users.FindByID(ctx, 10)
	require.NoError(t, err)
	assert.True(t, u.IsDeleted())

	techs, err := f.users.ListByRole(ctx, constants.RoleTechnician)
	require.NoError(t, err)
	assert.Empty(t, techs)

	require.NoError(t, f.users.UpdateRole(ctx, 10, constants.RoleTechnician))
	u, _ = f.users.FindByID(ctx, 10)
	assert.False(t, u.IsDeleted())

	_, res, err := f.users.Upsert(ctx, dto.TelegramProfileDTO{ID: 10, FirstName: "Новое имя"}, constants.RoleClient)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Changed)

	_, res, err = f.users.Upsert(ctx, dto.TelegramProfileDTO{ID: 10, FirstName: "Новое имя"}, constants.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{}, res, "тот же профиль не переписывает строку")
	u, _ = f.users.FindByID(ctx, 10)
	assert.Equal(t, "Новое имя", u.FirstName)
	assert.Equal(t, constants.RoleTechnician, u.Role, "роль при повторном обращении не сбрасывается")
}

func TestProblemTemplateRepository_Integration(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	d := dto.CreateTemplateDTO{Title: "Не включается", Description: "Устройство не включается"}
	_, err := f.templates.Create(ctx, d)
	require.NoError(t, err)
	_, err = f.templates.Create(ctx, d)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	inserted, err := f.templates.EnsureExists(ctx, d)
	require.NoError(t, err)
	assert.False(t, inserted)

	list, err := f.templates.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
