package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repair-desk/internal/entities"
	"repair-desk/internal/repositories/repotest"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

const (
	clientID     int64 = 100
	dispatcherID int64 = 200
	techID       int64 = 300
	adminID      int64 = 400
	configAdmin  int64 = 999
)

func newTestGate(t *testing.T) (*Gatekeeper, *repotest.Users) {
	t.Helper()
	users := repotest.NewUsers()
	users.Put(clientID, "Клиент", constants.RoleClient)
	users.Put(dispatcherID, "Диспетчер", constants.RoleDispatcher)
	users.Put(techID, "Мастер", constants.RoleTechnician)
	users.Put(adminID, "Админ", constants.RoleAdmin)

	enforcer, err := NewEnforcer(DefaultPolicy)
	require.NoError(t, err)
	return NewGatekeeper(users, enforcer, []int64{configAdmin}, zap.NewNop()), users
}

func TestRoleOf(t *testing.T) {
	gate, users := newTestGate(t)
	ctx := context.Background()

	role, err := gate.RoleOf(ctx, techID)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleTechnician, role)

	role, err = gate.RoleOf(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleClient, role, "незнакомый пользователь - клиент")

	role, err = gate.RoleOf(ctx, configAdmin)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleAdmin, role, "ADMIN_IDS всегда администраторы")

	require.NoError(t, users.SoftDelete(ctx, dispatcherID))
	_, err = gate.RoleOf(ctx, dispatcherID)
	assert.ErrorIs(t, err, apperrors.ErrUserDisabled)

	users.FailWith = errors.New("connection refused")
	_, err = gate.RoleOf(ctx, techID)
	var se *apperrors.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestRequire(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	_, err := gate.Require(ctx, clientID, "all_orders", constants.RoleDispatcher, constants.RoleAdmin)
	var ae *apperrors.AuthorizationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, clientID, ae.UserID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	role, err := gate.Require(ctx, dispatcherID, "all_orders", constants.RoleDispatcher, constants.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleDispatcher, role)
}

func TestCan_DefaultPolicy(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     int64
		permission string
		want       bool
	}{
		{"клиент создаёт заявку", clientID, OrdersCreate, true},
		{"клиент не видит все заявки", clientID, OrdersViewAll, false},
		{"клиент не назначает", clientID, OrdersAssign, false},
		{"диспетчер назначает", dispatcherID, OrdersAssign, true},
		{"диспетчер отменяет", dispatcherID, OrdersCancel, true},
		{"диспетчер не удаляет", dispatcherID, OrdersDelete, false},
		{"мастер работает", techID, OrdersWork, true},
		{"мастер не отменяет", techID, OrdersCancel, false},
		{"мастер не смотрит журнал", techID, ActivityView, false},
		{"админ удаляет заявку", adminID, OrdersDelete, true},
		{"админ управляет пользователями", adminID, UsersManage, true},
		{"админ из конфига выгружает отчёт", configAdmin, ReportsExport, true},
		{"некорректный пермишен", adminID, "orders", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Can(ctx, tt.userID, tt.permission))
		})
	}
}

func TestRequirePermission(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	_, err := gate.RequirePermission(ctx, techID, StatsView)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	role, err := gate.RequirePermission(ctx, dispatcherID, StatsView)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleDispatcher, role)
}

func TestCanViewOrder(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	order := &entities.Order{ID: 1, CreatorID: clientID, AssignedTechnicianID: null.Int64From(techID)}

	assert.True(t, gate.CanViewOrder(ctx, clientID, order), "создатель")
	assert.True(t, gate.CanViewOrder(ctx, techID, order), "назначенный мастер")
	assert.True(t, gate.CanViewOrder(ctx, dispatcherID, order))
	assert.True(t, gate.CanViewOrder(ctx, adminID, order))
	assert.False(t, gate.CanViewOrder(ctx, 555, order), "посторонний клиент")
}

func TestNewEnforcer_RejectsBadPolicy(t *testing.T) {
	_, err := NewEnforcer(map[constants.Role][]string{"boss": {OrdersCreate}})
	assert.Error(t, err)

	_, err = NewEnforcer(map[constants.Role][]string{constants.RoleClient: {"orders"}})
	assert.Error(t, err)
}
