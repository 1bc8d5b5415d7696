package listeners

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repair-desk/internal/entities"
	"repair-desk/internal/events"
	"repair-desk/internal/integrations/broker"
	"repair-desk/internal/repositories/repotest"
	"repair-desk/internal/services"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/eventbus"
)

const (
	adminID      int64 = 1
	dispatcherID int64 = 2
	techID       int64 = 3
	oldTechID    int64 = 4
	clientID     int64 = 5
)

type notice struct {
	recipients []int64
	message    string
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []notice
	admin []int64
}

func (n *fakeNotifier) Notify(_ context.Context, ids []int64, message string, _ services.NotifyOptions) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notice{recipients: ids, message: message})
	return len(ids)
}

func (n *fakeNotifier) NotifySystemError(context.Context, string, error, bool) bool { return false }
func (n *fakeNotifier) AdminIDs(context.Context) []int64                           { return n.admin }
func (n *fakeNotifier) Wait(context.Context) error                                 { return nil }

func (n *fakeNotifier) notices() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.sent...)
}

func newUsers() *repotest.Users {
	users := repotest.NewUsers()
	users.Put(adminID, "Админ", constants.RoleAdmin)
	users.Put(dispatcherID, "Ольга", constants.RoleDispatcher)
	users.Put(techID, "Сергей", constants.RoleTechnician)
	users.Put(oldTechID, "Павел", constants.RoleTechnician)
	users.Put(clientID, "Иван", constants.RoleClient)
	return users
}

func sampleOrder(status constants.OrderStatus, tech int64) *entities.Order {
	o := &entities.Order{
		ID:                 10,
		CreatorID:          clientID,
		ClientPhone:        "+79991234567",
		ClientName:         "Иван Петров",
		ClientAddress:      "Москва, Ленина 5",
		ProblemDescription: "Не загружается ноутбук",
		Status:             status,
	}
	if tech != 0 {
		o.AssignedTechnicianID = null.Int64From(tech)
	}
	return o
}

func publishAndWait(t *testing.T, bus *eventbus.Bus, e events.OrderEvent) {
	t.Helper()
	bus.Publish(context.Background(), e)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Wait(ctx))
}

func TestNotificationListener_Recipients(t *testing.T) {
	cases := []struct {
		name  string
		event events.OrderEvent
		want  []int64
		text  string
	}{
		{
			name:  "новая заявка только администраторам",
			event: events.NewOrderEvent(events.OrderCreated, dispatcherID, sampleOrder(constants.StatusNew, 0), ""),
			want:  []int64{adminID},
			text:  "Новая заявка #10",
		},
		{
			name: "назначение: мастер, прежний мастер, создатель",
			event: func() events.OrderEvent {
				e := events.NewOrderEvent(events.OrderAssigned, adminID, sampleOrder(constants.StatusAssigned, techID), constants.StatusNew)
				e.PreviousTechnicianID = oldTechID
				return e
			}(),
			want: []int64{techID, oldTechID, clientID},
			text: "назначен мастер Сергей",
		},
		{
			name:  "смена статуса мастером: ему самому не пишем",
			event: events.NewOrderEvent(events.OrderStatusChanged, techID, sampleOrder(constants.StatusInProgress, techID), constants.StatusAssigned),
			want:  []int64{adminID, clientID},
			text:  "Назначена → ⏳ В работе",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &fakeNotifier{admin: []int64{adminID}}
			bus := eventbus.New(zap.NewNop())
			NewNotificationListener(notifier, newUsers(), zap.NewNop()).Register(bus)

			publishAndWait(t, bus, tc.event)

			sent := notifier.notices()
			require.Len(t, sent, 1)
			assert.ElementsMatch(t, tc.want, sent[0].recipients)
			assert.Contains(t, sent[0].message, tc.text)
			assert.Contains(t, sent[0].message, "Кто:")
		})
	}
}

func TestNotificationListener_CostMessage(t *testing.T) {
	notifier := &fakeNotifier{}
	l := NewNotificationListener(notifier, newUsers(), zap.NewNop())

	o := sampleOrder(constants.StatusInProgress, techID)
	o.ServiceCost = null.Float64From(1500)
	e := events.NewOrderEvent(events.OrderUpdated, techID, o, constants.StatusInProgress)
	e.Field = events.FieldServiceCost

	msg := l.formatMessage(context.Background(), e)
	assert.Contains(t, msg, "стоимость работ")
	assert.Contains(t, msg, "Кто: Сергей")
}

func TestNotificationListener_NobodyToNotify(t *testing.T) {
	notifier := &fakeNotifier{admin: []int64{adminID}}
	l := NewNotificationListener(notifier, newUsers(), zap.NewNop())

	err := l.handleOrderEvent(context.Background(), events.NewOrderEvent(events.OrderCreated, adminID, sampleOrder(constants.StatusNew, 0), ""))
	require.NoError(t, err)
	assert.Empty(t, notifier.notices())
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	envs []broker.Envelope
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key string, env broker.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.envs = append(p.envs, env)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestBrokerListener_PublishesVersionedKey(t *testing.T) {
	pub := &fakePublisher{}
	bus := eventbus.New(zap.NewNop())
	NewBrokerListener(pub, nil, zap.NewNop()).Register(bus)

	o := sampleOrder(constants.StatusCompleted, techID)
	o.ServiceCost = null.Float64From(900)
	e := events.NewOrderEvent(events.OrderUpdated, techID, o, constants.StatusCompleted)
	e.Field = events.FieldServiceCost
	publishAndWait(t, bus, e)

	require.Equal(t, []string{"order.updated.v1"}, pub.keys)
	env := pub.envs[0]
	assert.Equal(t, "order.updated.v1", env.Meta.Type)

	payload, ok := env.Data.(OrderEventPayload)
	require.True(t, ok)
	assert.Equal(t, int64(10), payload.OrderID)
	assert.Equal(t, techID, payload.TechnicianID)
	require.NotNil(t, payload.ServiceCost)
	assert.Equal(t, 900.0, *payload.ServiceCost)
}

func TestBrokerListener_ReturnsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	l := NewBrokerListener(pub, nil, zap.NewNop())

	err := l.handleOrderEvent(context.Background(), events.NewOrderEvent(events.OrderDeleted, adminID, sampleOrder(constants.StatusNew, 0), constants.StatusNew))
	assert.ErrorContains(t, err, "order.deleted.v1")
}
