package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aarondl/null/v8"

	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

var (
	_ repositories.UserRepositoryInterface            = (*Users)(nil)
	_ repositories.OrderRepositoryInterface           = (*Orders)(nil)
	_ repositories.ActivityLogRepositoryInterface     = (*ActivityLog)(nil)
	_ repositories.ProblemTemplateRepositoryInterface = (*Templates)(nil)
)

// Orders хранит заявки и назначения вместе, как одна транзакция в PostgreSQL.
type Orders struct {
	mu          sync.Mutex
	orders      map[int64]*entities.Order
	assignments []entities.Assignment
	nextID      int64
	users       *Users
	FailWith    error
}

// NewOrders: users нужен для статистики по мастерам, может быть nil.
func NewOrders(users *Users) *Orders {
	return &Orders{orders: make(map[int64]*entities.Order), users: users}
}

func (r *Orders) fail(op string) error {
	if r.FailWith != nil {
		return apperrors.NewStorageError(op, r.FailWith)
	}
	return nil
}

// Put кладёт заявку как есть (для подготовки теста) и возвращает её id.
func (r *Orders) Put(o entities.Order) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == 0 {
		r.nextID++
		o.ID = r.nextID
	} else if o.ID > r.nextID {
		r.nextID = o.ID
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
		o.UpdatedAt = o.CreatedAt
	}
	r.orders[o.ID] = &o
	return o.ID
}

func (r *Orders) Create(_ context.Context, creatorID int64, d dto.CreateOrderDTO) (*entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.create"); err != nil {
		return nil, err
	}
	r.nextID++
	now := time.Now()
	o := &entities.Order{
		ID:                 r.nextID,
		CreatorID:          creatorID,
		ClientPhone:        d.ClientPhone,
		ClientName:         d.ClientName,
		ClientAddress:      d.ClientAddress,
		ProblemDescription: d.ProblemDescription,
		Status:             constants.StatusNew,
	}
	o.CreatedAt, o.UpdatedAt = now, now
	r.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (r *Orders) find(id int64) (*entities.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("заявка", id)
	}
	return o, nil
}

func (r *Orders) FindByID(_ context.Context, id int64) (*entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.find"); err != nil {
		return nil, err
	}
	o, err := r.find(id)
	if err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (r *Orders) FindFresh(ctx context.Context, id int64) (*entities.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *Orders) List(_ context.Context, f dto.OrderFilter) ([]entities.Order, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.list"); err != nil {
		return nil, 0, err
	}
	out := make([]entities.Order, 0)
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.TechnicianID != 0 && !o.IsAssignedTo(f.TechnicianID) {
			continue
		}
		if f.CreatorID != 0 && o.CreatorID != f.CreatorID {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), uint64(len(out)), nil
}

func (r *Orders) UpdateStatus(_ context.Context, id int64, from, to constants.OrderStatus) (*entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.update_status"); err != nil {
		return nil, err
	}
	o, err := r.find(id)
	if err != nil {
		return nil, err
	}
	if o.Status != from {
		return nil, apperrors.NewConflictError(id, string(o.Status), "статус уже изменён, ожидался %q", from)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	if to == constants.StatusCompleted {
		o.CompletedAt = null.TimeFrom(o.UpdatedAt)
	}
	cp := *o
	return &cp, nil
}

func (r *Orders) Assign(_ context.Context, orderID, technicianID, assignedBy int64) (*repositories.AssignResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.assign"); err != nil {
		return nil, err
	}
	o, err := r.find(orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsFinal() {
		return nil, apperrors.NewConflictError(orderID, string(o.Status), "заявка закрыта, назначение невозможно")
	}
	res := &repositories.AssignResult{PreviousStatus: o.Status, PreviousTechnicianID: o.AssignedTechnicianID.Int64}
	if o.IsAssignedTo(technicianID) {
		cp := *o
		res.Order = &cp
		return res, nil
	}

	now := time.Now()
	for i := range r.assignments {
		if r.assignments[i].OrderID == orderID && r.assignments[i].IsActive() {
			r.assignments[i].ClosedAt = null.TimeFrom(now)
		}
	}
	r.assignments = append(r.assignments, entities.Assignment{
		ID:           int64(len(r.assignments) + 1),
		OrderID:      orderID,
		TechnicianID: technicianID,
		AssignedBy:   assignedBy,
		AssignedAt:   now,
	})
	if o.Status == constants.StatusNew {
		o.Status = constants.StatusAssigned
	}
	o.AssignedTechnicianID = null.Int64From(technicianID)
	o.UpdatedAt = now

	cp := *o
	res.Order = &cp
	res.Changed = true
	return res, nil
}

func (r *Orders) setField(id int64, allowed []constants.OrderStatus, apply func(o *entities.Order)) (*entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.update_service"); err != nil {
		return nil, err
	}
	o, err := r.find(id)
	if err != nil {
		return nil, err
	}
	ok := false
	for _, s := range allowed {
		if s == o.Status {
			ok = true
		}
	}
	if !ok {
		return nil, apperrors.NewConflictError(id, string(o.Status), "поле можно менять только в статусах %v", allowed)
	}
	apply(o)
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (r *Orders) SetServiceCost(_ context.Context, id int64, cost float64, allowed []constants.OrderStatus) (*entities.Order, error) {
	return r.setField(id, allowed, func(o *entities.Order) { o.ServiceCost = null.Float64From(cost) })
}

func (r *Orders) SetServiceDescription(_ context.Context, id int64, text string, allowed []constants.OrderStatus) (*entities.Order, error) {
	return r.setField(id, allowed, func(o *entities.Order) { o.ServiceDescription = null.StringFrom(text) })
}

func (r *Orders) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.delete"); err != nil {
		return err
	}
	if _, err := r.find(id); err != nil {
		return err
	}
	delete(r.orders, id)
	return nil
}

func (r *Orders) Stats(ctx context.Context) (*entities.OrderStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("orders.stats"); err != nil {
		return nil, err
	}
	stats := &entities.OrderStats{ByStatus: make(map[string]int64)}
	perTech := make(map[int64]*entities.TechnicianWorkload)
	if r.users != nil {
		techs, _ := r.users.ListByRole(ctx, constants.RoleTechnician)
		for _, t := range techs {
			perTech[t.ID] = &entities.TechnicianWorkload{TechnicianID: t.ID, Name: t.FirstName}
		}
	}

	var completed int64
	var totalSeconds float64
	for _, o := range r.orders {
		stats.Total++
		stats.ByStatus[string(o.Status)]++
		w := perTech[o.AssignedTechnicianID.Int64]
		switch o.Status {
		case constants.StatusAssigned, constants.StatusInProgress:
			if w != nil {
				w.Active++
			}
		case constants.StatusCompleted:
			completed++
			stats.Revenue += o.ServiceCost.Float64
			if o.CompletedAt.Valid {
				totalSeconds += o.CompletedAt.Time.Sub(o.CreatedAt).Seconds()
			}
			if w != nil {
				w.Completed++
				w.Revenue += o.ServiceCost.Float64
			}
		}
	}
	if completed > 0 {
		stats.AvgCompletionSeconds = totalSeconds / float64(completed)
	}
	for _, w := range perTech {
		stats.ByTechnician = append(stats.ByTechnician, *w)
	}
	sort.Slice(stats.ByTechnician, func(i, j int) bool {
		return stats.ByTechnician[i].TechnicianID < stats.ByTechnician[j].TechnicianID
	})
	return stats, nil
}

// Assignments - история назначений заявки (для проверок в тестах).
func (r *Orders) Assignments(orderID int64) []entities.Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Assignment
	for _, a := range r.assignments {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out
}
