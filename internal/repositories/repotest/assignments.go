package repotest

import (
	"context"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5"

	"repair-desk/internal/entities"
	"repair-desk/internal/repositories"
	apperrors "repair-desk/pkg/errors"
)

// Assignments - назначения, которые ведёт Orders.Assign. Транзакция игнорируется.
type Assignments struct {
	orders *Orders
}

var _ repositories.AssignmentRepositoryInterface = (*Assignments)(nil)

func (r *Orders) AssignmentRepo() *Assignments {
	return &Assignments{orders: r}
}

func (a *Assignments) FindActive(_ context.Context, _ pgx.Tx, orderID int64) (*entities.Assignment, error) {
	for _, as := range a.orders.Assignments(orderID) {
		if as.IsActive() {
			cp := as
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (a *Assignments) ListByOrder(_ context.Context, orderID int64) ([]entities.Assignment, error) {
	out := a.orders.Assignments(orderID)
	if out == nil {
		out = []entities.Assignment{}
	}
	return out, nil
}

func (a *Assignments) CloseActive(_ context.Context, _ pgx.Tx, orderID int64) error {
	a.orders.mu.Lock()
	defer a.orders.mu.Unlock()
	for i := range a.orders.assignments {
		if a.orders.assignments[i].OrderID == orderID && a.orders.assignments[i].IsActive() {
			a.orders.assignments[i].ClosedAt = null.TimeFrom(time.Now())
		}
	}
	return nil
}

func (a *Assignments) Create(_ context.Context, _ pgx.Tx, as entities.Assignment) (*entities.Assignment, error) {
	a.orders.mu.Lock()
	defer a.orders.mu.Unlock()
	as.ID = int64(len(a.orders.assignments) + 1)
	as.AssignedAt = time.Now()
	a.orders.assignments = append(a.orders.assignments, as)
	return &as, nil
}
