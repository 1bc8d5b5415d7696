// Package repotest - репозитории в памяти для тестов сервисов и диалогов.
// Повторяют поведение PostgreSQL-реализаций: те же ошибки, CAS по статусу, мягкое удаление.
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

type Users struct {
	mu    sync.Mutex
	users map[int64]*entities.User
	// FailWith - если задано, любой вызов возвращает StorageError с этой причиной.
	FailWith error
}

func NewUsers(users ...entities.User) *Users {
	r := &Users{users: make(map[int64]*entities.User)}
	for _, u := range users {
		u := u
		r.users[u.ID] = &u
	}
	return r
}

// Put добавляет пользователя с ролью (для подготовки теста).
func (r *Users) Put(id int64, name string, role constants.Role) *entities.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	u := &entities.User{ID: id, FirstName: name, Role: role, IsApproved: role != constants.RoleClient}
	u.CreatedAt, u.UpdatedAt = now, now
	r.users[id] = u
	cp := *u
	return &cp
}

func (r *Users) fail(op string) error {
	if r.FailWith != nil {
		return apperrors.NewStorageError(op, r.FailWith)
	}
	return nil
}

func (r *Users) FindByID(_ context.Context, id int64) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("users.find"); err != nil {
		return nil, err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("пользователь", id)
	}
	cp := *u
	return &cp, nil
}

func (r *Users) Upsert(_ context.Context, p dto.TelegramProfileDTO, roleOnCreate constants.Role) (*entities.User, repositories.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("users.upsert"); err != nil {
		return nil, repositories.UpsertResult{}, err
	}
	now := time.Now()
	u, ok := r.users[p.ID]
	if !ok {
		u = &entities.User{ID: p.ID, Role: roleOnCreate, IsApproved: roleOnCreate != constants.RoleClient}
		u.CreatedAt = now
		r.users[p.ID] = u
	}
	lastName := null.NewString(p.LastName, p.LastName != "")
	username := null.NewString(p.Username, p.Username != "")
	changed := !ok || u.FirstName != p.FirstName || u.LastName != lastName || u.Username != username
	if changed {
		u.FirstName = p.FirstName
		u.LastName = lastName
		u.Username = username
		u.UpdatedAt = now
	}
	cp := *u
	return &cp, repositories.UpsertResult{Created: !ok, Changed: changed}, nil
}

func (r *Users) UpdateRole(_ context.Context, id int64, role constants.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("users.update_role"); err != nil {
		return err
	}
	u, ok := r.users[id]
	if !ok {
		return apperrors.NewNotFoundError("пользователь", id)
	}
	u.Role = role
	u.IsApproved = true
	u.DeletedAt = null.Time{}
	u.UpdatedAt = time.Now()
	return nil
}

func (r *Users) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("users.soft_delete"); err != nil {
		return err
	}
	u, ok := r.users[id]
	if !ok || u.IsDeleted() {
		return apperrors.NewNotFoundError("пользователь", id)
	}
	u.DeletedAt = null.TimeFrom(time.Now())
	return nil
}

func (r *Users) sorted(keep func(*entities.User) bool) []entities.User {
	out := make([]entities.User, 0)
	for _, u := range r.users {
		if !u.IsDeleted() && keep(u) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Users) ListByRole(_ context.Context, role constants.Role) ([]entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("users.list_by_role"); err != nil {
		return nil, err
	}
	return r.sorted(func(u *entities.User) bool { return u.Role == role }), nil
}

func (r *Users) List(_ context.Context, limit, offset uint64) ([]entities.User, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("users.list"); err != nil {
		return nil, 0, err
	}
	all := r.sorted(func(*entities.User) bool { return true })
	return page(all, limit, offset), uint64(len(all)), nil
}

func page[T any](items []T, limit, offset uint64) []T {
	if offset >= uint64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < uint64(len(items)) {
		items = items[:limit]
	}
	return items
}
