package repotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	apperrors "repair-desk/pkg/errors"
)

type Templates struct {
	mu        sync.Mutex
	templates []entities.ProblemTemplate
}

func NewTemplates(items ...dto.CreateTemplateDTO) *Templates {
	r := &Templates{}
	for _, d := range items {
		_, _ = r.Create(context.Background(), d)
	}
	return r
}

func (r *Templates) FindByID(_ context.Context, id int64) (*entities.ProblemTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.ID == id && t.IsActive {
			cp := t
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError("шаблон", id)
}

func (r *Templates) ListActive(_ context.Context) ([]entities.ProblemTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.ProblemTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *Templates) Create(_ context.Context, d dto.CreateTemplateDTO) (*entities.ProblemTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.Title == d.Title {
			return nil, fmt.Errorf("шаблон %q уже есть: %w", d.Title, apperrors.ErrConflict)
		}
	}
	t := entities.ProblemTemplate{
		ID:          int64(len(r.templates) + 1),
		Title:       d.Title,
		Description: d.Description,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	r.templates = append(r.templates, t)
	return &t, nil
}

func (r *Templates) EnsureExists(ctx context.Context, d dto.CreateTemplateDTO) (bool, error) {
	_, err := r.Create(ctx, d)
	if err != nil {
		return false, nil
	}
	return true, nil
}
