package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/customvalidator"
	apperrors "repair-desk/pkg/errors"
)

type ProblemTemplateServiceInterface interface {
	List(ctx context.Context, actorID int64) ([]entities.ProblemTemplate, error)
	Get(ctx context.Context, actorID, templateID int64) (*entities.ProblemTemplate, error)
	Create(ctx context.Context, actorID int64, d dto.CreateTemplateDTO) (*entities.ProblemTemplate, error)
}

type ProblemTemplateService struct {
	repo     repositories.ProblemTemplateRepositoryInterface
	gate     authz.GateInterface
	activity ActivityLogServiceInterface
	validate *validator.Validate
	logger   *zap.Logger
}

func NewProblemTemplateService(
	repo repositories.ProblemTemplateRepositoryInterface,
	gate authz.GateInterface,
	activity ActivityLogServiceInterface,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProblemTemplateService {
	return &ProblemTemplateService{
		repo:     repo,
		gate:     gate,
		activity: activity,
		validate: validate,
		logger:   logger.Named("template_service"),
	}
}

func (s *ProblemTemplateService) List(ctx context.Context, actorID int64) ([]entities.ProblemTemplate, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.TemplatesView); err != nil {
		return nil, err
	}
	return s.repo.ListActive(ctx)
}

func (s *ProblemTemplateService) Get(ctx context.Context, actorID, templateID int64) (*entities.ProblemTemplate, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.TemplatesView); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, templateID)
}

func (s *ProblemTemplateService) Create(ctx context.Context, actorID int64, d dto.CreateTemplateDTO) (*entities.ProblemTemplate, error) {
	if _, err := s.gate.RequirePermission(ctx, actorID, authz.TemplatesManage); err != nil {
		return nil, err
	}
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	if err := s.validate.Struct(d); err != nil {
		return nil, customvalidator.Translate(err)
	}

	tpl, err := s.repo.Create(ctx, d)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.NewValidationError("Название", "шаблон «%s» уже есть", d.Title)
		}
		return nil, err
	}

	s.activity.Record(ctx, dto.ActivityEntryDTO{
		UserID:      actorID,
		ActionType:  constants.ActionTemplateCreate,
		Description: fmt.Sprintf("Добавлен шаблон проблемы «%s»", tpl.Title),
	})
	return tpl, nil
}
