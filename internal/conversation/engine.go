// Package conversation - диалоги бота: команды, кнопки и многошаговый ввод.
// Транспорт передаёт сюда уже разобранные команды и кнопки, обратно получает *dto.Reply.
package conversation

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/internal/repositories"
	"repair-desk/internal/services"
	"repair-desk/internal/state"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

type EngineInterface interface {
	OnCommand(ctx context.Context, sender dto.TelegramProfileDTO, command string, args []string) (*dto.Reply, error)
	OnCallback(ctx context.Context, sender dto.TelegramProfileDTO, cb dto.Callback, messageID int) (*dto.Reply, error)
	OnText(ctx context.Context, sender dto.TelegramProfileDTO, text string) (*dto.Reply, error)
}

// Engine обрабатывает обновления одного пользователя строго по очереди (state.Store.Lock).
// Пользовательские ошибки (валидация, права, конфликт статуса) превращаются в ответ,
// ошибки хранилища возвращаются наверх.
type Engine struct {
	users     services.UserServiceInterface
	userRepo  repositories.UserRepositoryInterface
	workflow  services.OrderWorkflowInterface
	templates services.ProblemTemplateServiceInterface
	reports   services.ReportServiceInterface
	activity  services.ActivityLogServiceInterface
	gate      authz.GateInterface
	states    state.StoreInterface
	validate  *validator.Validate
	logger    *zap.Logger

	steps    map[constants.ConversationStep]step
	commands map[string]commandHandler
}

func NewEngine(
	users services.UserServiceInterface,
	userRepo repositories.UserRepositoryInterface,
	workflow services.OrderWorkflowInterface,
	templates services.ProblemTemplateServiceInterface,
	reports services.ReportServiceInterface,
	activity services.ActivityLogServiceInterface,
	gate authz.GateInterface,
	states state.StoreInterface,
	validate *validator.Validate,
	logger *zap.Logger,
) *Engine {
	e := &Engine{
		users:     users,
		userRepo:  userRepo,
		workflow:  workflow,
		templates: templates,
		reports:   reports,
		activity:  activity,
		gate:      gate,
		states:    states,
		validate:  validate,
		logger:    logger.Named("conversation"),
	}
	e.steps = e.stepTable()
	e.commands = e.commandTable()
	return e
}

// session - то, что известно о пользователе на время обработки одного обновления.
type session struct {
	user *entities.User
	st   *dto.ConversationState
}

func (s *session) id() int64 { return s.user.ID }

// begin регистрирует отправителя, берёт его блокировку и читает состояние диалога.
// Вызывающий обязан вызвать возвращённый unlock.
func (e *Engine) begin(ctx context.Context, sender dto.TelegramProfileDTO) (*session, func(), error) {
	user, err := e.users.EnsureUser(ctx, sender)
	if err != nil {
		return nil, nil, err
	}
	unlock := e.states.Lock(user.ID)
	st, _, err := e.states.Get(ctx, user.ID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return &session{user: user, st: st}, unlock, nil
}

func (e *Engine) OnCommand(ctx context.Context, sender dto.TelegramProfileDTO, command string, args []string) (*dto.Reply, error) {
	s, unlock, err := e.begin(ctx, sender)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if s.user.IsDeleted() {
		return disabledReply(), nil
	}

	handler, ok := e.commands[command]
	if !ok {
		return dto.NewReply("❓ Неизвестная команда. Список команд: /help"), nil
	}
	e.logger.Debug("Команда", zap.Int64("user_id", s.id()), zap.String("command", command), zap.Strings("args", args))
	reply, err := handler(ctx, s, args)
	return e.finish(s, "command_"+command, reply, err)
}

func (e *Engine) OnCallback(ctx context.Context, sender dto.TelegramProfileDTO, cb dto.Callback, messageID int) (*dto.Reply, error) {
	s, unlock, err := e.begin(ctx, sender)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if s.user.IsDeleted() {
		return disabledReply(), nil
	}

	reply, err := e.handleCallback(ctx, s, cb, messageID)
	return e.finish(s, "callback_"+string(cb.Action), reply, err)
}

func (e *Engine) OnText(ctx context.Context, sender dto.TelegramProfileDTO, text string) (*dto.Reply, error) {
	s, unlock, err := e.begin(ctx, sender)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if s.user.IsDeleted() {
		return disabledReply(), nil
	}

	if s.st == nil {
		return e.mainMenu(ctx, s), nil
	}
	step := s.st.Step
	reply, err := e.handleStepInput(ctx, s, text)
	return e.finish(s, "step_"+string(step), reply, err)
}

// finish превращает пользовательскую ошибку в ответ. Остальные ошибки логируются и уходят наверх.
func (e *Engine) finish(s *session, action string, reply *dto.Reply, err error) (*dto.Reply, error) {
	if err == nil {
		return reply, nil
	}
	if r := renderError(err); r != nil {
		e.logger.Info("Действие отклонено", zap.Int64("user_id", s.id()), zap.String("action", action), zap.Error(err))
		return r, nil
	}
	e.logger.Error("Ошибка обработки", zap.Int64("user_id", s.id()), zap.String("action", action), zap.Error(err))
	return nil, err
}

// clearState сбрасывает диалог. Ошибка хранилища не мешает ответу: запись сама истечёт.
func (e *Engine) clearState(ctx context.Context, s *session) {
	if err := e.states.Clear(ctx, s.id()); err != nil {
		e.logger.Warn("Не удалось сбросить состояние диалога", zap.Int64("user_id", s.id()), zap.Error(err))
	}
	s.st = nil
}

func isUserFacing(err error) bool {
	return apperrors.IsUserFacing(err)
}

func isValidation(err error) bool {
	var ve *apperrors.ValidationError
	return errors.As(err, &ve)
}
