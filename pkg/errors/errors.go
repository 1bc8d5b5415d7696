package errors

import (
	"errors"
	"fmt"
)

var (
	// Общие
	ErrNotFound   = fmt.Errorf("запись не найдена")
	ErrBadRequest = fmt.Errorf("неверный запрос")
	ErrConflict   = fmt.Errorf("конфликт данных")

	// Доступ
	ErrForbidden    = fmt.Errorf("доступ запрещён")
	ErrUserDisabled = fmt.Errorf("аккаунт отключён")

	// Кеш
	ErrCacheMiss = fmt.Errorf("нет значения в кеше")
)

// --- Кастомные типы ошибок ---

// ValidationError - некорректный ввод пользователя. Всегда восстановимая: переспрашиваем.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError - не прошла проверка роли. Действие не выполняется.
type AuthorizationError struct {
	UserID int64
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("недостаточно прав: пользователь %d, действие %q", e.UserID, e.Action)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

func NewAuthorizationError(userID int64, action string) error {
	return &AuthorizationError{UserID: userID, Action: action}
}

// NotFoundError - не найдена заявка, пользователь или мастер.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s #%d не найден(а)", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFoundError(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError - переход недопустим из текущего статуса.
type ConflictError struct {
	OrderID       int64
	CurrentStatus string
	Message       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("заявка #%d в статусе %q: %s", e.OrderID, e.CurrentStatus, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func NewConflictError(orderID int64, current, format string, args ...interface{}) error {
	return &ConflictError{OrderID: orderID, CurrentStatus: current, Message: fmt.Sprintf(format, args...)}
}

// StorageError - сбой хранилища. Фатальна для одного действия, запасных значений не подставляем.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ошибка хранилища (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// NotificationError - не удалось доставить сообщение одному получателю.
type NotificationError struct {
	RecipientID int64
	Err         error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("не удалось уведомить %d: %v", e.RecipientID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// IsUserFacing - ошибки, которые показываются пользователю как есть и не "роняют" действие.
func IsUserFacing(err error) bool {
	var (
		ve *ValidationError
		ae *AuthorizationError
		ne *NotFoundError
		ce *ConflictError
	)
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &ne) || errors.As(err, &ce) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrUserDisabled)
}
