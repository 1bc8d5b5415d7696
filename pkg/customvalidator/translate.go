package customvalidator

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

var fieldLabels = map[string]string{
	"client_phone":        "Телефон",
	"client_name":         "Имя клиента",
	"client_address":      "Адрес",
	"problem_description": "Описание проблемы",
	"title":               "Название",
	"description":         "Описание",
}

func fieldLabel(fe validator.FieldError) string {
	if l, ok := fieldLabels[fe.Field()]; ok {
		return l
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "phone_digits":
		return fmt.Sprintf("номер должен содержать не меньше %d цифр", constants.MinPhoneDigits)
	case "min_runes":
		return fmt.Sprintf("не короче %s символов", fe.Param())
	case "max":
		return fmt.Sprintf("не длиннее %s символов", fe.Param())
	case "positive_amount":
		return "нужно положительное число"
	case "role":
		return "неизвестная роль"
	}
	return "некорректное значение"
}

// Translate превращает первую ошибку валидатора в ValidationError с понятным текстом.
// Остальные ошибки возвращаются без изменений.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &apperrors.ValidationError{Field: fieldLabel(fe), Message: message(fe)}
}
