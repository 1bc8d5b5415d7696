package customvalidator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"repair-desk/pkg/constants"
	"repair-desk/pkg/utils"
)

// RegisterCustomValidations регистрирует правила проекта в переданном валидаторе.
func RegisterCustomValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("phone_digits", isPhoneWithEnoughDigits); err != nil {
		return err
	}
	if err := v.RegisterValidation("positive_amount", isPositiveAmount); err != nil {
		return err
	}
	if err := v.RegisterValidation("role", isKnownRole); err != nil {
		return err
	}
	if err := v.RegisterValidation("min_runes", hasMinRunes); err != nil {
		return err
	}
	return nil
}

// New возвращает валидатор с уже зарегистрированными правилами.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := RegisterCustomValidations(v); err != nil {
		panic(err)
	}
	return v
}

func isPhoneWithEnoughDigits(fl validator.FieldLevel) bool {
	return len(utils.DigitsOnly(fl.Field().String())) >= constants.MinPhoneDigits
}

// positive_amount принимает как число, так и строку в пользовательском формате ("1500,50").
func isPositiveAmount(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		return field.Float() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return field.Int() > 0
	case reflect.String:
		v, err := utils.ParseAmount(field.String())
		return err == nil && v > 0
	}
	return false
}

func isKnownRole(fl validator.FieldLevel) bool {
	_, ok := constants.ParseRole(fl.Field().String())
	return ok
}

// min_runes=N считает длину в символах после обрезки пробелов, а не в байтах.
func hasMinRunes(fl validator.FieldLevel) bool {
	var n int
	for _, r := range strings.TrimSpace(fl.Param()) {
		if r < '0' || r > '9' {
			return false
		}
		n = n*10 + int(r-'0')
	}
	return utils.RuneLen(fl.Field().String()) >= n
}
