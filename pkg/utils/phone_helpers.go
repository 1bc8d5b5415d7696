package utils

import (
	"regexp"
)

var nonDigitRegexp = regexp.MustCompile(`\D`)

// DigitsOnly оставляет в строке только цифры: "+992 (93) 123-45-67" -> "992931234567".
func DigitsOnly(phone string) string {
	return nonDigitRegexp.ReplaceAllString(phone, "")
}

// NormalizePhone возвращает номер в виде "+<цифры>" или пустую строку, если цифр меньше minDigits.
func NormalizePhone(phone string, minDigits int) string {
	digits := DigitsOnly(phone)
	if len(digits) < minDigits {
		return ""
	}
	return "+" + digits
}
