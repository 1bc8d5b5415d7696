package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmount разбирает сумму, введённую пользователем. Допускается запятая как разделитель
// и пробелы между разрядами: "1 500,50" -> 1500.5.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, fmt.Errorf("пустая сумма")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректная сумма %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("некорректная сумма %q", raw)
	}
	return v, nil
}

// FormatAmount печатает сумму с двумя знаками после запятой.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
