package utils

import (
	"fmt"
	"strings"
	"time"
)

const displayLayout = "02.01.2006 15:04"

// FormatTime печатает время в формате, привычном пользователям бота.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(displayLayout)
}

// FormatDuration печатает длительность как "1д 2ч 3м 4с", пропуская нулевые части.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs <= 0 {
		return "0с"
	}
	units := []struct {
		size   int64
		suffix string
	}{{86400, "д"}, {3600, "ч"}, {60, "м"}, {1, "с"}}

	parts := make([]string, 0, len(units))
	for _, u := range units {
		if n := secs / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			secs %= u.size
		}
	}
	return strings.Join(parts, " ")
}

// FormatSeconds - для средних значений статистики, посчитанных в секундах.
func FormatSeconds(seconds float64) string {
	return FormatDuration(time.Duration(seconds * float64(time.Second)))
}
