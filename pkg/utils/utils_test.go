package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigitsOnlyAndNormalizePhone(t *testing.T) {
	assert.Equal(t, "992931234567", DigitsOnly("+992 (93) 123-45-67"))
	assert.Equal(t, "+1234567", NormalizePhone("123-45-67", 7))
	assert.Equal(t, "", NormalizePhone("12-34", 7))
	assert.Equal(t, "", NormalizePhone("abc", 7))
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"1500":    1500,
		"1500,50": 1500.5,
		"1500.50": 1500.5,
		" 1 200 ": 1200,
		"0,99":    0.99,
		"-10":     -10,
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}

	for _, bad := range []string{"", "abc", "1,2,3", "NaN", "Inf"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitCommand(t *testing.T) {
	cmd, args := SplitCommand("/Order@repair_bot 15 extra")
	assert.Equal(t, "order", cmd)
	assert.Equal(t, []string{"15", "extra"}, args)

	cmd, args = SplitCommand("просто текст")
	assert.Empty(t, cmd)
	assert.Nil(t, args)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "привет", Truncate("привет", 10))
	assert.Equal(t, "при…", Truncate("привет", 4))
}

func TestPageToLimitOffset(t *testing.T) {
	limit, offset := PageToLimitOffset(3, 10)
	assert.Equal(t, uint64(10), limit)
	assert.Equal(t, uint64(20), offset)

	limit, offset = PageToLimitOffset(0, 1000)
	assert.Equal(t, uint64(MaxLimit), limit)
	assert.Equal(t, uint64(0), offset)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0с", FormatDuration(0))
	assert.Equal(t, "1д 1ч 1м 1с", FormatDuration(90061*time.Second))
	assert.Equal(t, "2м", FormatDuration(2*time.Minute))
	assert.Equal(t, "1ч 30м", FormatSeconds(5400.4))
}
