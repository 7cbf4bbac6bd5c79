package http

import (
	"strconv"
	"strings"
	"time"

	"receipts/internal/core"
)

// formatAmount renders whole currency units with thousands separators,
// e.g. 40000 -> "₩40,000".
func formatAmount(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-₩" + b.String()
	}
	return "₩" + b.String()
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return time.Month(m).String()
}

// yearOptions lists the years offered by the period selectors: two years
// back through next year.
func yearOptions(now time.Time) []int {
	y := now.Year()
	return []int{y - 2, y - 1, y, y + 1}
}

func formatUpdatedAt(agg *core.Aggregate) string {
	if agg == nil {
		return ""
	}
	return agg.UpdatedAt.UTC().Format("2006-01-02 15:04:05 UTC")
}
