package shared

import (
	"fmt"
	"time"
)

// MonthKeyLayout is the format layout of a month key.
const MonthKeyLayout = "2006-01"

// MonthKey identifies a calendar month in YYYY-MM form. It is the unit of
// rebalancing granularity.
type MonthKey string

// NewMonthKey truncates the provided time to its month key.
func NewMonthKey(t time.Time) MonthKey {
	return MonthKey(t.Format(MonthKeyLayout))
}

// ParseMonthKey validates the provided string as a month key.
func ParseMonthKey(s string) (MonthKey, error) {
	if len(s) != len(MonthKeyLayout) {
		return "", fmt.Errorf("month key %q is not of the form YYYY-MM", s)
	}

	_, err := time.Parse(MonthKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("parsing month key %q: %w", s, err)
	}

	return MonthKey(s), nil
}

// String stringifies the month key.
func (m MonthKey) String() string {
	return string(m)
}

// Before reports whether the month key precedes the provided one. Month keys
// order lexically since they are fixed width.
func (m MonthKey) Before(other MonthKey) bool {
	return m < other
}
