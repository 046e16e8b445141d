package series

import (
	"fmt"
	"math"

	"github.com/dnldd/trends/indicator"
	"github.com/dnldd/trends/shared"
)

const (
	// DefaultShortWindow is the default short moving average window in months.
	DefaultShortWindow = 3
	// DefaultLongWindow is the default long moving average window in months.
	DefaultLongWindow = 18
	// DefaultLag is the default number of periods the signal trails its moving averages.
	DefaultLag = 1
)

// SignalConfig represents the signal derivation parameters.
type SignalConfig struct {
	// ShortWindow is the short moving average window.
	ShortWindow int
	// LongWindow is the long moving average window.
	LongWindow int
	// Lag is the number of periods the signal is shifted forward by.
	Lag int
}

// DefaultSignalConfig returns the default signal derivation parameters.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		ShortWindow: DefaultShortWindow,
		LongWindow:  DefaultLongWindow,
		Lag:         DefaultLag,
	}
}

// Validate asserts the config sane inputs.
func (cfg *SignalConfig) Validate() error {
	if cfg.ShortWindow <= 0 {
		return &ComputationError{Reason: fmt.Sprintf("short window must be positive, got %d", cfg.ShortWindow)}
	}
	if cfg.LongWindow <= 0 {
		return &ComputationError{Reason: fmt.Sprintf("long window must be positive, got %d", cfg.LongWindow)}
	}
	if cfg.Lag < 0 {
		return &ComputationError{Reason: fmt.Sprintf("lag cannot be negative, got %d", cfg.Lag)}
	}

	return nil
}

// SignalRow represents the derived signal data for a month. Undefined values are NaN.
type SignalRow struct {
	Month    shared.MonthKey
	Interest float64
	ShortMA  float64
	LongMA   float64
	// Signal is the lagged spread between the short and long moving averages.
	Signal float64
}

// HasSignal checks whether the row carries a defined signal.
func (r *SignalRow) HasSignal() bool {
	return !math.IsNaN(r.Signal)
}

// SignalTable represents the monthly signal table aligned with the interest records it
// was derived from.
type SignalTable struct {
	rows  []SignalRow
	index map[shared.MonthKey]int
}

// BuildSignalTable derives the signal table from the provided ordered interest records.
func BuildSignalTable(records []Record, cfg SignalConfig) (*SignalTable, error) {
	if len(records) == 0 {
		return nil, &ComputationError{Reason: "no interest records provided"}
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	interest := make([]float64, len(records))
	for idx := range records {
		interest[idx] = records[idx].Interest
	}

	shortMA, err := indicator.SMA(interest, cfg.ShortWindow)
	if err != nil {
		return nil, &ComputationError{Reason: fmt.Sprintf("short moving average: %v", err)}
	}

	longMA, err := indicator.SMA(interest, cfg.LongWindow)
	if err != nil {
		return nil, &ComputationError{Reason: fmt.Sprintf("long moving average: %v", err)}
	}

	spread, err := indicator.Spread(shortMA, longMA)
	if err != nil {
		return nil, &ComputationError{Reason: fmt.Sprintf("moving average spread: %v", err)}
	}

	signal, err := indicator.Shift(spread, cfg.Lag)
	if err != nil {
		return nil, &ComputationError{Reason: fmt.Sprintf("lagging signal: %v", err)}
	}

	table := &SignalTable{
		rows:  make([]SignalRow, len(records)),
		index: make(map[shared.MonthKey]int, len(records)),
	}

	for idx := range records {
		table.rows[idx] = SignalRow{
			Month:    records[idx].Month,
			Interest: records[idx].Interest,
			ShortMA:  shortMA[idx],
			LongMA:   longMA[idx],
			Signal:   signal[idx],
		}

		// The first row for a month wins when months repeat.
		if _, ok := table.index[records[idx].Month]; !ok {
			table.index[records[idx].Month] = idx
		}
	}

	return table, nil
}

// Lookup returns the signal row for the provided month.
func (t *SignalTable) Lookup(month shared.MonthKey) (SignalRow, bool) {
	idx, ok := t.index[month]
	if !ok {
		return SignalRow{}, false
	}

	return t.rows[idx], true
}

// Rows returns a copy of the table rows in series order.
func (t *SignalTable) Rows() []SignalRow {
	rows := make([]SignalRow, len(t.rows))
	copy(rows, t.rows)
	return rows
}

// Len returns the number of rows in the table.
func (t *SignalTable) Len() int {
	return len(t.rows)
}

// FirstSignal returns the first row carrying a defined signal.
func (t *SignalTable) FirstSignal() (SignalRow, bool) {
	for idx := range t.rows {
		if t.rows[idx].HasSignal() {
			return t.rows[idx], true
		}
	}

	return SignalRow{}, false
}
