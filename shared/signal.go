package shared

import (
	"time"

	"github.com/google/uuid"
)

// StatusCode represents a request or signal status code.
type StatusCode int

const (
	Processing StatusCode = iota
	Processed
)

// ActionKind represents the kind of portfolio action.
type ActionKind int

const (
	Liquidate ActionKind = iota
	AllocateFull
)

// String stringifies the provided action kind.
func (k ActionKind) String() string {
	switch k {
	case Liquidate:
		return "liquidate"
	case AllocateFull:
		return "allocate"
	default:
		return "unknown"
	}
}

// Action represents a portfolio mutating action emitted by the decision engine.
type Action struct {
	ID        string
	Kind      ActionKind
	Market    string
	Month     MonthKey
	Signal    float64
	CreatedOn time.Time
}

// NewAction initializes a new action.
func NewAction(kind ActionKind, market string, month MonthKey, signal float64, created time.Time) Action {
	return Action{
		ID:        uuid.New().String(),
		Kind:      kind,
		Market:    market,
		Month:     month,
		Signal:    signal,
		CreatedOn: created,
	}
}
