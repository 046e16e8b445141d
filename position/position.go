package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionStatus represents the status of a position.
type PositionStatus int

const (
	Active PositionStatus = iota
	Closed
)

// String stringifies the provided position status.
func (s PositionStatus) String() string {
	switch s {
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Position represents a long holding in a market.
type Position struct {
	ID         string
	Market     string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PNLPercent float64
	Status     PositionStatus
	CreatedOn  uint64
	ClosedOn   uint64
}

// NewPosition initializes a new position.
func NewPosition(market string, quantity decimal.Decimal, price decimal.Decimal, created time.Time) (*Position, error) {
	if market == "" {
		return nil, fmt.Errorf("market cannot be an empty string")
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("position quantity must be positive, got %s", quantity)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("position entry price must be positive, got %s", price)
	}

	pos := &Position{
		ID:         uuid.New().String(),
		Market:     market,
		Quantity:   quantity,
		EntryPrice: price,
		Status:     Active,
		CreatedOn:  uint64(created.Unix()),
	}

	return pos, nil
}

// Add increases the position by the provided quantity, averaging the entry price.
func (p *Position) Add(quantity decimal.Decimal, price decimal.Decimal) {
	cost := p.EntryPrice.Mul(p.Quantity).Add(price.Mul(quantity))
	p.Quantity = p.Quantity.Add(quantity)
	p.EntryPrice = cost.Div(p.Quantity)
}

// Value returns the value of the position at the provided price.
func (p *Position) Value(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// UpdatePNLPercent updates the percentage change of the position given the current price.
func (p *Position) UpdatePNLPercent(currentPrice decimal.Decimal) float64 {
	p.PNLPercent = currentPrice.Sub(p.EntryPrice).Div(p.EntryPrice).
		Mul(decimal.NewFromInt(100)).InexactFloat64()

	return p.PNLPercent
}

// ClosePosition closes the position at the provided exit price.
func (p *Position) ClosePosition(price decimal.Decimal, closed time.Time) {
	p.UpdatePNLPercent(price)
	p.ExitPrice = price
	p.ClosedOn = uint64(closed.Unix())
	p.Status = Closed
}
