package position

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dnldd/trends/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PortfolioConfig represents the paper portfolio configuration.
type PortfolioConfig struct {
	// StartingCash is the cash the portfolio starts with.
	StartingCash decimal.Decimal
	// PersistClosedPosition persists the provided closed position, optional.
	PersistClosedPosition func(position *Position) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *PortfolioConfig) Validate() error {
	var errs error

	if !cfg.StartingCash.IsPositive() {
		errs = errors.Join(errs, fmt.Errorf("starting cash must be positive, got %s", cfg.StartingCash))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Summary represents the state of the portfolio at a point in time.
type Summary struct {
	StartingCash  decimal.Decimal
	Cash          decimal.Decimal
	Value         decimal.Decimal
	ReturnPercent float64
	OpenPositions int
	ClosedTrades  int
	Wins          int
}

// Portfolio is a cash-only paper portfolio holding long positions. Orders fill immediately
// at the last price seen for a market, whole units only.
type Portfolio struct {
	cfg          *PortfolioConfig
	cash         decimal.Decimal
	positions    map[string]*Position
	closed       []*Position
	prices       map[string]decimal.Decimal
	lastUpdate   time.Time
	portfolioMtx sync.RWMutex
}

// NewPortfolio initializes a new paper portfolio.
func NewPortfolio(cfg *PortfolioConfig) (*Portfolio, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating portfolio config: %w", err)
	}

	return &Portfolio{
		cfg:       cfg,
		cash:      cfg.StartingCash,
		positions: make(map[string]*Position),
		prices:    make(map[string]decimal.Decimal),
	}, nil
}

// UpdatePrices records the closing prices of the bars in the provided tick.
func (p *Portfolio) UpdatePrices(tick shared.Tick) {
	p.portfolioMtx.Lock()
	defer p.portfolioMtx.Unlock()

	for market, candle := range tick.Bars {
		if candle.Close <= 0 {
			p.cfg.Logger.Warn().Msgf("ignoring non-positive close %f for %s", candle.Close, market)
			continue
		}

		p.prices[market] = decimal.NewFromFloat(candle.Close)
	}

	p.lastUpdate = tick.Date
}

// Quantity returns the quantity held of the provided market.
func (p *Portfolio) Quantity(market string) float64 {
	p.portfolioMtx.RLock()
	defer p.portfolioMtx.RUnlock()

	pos, ok := p.positions[market]
	if !ok {
		return 0
	}

	return pos.Quantity.InexactFloat64()
}

// Liquidate closes the position held in the provided market at its last price.
func (p *Portfolio) Liquidate(market string) {
	p.portfolioMtx.Lock()
	pos, err := p.liquidate(market)
	p.portfolioMtx.Unlock()

	if err != nil {
		p.cfg.Logger.Error().Msgf("liquidating %s: %v", market, err)
		return
	}
	if pos == nil {
		return
	}

	p.cfg.Logger.Info().Msgf("closed %s position (%s) of %s @ %s, pnl %.2f%%",
		pos.Market, pos.ID, pos.Quantity, pos.ExitPrice, pos.PNLPercent)

	if p.cfg.PersistClosedPosition != nil {
		err := p.cfg.PersistClosedPosition(pos)
		if err != nil {
			p.cfg.Logger.Error().Msgf("persisting closed position %s: %v", pos.ID, err)
		}
	}
}

// liquidate closes the position held in the provided market. The caller must hold the
// portfolio lock.
func (p *Portfolio) liquidate(market string) (*Position, error) {
	pos, ok := p.positions[market]
	if !ok {
		return nil, nil
	}

	price, ok := p.prices[market]
	if !ok {
		return nil, fmt.Errorf("no price available for %s", market)
	}

	p.cash = p.cash.Add(pos.Value(price))
	pos.ClosePosition(price, p.lastUpdate)
	delete(p.positions, market)
	p.closed = append(p.closed, pos)

	return pos, nil
}

// AllocateFull sizes the holding of the provided market to the whole portfolio value, limited
// to what the available cash can buy.
func (p *Portfolio) AllocateFull(market string) {
	p.portfolioMtx.Lock()
	defer p.portfolioMtx.Unlock()

	price, ok := p.prices[market]
	if !ok {
		p.cfg.Logger.Error().Msgf("allocating %s: no price available", market)
		return
	}

	target := p.value().Div(price).Floor()
	current := decimal.Zero
	if pos, ok := p.positions[market]; ok {
		current = pos.Quantity
	}

	delta := target.Sub(current)
	affordable := p.cash.Div(price).Floor()
	if delta.GreaterThan(affordable) {
		delta = affordable
	}

	if !delta.IsPositive() {
		p.cfg.Logger.Warn().Msgf("allocating %s: nothing to buy (target %s, held %s, cash %s)",
			market, target, current, p.cash.StringFixed(2))
		return
	}

	p.cash = p.cash.Sub(delta.Mul(price))

	pos, ok := p.positions[market]
	if ok {
		pos.Add(delta, price)
	} else {
		pos, err := NewPosition(market, delta, price, p.lastUpdate)
		if err != nil {
			p.cfg.Logger.Error().Msgf("creating %s position: %v", market, err)
			return
		}

		p.positions[market] = pos
	}

	p.cfg.Logger.Info().Msgf("bought %s %s @ %s, cash remaining %s",
		delta, market, price, p.cash.StringFixed(2))
}

// value returns the total portfolio value at the last seen prices. The caller must hold
// the portfolio lock.
func (p *Portfolio) value() decimal.Decimal {
	total := p.cash
	for market, pos := range p.positions {
		price, ok := p.prices[market]
		if !ok {
			price = pos.EntryPrice
		}

		total = total.Add(pos.Value(price))
	}

	return total
}

// Value returns the total portfolio value at the last seen prices.
func (p *Portfolio) Value() decimal.Decimal {
	p.portfolioMtx.RLock()
	defer p.portfolioMtx.RUnlock()

	return p.value()
}

// Cash returns the uninvested cash.
func (p *Portfolio) Cash() decimal.Decimal {
	p.portfolioMtx.RLock()
	defer p.portfolioMtx.RUnlock()

	return p.cash
}

// ClosedPositions returns the closed positions in the order they were closed.
func (p *Portfolio) ClosedPositions() []*Position {
	p.portfolioMtx.RLock()
	defer p.portfolioMtx.RUnlock()

	closed := make([]*Position, len(p.closed))
	copy(closed, p.closed)
	return closed
}

// Summary returns a summary of the portfolio.
func (p *Portfolio) Summary() Summary {
	p.portfolioMtx.RLock()
	defer p.portfolioMtx.RUnlock()

	value := p.value()
	summary := Summary{
		StartingCash:  p.cfg.StartingCash,
		Cash:          p.cash,
		Value:         value,
		ReturnPercent: value.Sub(p.cfg.StartingCash).Div(p.cfg.StartingCash).Mul(decimal.NewFromInt(100)).InexactFloat64(),
		OpenPositions: len(p.positions),
		ClosedTrades:  len(p.closed),
	}

	for idx := range p.closed {
		if p.closed[idx].PNLPercent > 0 {
			summary.Wins++
		}
	}

	return summary
}

// PersistPositionsCSV writes all closed and open positions to a csv file at the provided path.
func (p *Portfolio) PersistPositionsCSV(path string) error {
	p.portfolioMtx.RLock()
	positions := make([]*Position, 0, len(p.closed)+len(p.positions))
	positions = append(positions, p.closed...)
	for _, pos := range p.positions {
		positions = append(positions, pos)
	}
	p.portfolioMtx.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating positions csv: %w", err)
	}

	return writePositionsCSV(f, positions)
}

// writePositionsCSV writes the header and a row per provided position, closing the
// output once done.
func writePositionsCSV(out io.WriteCloser, positions []*Position) error {
	err := writePositionRows(out, positions)
	if err != nil {
		_ = out.Close()
		return err
	}

	err = out.Close()
	if err != nil {
		return fmt.Errorf("closing positions csv: %w", err)
	}

	return nil
}

// writePositionRows writes the csv header and position rows.
func writePositionRows(out io.Writer, positions []*Position) error {
	w := csv.NewWriter(out)
	err := w.Write([]string{"id", "market", "quantity", "entryprice", "exitprice",
		"pnlpercent", "status", "createdon", "closedon"})
	if err != nil {
		return fmt.Errorf("writing positions csv header: %w", err)
	}

	for _, pos := range positions {
		err := w.Write([]string{
			pos.ID,
			pos.Market,
			pos.Quantity.String(),
			pos.EntryPrice.StringFixed(4),
			pos.ExitPrice.StringFixed(4),
			strconv.FormatFloat(pos.PNLPercent, 'f', 4, 64),
			pos.Status.String(),
			strconv.FormatUint(pos.CreatedOn, 10),
			strconv.FormatUint(pos.ClosedOn, 10),
		})
		if err != nil {
			return fmt.Errorf("writing position %s: %w", pos.ID, err)
		}
	}

	w.Flush()
	err = w.Error()
	if err != nil {
		return fmt.Errorf("flushing positions csv: %w", err)
	}

	return nil
}
