package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dnldd/trends/series"
	"github.com/dnldd/trends/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// DefaultDecisionHour is the default hour of day rebalancing checks are evaluated at.
	DefaultDecisionHour = 15
)

// ErrReentrant is returned when a tick is processed while another is still in flight.
var ErrReentrant = errors.New("decision engine invoked re-entrantly")

// Holdings defines the requirements for querying current holdings.
type Holdings interface {
	// Quantity returns the quantity held of the provided market.
	Quantity(market string) float64
}

// Portfolio defines the requirements for the holdings collaborator the engine trades
// through. Actions are fire and forget.
type Portfolio interface {
	Holdings
	// Liquidate closes all holdings of the provided market.
	Liquidate(market string)
	// AllocateFull allocates the entire portfolio value to the provided market.
	AllocateFull(market string)
}

// Outcome represents the result of processing a tick.
type Outcome int

const (
	// OutcomeLookupMiss indicates no signal row exists for the current month.
	OutcomeLookupMiss Outcome = iota
	// OutcomeUndefinedSignal indicates the month's signal is not yet computable.
	OutcomeUndefinedSignal
	// OutcomeOutsideDecisionHour indicates the tick is not at the decision hour.
	OutcomeOutsideDecisionHour
	// OutcomeAlreadyRebalanced indicates the month has already been rebalanced.
	OutcomeAlreadyRebalanced
	// OutcomeNoAllocation indicates the gate was open but no allocation was made.
	OutcomeNoAllocation
	// OutcomeRebalanced indicates an allocation was made and the month marked rebalanced.
	OutcomeRebalanced
)

// String stringifies the provided outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeLookupMiss:
		return "lookup miss"
	case OutcomeUndefinedSignal:
		return "undefined signal"
	case OutcomeOutsideDecisionHour:
		return "outside decision hour"
	case OutcomeAlreadyRebalanced:
		return "already rebalanced"
	case OutcomeNoAllocation:
		return "no allocation"
	case OutcomeRebalanced:
		return "rebalanced"
	default:
		return "unknown"
	}
}

// Decision represents the result of processing a single tick.
type Decision struct {
	Month   shared.MonthKey
	Date    time.Time
	Signal  float64
	Outcome Outcome
	Actions []shared.Action
}

// EngineConfig represents the decision engine configuration.
type EngineConfig struct {
	// Signals represents the monthly signal table.
	Signals *series.SignalTable
	// State represents the monthly rebalance state, owned by the engine for the run.
	State *RebalanceState
	// FallingMarket is the market held while interest is falling.
	FallingMarket string
	// RisingMarket is the market held while interest is rising.
	RisingMarket string
	// DecisionHour is the hour of day rebalancing checks are evaluated at.
	DecisionHour int
	// Location is the location tick times are interpreted in.
	Location *time.Location
	// Portfolio is the holdings collaborator actions are sent to.
	Portfolio Portfolio
	// NotifyDecision relays the provided decision, optional.
	NotifyDecision func(decision Decision)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Signals == nil {
		errs = errors.Join(errs, fmt.Errorf("signal table cannot be nil"))
	}
	if cfg.State == nil {
		errs = errors.Join(errs, fmt.Errorf("rebalance state cannot be nil"))
	}
	if cfg.FallingMarket == "" || cfg.RisingMarket == "" {
		errs = errors.Join(errs, fmt.Errorf("both markets must be provided"))
	}
	if cfg.FallingMarket != "" && cfg.FallingMarket == cfg.RisingMarket {
		errs = errors.Join(errs, fmt.Errorf("falling and rising markets must differ, got %s", cfg.FallingMarket))
	}
	if cfg.DecisionHour < 0 || cfg.DecisionHour > 23 {
		errs = errors.Join(errs, fmt.Errorf("decision hour must be within 0-23, got %d", cfg.DecisionHour))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("location cannot be nil"))
	}
	if cfg.Portfolio == nil {
		errs = errors.Join(errs, fmt.Errorf("portfolio cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Engine decides the monthly rebalance actions from the signal table and market ticks.
type Engine struct {
	cfg        *EngineConfig
	processing atomic.Bool
	updates    chan shared.Tick
}

// NewEngine initializes a new decision engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	return &Engine{
		cfg:     cfg,
		updates: make(chan shared.Tick, bufferSize),
	}, nil
}

// SendMarketUpdate relays the provided tick for processing.
func (e *Engine) SendMarketUpdate(tick shared.Tick) {
	select {
	case e.updates <- tick:
		// do nothing.
	default:
		e.cfg.Logger.Error().Msgf("market update channel at capacity: %d/%d",
			len(e.updates), bufferSize)
	}
}

// Process runs the rebalance decision procedure for the provided tick. Only the tick's
// timestamp is consulted.
func (e *Engine) Process(tick shared.Tick) (Decision, error) {
	if !e.processing.CompareAndSwap(false, true) {
		return Decision{}, ErrReentrant
	}
	defer e.processing.Store(false)

	now := tick.Date.In(e.cfg.Location)
	month := shared.NewMonthKey(now)
	decision := Decision{
		Month:  month,
		Date:   now,
		Signal: math.NaN(),
	}

	row, ok := e.cfg.Signals.Lookup(month)
	if !ok {
		e.cfg.Logger.Debug().Msgf("no signal found for %s", month)
		decision.Outcome = OutcomeLookupMiss
		return decision, nil
	}

	e.cfg.Logger.Trace().Str("month", month.String()).Float64("interest", row.Interest).
		Float64("shortma", row.ShortMA).Float64("longma", row.LongMA).
		Float64("signal", row.Signal).Msg("signal row")

	if !row.HasSignal() {
		decision.Outcome = OutcomeUndefinedSignal
		return decision, nil
	}

	signal := row.Signal
	decision.Signal = signal

	if now.Hour() != e.cfg.DecisionHour {
		decision.Outcome = OutcomeOutsideDecisionHour
		return decision, nil
	}

	if e.cfg.State.Status(month) == Rebalanced {
		decision.Outcome = OutcomeAlreadyRebalanced
		return decision, nil
	}

	falling := e.cfg.FallingMarket
	rising := e.cfg.RisingMarket
	portfolio := e.cfg.Portfolio

	// Exit the market the signal no longer favours.
	if portfolio.Quantity(falling) > 0 && signal > 0 {
		e.liquidate(&decision, falling)
	}
	if portfolio.Quantity(rising) > 0 && signal < 0 {
		e.liquidate(&decision, rising)
	}

	switch {
	case signal < 0 && portfolio.Quantity(falling) == 0:
		e.allocate(&decision, falling)
	case signal > 0 && portfolio.Quantity(rising) == 0:
		e.allocate(&decision, rising)
	default:
		// A zero signal or an already held target leaves the month open for a later tick.
		decision.Outcome = OutcomeNoAllocation
	}

	return decision, nil
}

// liquidate closes the provided market's holdings and records the action.
func (e *Engine) liquidate(decision *Decision, market string) {
	e.cfg.Portfolio.Liquidate(market)
	action := shared.NewAction(shared.Liquidate, market, decision.Month, decision.Signal, decision.Date)
	decision.Actions = append(decision.Actions, action)

	e.cfg.Logger.Info().Msgf("liquidated %s for %s (signal %.4f)", market, decision.Month, decision.Signal)
}

// allocate moves the full portfolio into the provided market and marks the month rebalanced.
func (e *Engine) allocate(decision *Decision, market string) {
	e.cfg.Portfolio.AllocateFull(market)
	action := shared.NewAction(shared.AllocateFull, market, decision.Month, decision.Signal, decision.Date)
	decision.Actions = append(decision.Actions, action)
	e.cfg.State.markRebalanced(decision.Month, decision.Date)
	decision.Outcome = OutcomeRebalanced

	e.cfg.Logger.Info().Msgf("allocated portfolio to %s for %s (signal %.4f)", market, decision.Month, decision.Signal)
}

// handleMarketUpdate processes the provided tick.
func (e *Engine) handleMarketUpdate(tick shared.Tick) {
	defer func() {
		if tick.Status != nil {
			tick.Status <- shared.Processed
		}
	}()

	decision, err := e.Process(tick)
	if err != nil {
		e.cfg.Logger.Error().Msgf("processing tick at %s: %v", tick.Date.Format(shared.DateLayout), err)
		return
	}

	if e.cfg.NotifyDecision != nil {
		e.cfg.NotifyDecision(decision)
	}
}

// Run manages the lifecycle processes of the decision engine. Ticks are processed one at
// a time in the order received.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-e.updates:
			e.handleMarketUpdate(tick)
		}
	}
}
