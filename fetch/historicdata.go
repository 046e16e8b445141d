package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dnldd/trends/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// TickTimeout is the maximum time allowed for a relayed tick to be processed.
	TickTimeout = time.Second * 10
)

// HistoricDataConfig represents the historic data source configuration.
type HistoricDataConfig struct {
	// Markets represents the markets replayed together.
	Markets []string
	// Timeframe represents the timeframe for the historic data.
	Timeframe shared.Timeframe
	// FilePath is the filepath to the historic market data.
	FilePath string
	// Location is the location bar dates are recorded in.
	Location *time.Location
	// Start is the start of the replay window, optional.
	Start time.Time
	// End is the end of the replay window, optional.
	End time.Time
	// SendMarketUpdate relays the provided tick for processing.
	SendMarketUpdate func(tick shared.Tick)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *HistoricDataConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided"))
	}
	if cfg.FilePath == "" {
		errs = errors.Join(errs, fmt.Errorf("file path cannot be an empty string"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("location cannot be nil"))
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && cfg.End.Before(cfg.Start) {
		errs = errors.Join(errs, fmt.Errorf("window end %s is before its start %s",
			cfg.End.Format(shared.DateLayout), cfg.Start.Format(shared.DateLayout)))
	}
	if cfg.SendMarketUpdate == nil {
		errs = errors.Join(errs, fmt.Errorf("send market update function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// HistoricData represents historic market data.
type HistoricData struct {
	cfg   *HistoricDataConfig
	ticks []shared.Tick
}

// loadHistoricData loads the historic data keyed by market from the provided file path.
func loadHistoricData(filepath string) (map[string]gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading historic data from file with path '%s': %v", filepath, err)
	}

	res := gjson.ParseBytes(readb)
	if !res.IsObject() {
		return nil, fmt.Errorf("historic data must be an object keyed by market")
	}

	return res.Map(), nil
}

// withinWindow checks whether the provided time falls within the replay window.
func (h *HistoricData) withinWindow(t time.Time) bool {
	if !h.cfg.Start.IsZero() && t.Before(h.cfg.Start) {
		return false
	}
	if !h.cfg.End.IsZero() && t.After(h.cfg.End) {
		return false
	}

	return true
}

// NewHistoricData initializes a new historic data source.
func NewHistoricData(cfg *HistoricDataConfig) (*HistoricData, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating historic data config: %w", err)
	}

	data, err := loadHistoricData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading historic data: %v", err)
	}

	historicData := HistoricData{
		cfg: cfg,
	}

	candles := make([]shared.Candlestick, 0)
	for _, market := range cfg.Markets {
		bars, ok := data[market]
		if !ok {
			return nil, fmt.Errorf("no historic data found for %s", market)
		}

		parsed, err := shared.ParseCandlesticks(bars.Array(), market, cfg.Timeframe, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("parsing %s candlesticks: %v", market, err)
		}

		candles = append(candles, parsed...)
	}

	ticks := shared.GroupTicks(candles)
	historicData.ticks = make([]shared.Tick, 0, len(ticks))
	for idx := range ticks {
		if historicData.withinWindow(ticks[idx].Date) {
			historicData.ticks = append(historicData.ticks, ticks[idx])
		}
	}

	if len(historicData.ticks) == 0 {
		return nil, fmt.Errorf("no historic data within the replay window")
	}

	return &historicData, nil
}

// Ticks returns the number of ticks to be replayed.
func (h *HistoricData) Ticks() int {
	return len(h.ticks)
}

// ProcessHistoricalData replays the historic ticks in order, waiting on each to be processed
// before sending the next.
func (h *HistoricData) ProcessHistoricalData(ctx context.Context) error {
	// Determine the range for the data provided.
	first := h.ticks[0].Date
	last := h.ticks[len(h.ticks)-1].Date
	timeDiffInHours := last.Sub(first).Hours()

	h.cfg.Logger.Info().Msgf("processing historical data covering %.2f hours, from %s, to %s",
		timeDiffInHours, first.Format(time.RFC1123), last.Format(time.RFC1123))

	for idx := range h.ticks {
		tick := h.ticks[idx]

		// Process historical data synchroniously.
		h.cfg.SendMarketUpdate(tick)
		err := awaitTick(ctx, tick)
		if err != nil {
			return err
		}
	}

	return nil
}

// awaitTick waits for the provided tick to be processed.
func awaitTick(ctx context.Context, tick shared.Tick) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tick.Status:
		return nil
	case <-time.After(TickTimeout):
		return fmt.Errorf("timed out processing tick at %s", tick.Date.Format(shared.DateLayout))
	}
}
