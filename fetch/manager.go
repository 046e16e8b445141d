package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/trends/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// fetchCron is the schedule market data is polled on, a minute past every trading hour.
	fetchCron = "1 10-16 * * 1-5"
	// catchUpWindow is how far back the first poll reaches.
	catchUpWindow = time.Hour * 24 * 3
)

// ManagerConfig represents the configuration for the fetch manager.
type ManagerConfig struct {
	// Markets represents the markets polled together.
	Markets []string
	// Timeframe represents the timeframe of the polled data.
	Timeframe shared.Timeframe
	// ExchangeClient represents the market exchange client.
	ExchangeClient shared.MarketFetcher
	// Location is the location bar dates are recorded in.
	Location *time.Location
	// SendMarketUpdate relays the provided tick for processing.
	SendMarketUpdate func(tick shared.Tick)
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided"))
	}
	if cfg.ExchangeClient == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange client cannot be nil"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("location cannot be nil"))
	}
	if cfg.SendMarketUpdate == nil {
		errs = errors.Join(errs, fmt.Errorf("send market update function cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager polls the exchange for new bars and relays them as ticks.
type Manager struct {
	cfg           *ManagerConfig
	lastUpdated   time.Time
	lastUpdateMtx sync.Mutex
}

// NewManager initializes the fetch manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating fetch manager config: %w", err)
	}

	return &Manager{cfg: cfg}, nil
}

// LastUpdated returns the time of the last relayed tick.
func (m *Manager) LastUpdated() time.Time {
	m.lastUpdateMtx.Lock()
	defer m.lastUpdateMtx.Unlock()

	return m.lastUpdated
}

// fetchMarketDataJob fetches the latest bars of all markets and relays the ticks not yet seen.
func (m *Manager) fetchMarketDataJob(ctx context.Context) error {
	m.lastUpdateMtx.Lock()
	defer m.lastUpdateMtx.Unlock()

	start := m.lastUpdated
	if start.IsZero() {
		start = time.Now().In(m.cfg.Location).Add(-catchUpWindow)
	}

	candles := make([]shared.Candlestick, 0)
	for _, market := range m.cfg.Markets {
		data, err := m.cfg.ExchangeClient.FetchIntradayHistorical(ctx, market, m.cfg.Timeframe, start, time.Time{})
		if err != nil {
			return fmt.Errorf("fetching %s market data: %w", market, err)
		}

		parsed, err := shared.ParseCandlesticks(data, market, m.cfg.Timeframe, m.cfg.Location)
		if err != nil {
			return fmt.Errorf("parsing %s candlesticks: %w", market, err)
		}

		candles = append(candles, parsed...)
	}

	ticks := shared.GroupTicks(candles)
	var relayed int
	for idx := range ticks {
		tick := ticks[idx]
		if !tick.Date.After(m.lastUpdated) {
			continue
		}

		m.cfg.SendMarketUpdate(tick)
		err := awaitTick(ctx, tick)
		if err != nil {
			return err
		}

		m.lastUpdated = tick.Date
		relayed++
	}

	m.cfg.Logger.Debug().Msgf("relayed %d new ticks", relayed)

	return nil
}

// Run manages the lifecycle processes of the fetch manager.
func (m *Manager) Run(ctx context.Context) {
	_, err := m.cfg.JobScheduler.Cron(fetchCron).Do(func() {
		err := m.fetchMarketDataJob(ctx)
		if err != nil {
			m.cfg.Logger.Error().Msgf("fetching market data: %v", err)
		}
	})
	if err != nil {
		m.cfg.Logger.Error().Msgf("scheduling market data job: %v", err)
		return
	}

	m.cfg.JobScheduler.StartAsync()

	<-ctx.Done()
	m.cfg.JobScheduler.Stop()
}
