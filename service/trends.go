package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/trends/database"
	"github.com/dnldd/trends/engine"
	"github.com/dnldd/trends/fetch"
	"github.com/dnldd/trends/metrics"
	"github.com/dnldd/trends/position"
	"github.com/dnldd/trends/series"
	"github.com/dnldd/trends/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/shopspring/decimal"
)

const (
	// persistTimeout is the maximum time allowed for a storer call.
	persistTimeout = time.Second * 2
	// maxTickPersists is the most storer calls a single tick makes, a closed position
	// and two actions. Their combined timeouts stay within fetch.TickTimeout.
	maxTickPersists = 3
)

// TrendsConfig represents the configuration struct for the trends service.
type TrendsConfig struct {
	// Markets represents the traded markets, the falling interest market first.
	Markets []string
	// SeriesURL is the location the interest series is downloaded from.
	SeriesURL string
	// SeriesFilepath is the filepath to a local interest series, preferred over the url.
	SeriesFilepath string
	// Signal represents the signal derivation parameters.
	Signal series.SignalConfig
	// DecisionHour is the hour of day rebalancing checks are evaluated at.
	DecisionHour int
	// StartingCash is the cash the paper portfolio starts with.
	StartingCash float64
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// FMPBaseURL is the FMP api base url.
	FMPBaseURL string
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestDataFilepath is the filepath to the backtest data.
	BacktestDataFilepath string
	// BacktestStart is the start of the backtest window, optional.
	BacktestStart time.Time
	// BacktestEnd is the end of the backtest window, optional.
	BacktestEnd time.Time
	// PositionsFilepath is the filepath positions are written to after a backtest.
	PositionsFilepath string
	// DatabaseEndpoint is the rqlite endpoint, optional.
	DatabaseEndpoint string
	// DatabaseUser is the rqlite user.
	DatabaseUser string
	// DatabasePass is the rqlite user pass.
	DatabasePass string
	// SQLiteFilepath is the local sqlite database filepath, optional.
	SQLiteFilepath string
	// MetricsAddress is the address metrics are served on, optional.
	MetricsAddress string
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *TrendsConfig) Validate() error {
	var errs error

	if len(cfg.Markets) != 2 {
		errs = errors.Join(errs, fmt.Errorf("exactly two markets must be provided, got %d", len(cfg.Markets)))
	}
	if cfg.SeriesURL == "" && cfg.SeriesFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("either a series url or filepath must be provided"))
	}
	if cfg.StartingCash <= 0 {
		errs = errors.Join(errs, fmt.Errorf("starting cash must be positive, got %f", cfg.StartingCash))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	switch cfg.Backtest {
	case true:
		if cfg.BacktestDataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest data filepath cannot be an empty string"))
		}
	case false:
		if cfg.FMPAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
		}
	}

	return errs
}

// Trends represents the interest trend rebalancing service.
type Trends struct {
	cfg           *TrendsConfig
	signals       *series.SignalTable
	state         *engine.RebalanceState
	portfolio     *position.Portfolio
	storer        database.Storer
	metrics       *metrics.Metrics
	trendsEngine  *engine.Engine
	historicData  *fetch.HistoricData
	fetchManager  *fetch.Manager
	metricsServer *http.Server
	logger        *zerolog.Logger
	wg            sync.WaitGroup
}

// loadSignals fetches the interest series and derives its signal table.
func loadSignals(ctx context.Context, cfg *TrendsConfig, logger *zerolog.Logger) (*series.SignalTable, error) {
	client, err := fetch.NewSeriesClient(&fetch.SeriesConfig{
		URL:      cfg.SeriesURL,
		FilePath: cfg.SeriesFilepath,
	})
	if err != nil {
		return nil, fmt.Errorf("creating series client: %w", err)
	}

	blob, err := client.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching series: %w", err)
	}

	records, err := series.ParseSeries(blob)
	if err != nil {
		return nil, fmt.Errorf("parsing series: %w", err)
	}

	unordered := series.OutOfOrder(records)
	if len(unordered) > 0 {
		logger.Warn().Msgf("series months are not strictly increasing at %v, "+
			"rows are used in the order given", unordered)
	}

	signals, err := series.BuildSignalTable(records, cfg.Signal)
	if err != nil {
		return nil, fmt.Errorf("building signal table: %w", err)
	}

	first, ok := signals.FirstSignal()
	if ok {
		logger.Info().Msgf("loaded %d months of interest, first signal in %s", signals.Len(), first.Month)
	} else {
		logger.Warn().Msgf("loaded %d months of interest, too few to derive a signal", signals.Len())
	}

	if evt := logger.Debug(); evt.Enabled() {
		evt.Msgf("signal table: %s", spew.Sdump(signals.Rows()))
	}

	return signals, nil
}

// persistWithTimeout runs the provided storer call bounded by the persist timeout.
func persistWithTimeout(persist func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	return persist(ctx)
}

// newStorer creates the configured storer.
func newStorer(ctx context.Context, cfg *TrendsConfig, loc *time.Location, logger *zerolog.Logger) (database.Storer, error) {
	switch {
	case cfg.DatabaseEndpoint != "":
		return database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DatabaseEndpoint,
			User:     cfg.DatabaseUser,
			Pass:     cfg.DatabasePass,
			Location: loc,
			Logger:   logger,
		})
	case cfg.SQLiteFilepath != "":
		return database.NewSQLite(ctx, &database.SQLiteConfig{
			Path:     cfg.SQLiteFilepath,
			Location: loc,
			Logger:   logger,
		})
	default:
		return &database.Noop{}, nil
	}
}

// NewTrends initializes a new trends service.
func NewTrends(ctx context.Context, cfg *TrendsConfig) (*Trends, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating trends config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "trends").Logger()

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		return nil, fmt.Errorf("fetching new york time: %v", err)
	}

	seriesLogger := logger.With().Str("component", "series").Logger()
	signals, err := loadSignals(ctx, cfg, &seriesLogger)
	if err != nil {
		return nil, err
	}

	databaseLogger := logger.With().Str("component", "database").Logger()
	storer, err := newStorer(ctx, cfg, loc, &databaseLogger)
	if err != nil {
		return nil, fmt.Errorf("creating storer: %w", err)
	}

	portfolioLogger := logger.With().Str("component", "portfolio").Logger()
	portfolio, err := position.NewPortfolio(&position.PortfolioConfig{
		StartingCash: decimal.NewFromFloat(cfg.StartingCash),
		PersistClosedPosition: func(pos *position.Position) error {
			return persistWithTimeout(func(ctx context.Context) error {
				return storer.PersistClosedPosition(ctx, pos)
			})
		},
		Logger: &portfolioLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating portfolio: %w", err)
	}

	serviceMetrics := metrics.NewMetrics()

	notifyDecisionFunc := func(decision engine.Decision) {
		serviceMetrics.ObserveDecision(decision)
		serviceMetrics.PortfolioValue.Set(portfolio.Value().InexactFloat64())

		for idx := range decision.Actions {
			action := decision.Actions[idx]
			err := persistWithTimeout(func(ctx context.Context) error {
				return storer.PersistAction(ctx, action)
			})
			if err != nil {
				databaseLogger.Error().Msgf("persisting action: %v", err)
			}
		}
	}

	state := engine.NewRebalanceState()

	engineLogger := logger.With().Str("component", "engine").Logger()
	trendsEngine, err := engine.NewEngine(&engine.EngineConfig{
		Signals:        signals,
		State:          state,
		FallingMarket:  cfg.Markets[0],
		RisingMarket:   cfg.Markets[1],
		DecisionHour:   cfg.DecisionHour,
		Location:       loc,
		Portfolio:      portfolio,
		NotifyDecision: notifyDecisionFunc,
		Logger:         &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	// Prices are marked before the tick is queued so allocations size off the tick's bars.
	sendMarketUpdateFunc := func(tick shared.Tick) {
		portfolio.UpdatePrices(tick)
		trendsEngine.SendMarketUpdate(tick)
	}

	service := &Trends{
		cfg:          cfg,
		signals:      signals,
		state:        state,
		portfolio:    portfolio,
		storer:       storer,
		metrics:      serviceMetrics,
		trendsEngine: trendsEngine,
		logger:       &logger,
	}

	if cfg.Backtest {
		historicDataLogger := logger.With().Str("component", "historicdata").Logger()
		service.historicData, err = fetch.NewHistoricData(&fetch.HistoricDataConfig{
			Markets:          cfg.Markets,
			Timeframe:        shared.OneHour,
			FilePath:         cfg.BacktestDataFilepath,
			Location:         loc,
			Start:            cfg.BacktestStart,
			End:              cfg.BacktestEnd,
			SendMarketUpdate: sendMarketUpdateFunc,
			Logger:           &historicDataLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating historic data: %v", err)
		}

		return service, nil
	}

	baseURL := cfg.FMPBaseURL
	if baseURL == "" {
		baseURL = fetch.BaseURL
	}

	fmp, err := fetch.NewFMPClient(&fetch.FMPConfig{APIKey: cfg.FMPAPIKey, BaseURL: baseURL})
	if err != nil {
		return nil, fmt.Errorf("creating fmp client: %v", err)
	}

	fetchMgrLogger := logger.With().Str("component", "fetchmanager").Logger()
	service.fetchManager, err = fetch.NewManager(&fetch.ManagerConfig{
		Markets:          cfg.Markets,
		Timeframe:        shared.OneHour,
		ExchangeClient:   fmp,
		Location:         loc,
		SendMarketUpdate: sendMarketUpdateFunc,
		JobScheduler:     gocron.NewScheduler(loc),
		Logger:           &fetchMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetch manager: %v", err)
	}

	return service, nil
}

// RebalanceState returns the monthly rebalance state of the service.
func (t *Trends) RebalanceState() *engine.RebalanceState {
	return t.state
}

// Portfolio returns the paper portfolio of the service.
func (t *Trends) Portfolio() *position.Portfolio {
	return t.portfolio
}

// runBacktest replays the historic data, records the resulting positions and terminates
// the service.
func (t *Trends) runBacktest(ctx context.Context) {
	defer t.cfg.Cancel()

	err := t.historicData.ProcessHistoricalData(ctx)
	if err != nil {
		t.logger.Error().Msgf("processing historical data: %v", err)
		return
	}

	if t.cfg.PositionsFilepath != "" {
		err = t.portfolio.PersistPositionsCSV(t.cfg.PositionsFilepath)
		if err != nil {
			t.logger.Error().Msgf("persisting positions: %v", err)
		}
	}

	summary := t.portfolio.Summary()
	t.logger.Info().Msgf("backtest done: %d months rebalanced, %d closed trades (%d wins), "+
		"value %s from %s (%.2f%%), review positions csv for performance", t.state.Len(),
		summary.ClosedTrades, summary.Wins, summary.Value.StringFixed(2),
		summary.StartingCash.StringFixed(2), summary.ReturnPercent)
}

// Run handles the lifecycle processes of the trends service.
func (t *Trends) Run(ctx context.Context) {
	if t.cfg.MetricsAddress != "" {
		t.metricsServer = t.metrics.Serve(t.cfg.MetricsAddress)
		t.logger.Info().Msgf("serving metrics on %s", t.cfg.MetricsAddress)
	}

	t.wg.Add(2)

	go func() {
		t.trendsEngine.Run(ctx)
		t.wg.Done()
	}()

	switch t.cfg.Backtest {
	case true:
		go func() {
			t.runBacktest(ctx)
			t.wg.Done()
		}()
	case false:
		go func() {
			t.fetchManager.Run(ctx)
			t.wg.Done()
		}()
	}

	t.wg.Wait()

	if t.metricsServer != nil {
		err := t.metricsServer.Close()
		if err != nil {
			t.logger.Error().Msgf("closing metrics server: %v", err)
		}
	}

	err := t.storer.Close()
	if err != nil {
		t.logger.Error().Msgf("closing storer: %v", err)
	}
}
