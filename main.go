package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/dnldd/trends/series"
	"github.com/dnldd/trends/service"
	"github.com/dnldd/trends/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// setupLogger configures the global logger at the provided level.
func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Msgf("loading config: %v", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		log.Error().Msgf("fetching new york time: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trendsCfg := service.TrendsConfig{
		Markets:        cfg.Markets,
		SeriesURL:      cfg.SeriesURL,
		SeriesFilepath: cfg.SeriesFilepath,
		Signal: series.SignalConfig{
			ShortWindow: cfg.ShortWindow,
			LongWindow:  cfg.LongWindow,
			Lag:         cfg.Lag,
		},
		DecisionHour:         cfg.DecisionHour,
		StartingCash:         cfg.StartingCash,
		FMPAPIKey:            cfg.FMPAPIKey,
		FMPBaseURL:           cfg.FMPBaseURL,
		Backtest:             cfg.Backtest,
		BacktestDataFilepath: cfg.BacktestDataFilepath,
		PositionsFilepath:    cfg.PositionsFilepath,
		DatabaseEndpoint:     cfg.DatabaseEndpoint,
		DatabaseUser:         cfg.DatabaseUser,
		DatabasePass:         cfg.DatabasePass,
		SQLiteFilepath:       cfg.SQLiteFilepath,
		MetricsAddress:       cfg.MetricsAddress,
		Cancel:               cancel,
	}

	if cfg.Backtest {
		trendsCfg.BacktestStart, trendsCfg.BacktestEnd, err = cfg.BacktestWindow(loc)
		if err != nil {
			log.Error().Msgf("parsing backtest window: %v", err)
			os.Exit(1)
		}
	}

	trends, err := service.NewTrends(ctx, &trendsCfg)
	if err != nil {
		log.Error().Msgf("creating trends service: %v", err)
		os.Exit(1)
	}

	go handleTermination(ctx, cancel)
	trends.Run(ctx)
}
