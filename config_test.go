package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/trends/fetch"
	"github.com/peterldowns/testy/assert"
)

func validConfig() Config {
	return Config{
		Markets:      []string{"AAPL", "AMZN"},
		SeriesURL:    fetch.DefaultSeriesURL,
		ShortWindow:  3,
		LongWindow:   18,
		Lag:          1,
		DecisionHour: 15,
		StartingCash: 100000,
		FMPAPIKey:    "apikey",
		LogLevel:     "info",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "valid config, not backtest",
			modify:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name:    "wrong market count",
			modify:  func(cfg *Config) { cfg.Markets = []string{"AAPL"} },
			wantErr: []string{"exactly two markets must be provided, got 1"},
		},
		{
			name: "missing series source",
			modify: func(cfg *Config) {
				cfg.SeriesURL = ""
				cfg.SeriesFilepath = ""
			},
			wantErr: []string{"either a series url or filepath must be provided"},
		},
		{
			name: "invalid signal parameters",
			modify: func(cfg *Config) {
				cfg.LongWindow = 0
				cfg.Lag = -1
			},
			wantErr: []string{"moving average windows must be positive", "lag cannot be negative"},
		},
		{
			name: "invalid decision hour and cash",
			modify: func(cfg *Config) {
				cfg.DecisionHour = 24
				cfg.StartingCash = 0
			},
			wantErr: []string{"decision hour must be within 0-23", "starting cash must be positive"},
		},
		{
			name:    "invalid log level",
			modify:  func(cfg *Config) { cfg.LogLevel = "loud" },
			wantErr: []string{"invalid log level"},
		},
		{
			name:    "missing FMPAPIKey, not backtest",
			modify:  func(cfg *Config) { cfg.FMPAPIKey = "" },
			wantErr: []string{"fmp api key cannot be an empty string"},
		},
		{
			name: "backtest true, valid window",
			modify: func(cfg *Config) {
				cfg.FMPAPIKey = ""
				cfg.Backtest = true
				cfg.BacktestDataFilepath = "/tmp/data.json"
				cfg.BacktestStart = "2004-01-01"
				cfg.BacktestEnd = "2018-09-30"
			},
			wantErr: nil,
		},
		{
			name: "backtest true, missing filepath and malformed window",
			modify: func(cfg *Config) {
				cfg.Backtest = true
				cfg.BacktestStart = "01/01/2004"
				cfg.BacktestEnd = ""
			},
			wantErr: []string{
				"backtest data filepath cannot be an empty string",
				"invalid backtest start date",
				"invalid backtest end date",
			},
		},
		{
			name: "backtest true, inverted window",
			modify: func(cfg *Config) {
				cfg.Backtest = true
				cfg.BacktestDataFilepath = "/tmp/data.json"
				cfg.BacktestStart = "2018-09-30"
				cfg.BacktestEnd = "2004-01-01"
			},
			wantErr: []string{"is before its start date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain %q, got %v", want, err)
				}
			}
		})
	}
}

func TestBacktestWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	cfg := validConfig()
	cfg.BacktestStart = "2004-01-01"
	cfg.BacktestEnd = "2018-09-30"

	start, end, err := cfg.BacktestWindow(loc)
	assert.NoError(t, err)
	assert.Equal(t, start, time.Date(2004, time.January, 1, 0, 0, 0, 0, loc))
	assert.True(t, end.Before(time.Date(2018, time.October, 1, 0, 0, 0, 0, loc)))
	assert.True(t, end.After(time.Date(2018, time.September, 30, 23, 59, 59, 0, loc)))

	cfg.BacktestEnd = "invalid"
	_, _, err = cfg.BacktestWindow(loc)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args
	origArgs := os.Args
	defer func() {
		os.Args = origArgs
	}()

	yamlPath := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(yamlPath, []byte("markets: [MSFT, GOOG]\nstartingcash: 5000\ndecisionhour: 10\nfmpapikey: yamlkey\n"), 0o600)
	assert.NoError(t, err)

	unknownPath := filepath.Join(t.TempDir(), "unknown.yaml")
	err = os.WriteFile(unknownPath, []byte("leverage: 2\n"), 0o600)
	assert.NoError(t, err)

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults with key from env",
			env: map[string]string{
				"fmpapikey": "apikey",
			},
			args:      []string{"cmd"},
			expectErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, cfg.Markets, []string{"AAPL", "AMZN"})
				assert.Equal(t, cfg.SeriesURL, fetch.DefaultSeriesURL)
				assert.Equal(t, cfg.ShortWindow, 3)
				assert.Equal(t, cfg.LongWindow, 18)
				assert.Equal(t, cfg.Lag, 1)
				assert.Equal(t, cfg.DecisionHour, 15)
				assert.Equal(t, cfg.StartingCash, float64(100000))
				assert.Equal(t, cfg.FMPAPIKey, "apikey")
				assert.Equal(t, cfg.LogLevel, "info")
			},
		},
		{
			name:      "all from flags, not backtest",
			env:       map[string]string{},
			args:      []string{"cmd", "-markets=MSFT,GOOG", "-fmpapikey=apikey", "-backtest=false", "-startingcash=2500.5", "-lag=0"},
			expectErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, cfg.Markets, []string{"MSFT", "GOOG"})
				assert.Equal(t, cfg.StartingCash, 2500.5)
				assert.Equal(t, cfg.Lag, 0)
				assert.False(t, cfg.Backtest)
			},
		},
		{
			name:        "missing fmpapikey",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"fmp api key cannot be an empty string"},
		},
		{
			name: "backtest true, missing filepath",
			env: map[string]string{
				"backtest": "true",
			},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"backtest data filepath cannot be an empty string"},
		},
		{
			name: "backtest true, filepath from flag",
			env: map[string]string{
				"backtest": "true",
			},
			args:      []string{"cmd", "-backtestdatafilepath=/tmp/data.json"},
			expectErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Backtest)
				assert.Equal(t, cfg.BacktestDataFilepath, "/tmp/data.json")
				assert.Equal(t, cfg.BacktestStart, "2004-01-01")
				assert.Equal(t, cfg.BacktestEnd, "2018-09-30")
			},
		},
		{
			name:      "config file fills unset flags",
			env:       map[string]string{},
			args:      []string{"cmd", "-configfile=" + yamlPath, "-decisionhour=12"},
			expectErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, cfg.Markets, []string{"MSFT", "GOOG"})
				assert.Equal(t, cfg.StartingCash, float64(5000))
				assert.Equal(t, cfg.DecisionHour, 12)
				assert.Equal(t, cfg.FMPAPIKey, "yamlkey")
			},
		},
		{
			name: "environment beats config file",
			env: map[string]string{
				"fmpapikey": "envkey",
			},
			args:      []string{"cmd", "-configfile=" + yamlPath},
			expectErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, cfg.FMPAPIKey, "envkey")
				assert.Equal(t, cfg.DecisionHour, 10)
			},
		},
		{
			name: "malformed lag env value",
			env: map[string]string{
				"fmpapikey": "apikey",
				"lag":       "one",
			},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"lag: parsing env default \"one\""},
		},
		{
			name: "malformed decision hour env value",
			env: map[string]string{
				"fmpapikey":    "apikey",
				"decisionhour": "15h",
			},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"decisionhour: parsing env default \"15h\""},
		},
		{
			name: "malformed starting cash env value",
			env: map[string]string{
				"fmpapikey":    "apikey",
				"startingcash": "lots",
			},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"startingcash: parsing env default \"lots\""},
		},
		{
			name: "malformed backtest env value",
			env: map[string]string{
				"backtest": "maybe",
			},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"backtest: parsing env default \"maybe\""},
		},
		{
			name:        "unknown config file key",
			env:         map[string]string{},
			args:        []string{"cmd", "-configfile=" + unknownPath},
			expectErr:   true,
			expectInErr: []string{"unknown config file key \"leverage\""},
		},
		{
			name:        "missing config file",
			env:         map[string]string{},
			args:        []string{"cmd", "-configfile=" + filepath.Join(t.TempDir(), "missing.yaml")},
			expectErr:   true,
			expectInErr: []string{"reading config file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			// Set environment variables
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			// Set command-line arguments
			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, filepath.Join(t.TempDir(), ".env")) // no .env file

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			tt.check(t, &cfg)
		})
	}
}
