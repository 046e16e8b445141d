package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/trends/fetch"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// backtestDateLayout is the layout of the backtest window dates.
	backtestDateLayout = time.DateOnly
)

// Config is the configuration struct for the service.
type Config struct {
	// Markets represents the traded markets, the falling interest market first.
	Markets []string
	// SeriesURL is the location the interest series is downloaded from.
	SeriesURL string
	// SeriesFilepath is the filepath to a local interest series.
	SeriesFilepath string
	// ShortWindow is the short moving average window in months.
	ShortWindow int
	// LongWindow is the long moving average window in months.
	LongWindow int
	// Lag is the number of months the signal trails its moving averages.
	Lag int
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
	// BacktestStart is the first day of the backtest window.
	BacktestStart string
	// BacktestEnd is the last day of the backtest window.
	BacktestEnd string
	// PositionsFilepath is the filepath positions are written to after a backtest.
	PositionsFilepath string
	// DatabaseEndpoint is the rqlite endpoint.
	DatabaseEndpoint string
	// DatabaseUser is the rqlite user.
	DatabaseUser string
	// DatabasePass is the rqlite user pass.
	DatabasePass string
	// SQLiteFilepath is the local sqlite database filepath.
	SQLiteFilepath string
	// MetricsAddress is the address metrics are served on.
	MetricsAddress string
	// LogLevel is the minimum level logged.
	LogLevel string
	// ConfigFile is the path to an optional yaml config file.
	ConfigFile string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if len(cfg.Markets) != 2 {
		errs = errors.Join(errs, fmt.Errorf("exactly two markets must be provided, got %d", len(cfg.Markets)))
	}
	if cfg.SeriesURL == "" && cfg.SeriesFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("either a series url or filepath must be provided"))
	}
	if cfg.ShortWindow <= 0 || cfg.LongWindow <= 0 {
		errs = errors.Join(errs, fmt.Errorf("moving average windows must be positive, got %d and %d",
			cfg.ShortWindow, cfg.LongWindow))
	}
	if cfg.Lag < 0 {
		errs = errors.Join(errs, fmt.Errorf("lag cannot be negative, got %d", cfg.Lag))
	}
	if cfg.DecisionHour < 0 || cfg.DecisionHour > 23 {
		errs = errors.Join(errs, fmt.Errorf("decision hour must be within 0-23, got %d", cfg.DecisionHour))
	}
	if cfg.StartingCash <= 0 {
		errs = errors.Join(errs, fmt.Errorf("starting cash must be positive, got %f", cfg.StartingCash))
	}
	_, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("invalid log level %q", cfg.LogLevel))
	}

	switch cfg.Backtest {
	case true:
		if cfg.BacktestDataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest data filepath cannot be an empty string"))
		}
		start, err := time.Parse(backtestDateLayout, cfg.BacktestStart)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("invalid backtest start date %q", cfg.BacktestStart))
		}
		end, err := time.Parse(backtestDateLayout, cfg.BacktestEnd)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("invalid backtest end date %q", cfg.BacktestEnd))
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			errs = errors.Join(errs, fmt.Errorf("backtest end date %s is before its start date %s",
				cfg.BacktestEnd, cfg.BacktestStart))
		}
	case false:
		if cfg.FMPAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
		}
	}

	return errs
}

// BacktestWindow returns the backtest window in the provided location, the end inclusive
// of its whole day.
func (cfg *Config) BacktestWindow(loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(backtestDateLayout, cfg.BacktestStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing backtest start date: %w", err)
	}

	end, err := time.ParseInLocation(backtestDateLayout, cfg.BacktestEnd, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing backtest end date: %w", err)
	}

	return start, end.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
// Environment variables override the provided fallback default.
func (cfg *Config) registerFlag(name string, value interface{}, fallback string, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	if defValue == "" {
		defValue = fallback
	}

	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			var err error
			def, err = strconv.ParseBool(defValue)
			if err != nil {
				return fmt.Errorf("%s: parsing env default %q: %w", name, defValue, err)
			}
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			var err error
			def, err = strconv.Atoi(defValue)
			if err != nil {
				return fmt.Errorf("%s: parsing env default %q: %w", name, defValue, err)
			}
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			var err error
			def, err = strconv.ParseFloat(defValue, 64)
			if err != nil {
				return fmt.Errorf("%s: parsing env default %q: %w", name, defValue, err)
			}
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// applyConfigFile sets the flags named in the provided yaml file that were not set through
// the command line or the environment.
func (cfg *Config) applyConfigFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	values := make(map[string]any)
	err = yaml.Unmarshal(b, &values)
	if err != nil {
		return fmt.Errorf("decoding config file: %w", err)
	}

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	for name, value := range values {
		if !cfg.registeredFlags[name] {
			return fmt.Errorf("unknown config file key %q", name)
		}

		_, inEnv := os.LookupEnv(name)
		if explicit[name] || inEnv {
			continue
		}

		var str string
		switch v := value.(type) {
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			str = strings.Join(items, ",")
		default:
			str = fmt.Sprint(v)
		}

		err := flag.Set(name, str)
		if err != nil {
			return fmt.Errorf("setting %s from config file: %w", name, err)
		}
	}

	return nil
}

// loadConfig loads the configuration from environment variables, command line flags and
// an optional yaml config file.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name     string
		value    interface{}
		fallback string
		usage    string
	}{
		{"markets", &cfg.Markets, "AAPL,AMZN", "the traded markets, the falling interest market first"},
		{"seriesurl", &cfg.SeriesURL, fetch.DefaultSeriesURL, "the interest series url"},
		{"seriesfilepath", &cfg.SeriesFilepath, "", "the interest series filepath, preferred over the url"},
		{"shortwindow", &cfg.ShortWindow, "3", "the short moving average window in months"},
		{"longwindow", &cfg.LongWindow, "18", "the long moving average window in months"},
		{"lag", &cfg.Lag, "1", "the months the signal trails its moving averages"},
		{"decisionhour", &cfg.DecisionHour, "15", "the new york hour rebalancing is evaluated at"},
		{"startingcash", &cfg.StartingCash, "100000", "the paper portfolio starting cash"},
		{"fmpapikey", &cfg.FMPAPIKey, "", "the FMP api key"},
		{"fmpbaseurl", &cfg.FMPBaseURL, fetch.BaseURL, "the FMP api base url"},
		{"backtest", &cfg.Backtest, "", "the backtest flag"},
		{"backtestdatafilepath", &cfg.BacktestDataFilepath, "", "the backtest data filepath"},
		{"backteststart", &cfg.BacktestStart, "2004-01-01", "the first day of the backtest window"},
		{"backtestend", &cfg.BacktestEnd, "2018-09-30", "the last day of the backtest window"},
		{"positionsfilepath", &cfg.PositionsFilepath, "positions.csv", "the backtest positions csv filepath"},
		{"dbendpoint", &cfg.DatabaseEndpoint, "", "the rqlite endpoint"},
		{"dbuser", &cfg.DatabaseUser, "", "the rqlite user"},
		{"dbpass", &cfg.DatabasePass, "", "the rqlite user pass"},
		{"sqlitefilepath", &cfg.SQLiteFilepath, "", "the local sqlite database filepath"},
		{"metricsaddress", &cfg.MetricsAddress, "", "the metrics server address"},
		{"loglevel", &cfg.LogLevel, "info", "the minimum log level"},
		{"configfile", &cfg.ConfigFile, "", "the yaml config file path"},
	}

	for _, f := range flags {
		err := cfg.registerFlag(f.name, f.value, f.fallback, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	if cfg.ConfigFile != "" {
		err := cfg.applyConfigFile(cfg.ConfigFile)
		if err != nil {
			return err
		}
	}

	return cfg.Validate()
}
