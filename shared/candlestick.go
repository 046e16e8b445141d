package shared

import (
	"fmt"
	"slices"
	"time"

	"github.com/tidwall/gjson"
)

// Candlestick represents a unit candlestick for a market.
type Candlestick struct {
	Open   float64
	Low    float64
	High   float64
	Close  float64
	Volume float64
	Date   time.Time

	// Metadata and derived fields.
	Market    string
	Timeframe Timeframe
}

// ParseCandlesticks parses candlesticks from the provided json data. Dates are interpreted
// in the provided location.
func ParseCandlesticks(data []gjson.Result, market string, timeframe Timeframe, loc *time.Location) ([]Candlestick, error) {
	candles := make([]Candlestick, 0, len(data))

	for idx := range data {
		var candle Candlestick

		candle.Open = data[idx].Get("open").Float()
		candle.Low = data[idx].Get("low").Float()
		candle.High = data[idx].Get("high").Float()
		candle.Close = data[idx].Get("close").Float()
		candle.Volume = data[idx].Get("volume").Float()

		candle.Market = market
		candle.Timeframe = timeframe

		dt, err := time.ParseInLocation(DateLayout, data[idx].Get("date").String(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing candlestick date: %w", err)
		}

		candle.Date = dt
		candles = append(candles, candle)
	}

	return candles, nil
}

// Tick represents the market data delivered at a single scheduling step, holding the bars of
// every market that traded at that time.
type Tick struct {
	Date   time.Time
	Bars   map[string]Candlestick
	Status chan StatusCode
}

// NewTick initializes a new tick.
func NewTick(date time.Time) Tick {
	return Tick{
		Date:   date,
		Bars:   make(map[string]Candlestick),
		Status: make(chan StatusCode, 1),
	}
}

// GroupTicks groups the provided candlesticks into chronologically ordered ticks by
// their dates.
func GroupTicks(candles []Candlestick) []Tick {
	sorted := slices.Clone(candles)
	slices.SortStableFunc(sorted, func(a, b Candlestick) int {
		return a.Date.Compare(b.Date)
	})

	ticks := make([]Tick, 0)
	for idx := range sorted {
		candle := sorted[idx]
		if len(ticks) == 0 || !ticks[len(ticks)-1].Date.Equal(candle.Date) {
			ticks = append(ticks, NewTick(candle.Date))
		}

		ticks[len(ticks)-1].Bars[candle.Market] = candle
	}

	return ticks
}
