package database

import (
	"context"
	"testing"
	"time"

	"github.com/dnldd/trends/position"
	"github.com/dnldd/trends/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

func closedPosition(t *testing.T, market string, entry int64, exit int64, closed time.Time) *position.Position {
	pos, err := position.NewPosition(market, decimal.NewFromInt(10), decimal.NewFromInt(entry), closed.AddDate(0, -1, 0))
	assert.NoError(t, err)

	pos.ClosePosition(decimal.NewFromInt(exit), closed)
	return pos
}

func TestPositionOutcome(t *testing.T) {
	closed := time.Date(2010, time.April, 1, 15, 0, 0, 0, time.UTC)

	// Ensure active positions are rejected.
	active, err := position.NewPosition("AAPL", decimal.NewFromInt(1), decimal.NewFromInt(10), closed)
	assert.NoError(t, err)
	_, err = positionOutcome(active)
	assert.Error(t, err)

	// Ensure profitable positions are wins.
	out, err := positionOutcome(closedPosition(t, "AAPL", 10, 12, closed))
	assert.NoError(t, err)
	assert.Equal(t, out.win, 1)
	assert.Equal(t, out.loss, 0)
	assert.Equal(t, out.winpercent, float64(20))

	// Ensure flat and losing positions are losses.
	out, err = positionOutcome(closedPosition(t, "AAPL", 10, 10, closed))
	assert.NoError(t, err)
	assert.Equal(t, out.loss, 1)

	out, err = positionOutcome(closedPosition(t, "AAPL", 10, 8, closed))
	assert.NoError(t, err)
	assert.Equal(t, out.loss, 1)
	assert.Equal(t, out.losspercent, float64(-20))
}

func TestGenerateMetadataID(t *testing.T) {
	loc, err := time.LoadLocation(shared.NewYorkLocation)
	assert.NoError(t, err)

	// Ensure the month is derived in the provided location.
	closed := time.Date(2010, time.May, 1, 2, 0, 0, 0, time.UTC)
	pos := closedPosition(t, "AMZN", 10, 12, closed)
	assert.Equal(t, generateMetadataID(pos, loc), "2010-04-AMZN")
	assert.Equal(t, generateMetadataID(pos, time.UTC), "2010-05-AMZN")
}

func TestNoop(t *testing.T) {
	var storer Storer = &Noop{}
	closed := time.Date(2010, time.April, 1, 15, 0, 0, 0, time.UTC)

	action := shared.NewAction(shared.AllocateFull, "AAPL", shared.MonthKey("2010-04"), -0.5, closed)
	assert.NoError(t, storer.PersistAction(context.Background(), action))
	assert.NoError(t, storer.PersistClosedPosition(context.Background(), closedPosition(t, "AAPL", 10, 12, closed)))
	assert.NoError(t, storer.Close())
}
