package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dnldd/trends/position"
	"github.com/dnldd/trends/shared"
)

// Storer defines the requirements for persisting rebalance activity.
type Storer interface {
	// PersistAction stores the provided portfolio action.
	PersistAction(ctx context.Context, action shared.Action) error
	// PersistClosedPosition stores the provided closed position and updates its monthly metadata.
	PersistClosedPosition(ctx context.Context, position *position.Position) error
	// Close terminates the storer.
	Close() error
}

// Noop is a storer that discards everything, used when no database is configured.
type Noop struct{}

// Ensure Noop implements the Storer interface.
var _ Storer = (*Noop)(nil)

// PersistAction discards the provided action.
func (n *Noop) PersistAction(ctx context.Context, action shared.Action) error {
	return nil
}

// PersistClosedPosition discards the provided position.
func (n *Noop) PersistClosedPosition(ctx context.Context, position *position.Position) error {
	return nil
}

// Close is a no-op.
func (n *Noop) Close() error {
	return nil
}

// outcome represents the metadata contribution of a closed position.
type outcome struct {
	win         int
	loss        int
	winpercent  float64
	losspercent float64
}

// positionOutcome derives the metadata contribution of the provided closed position.
func positionOutcome(pos *position.Position) (outcome, error) {
	if pos.Status != position.Closed {
		return outcome{}, fmt.Errorf("position %s is not closed (%s)", pos.ID, pos.Status)
	}

	var out outcome
	switch {
	case pos.PNLPercent > 0:
		out.win = 1
		out.winpercent = pos.PNLPercent
	default:
		out.loss = 1
		out.losspercent = pos.PNLPercent
	}

	return out, nil
}

// generateMetadataID generates deterministic ids for metadata using the month the
// position was closed in and its market.
func generateMetadataID(pos *position.Position, loc *time.Location) string {
	closed := time.Unix(int64(pos.ClosedOn), 0).In(loc)
	return fmt.Sprintf("%s-%s", shared.NewMonthKey(closed), pos.Market)
}
