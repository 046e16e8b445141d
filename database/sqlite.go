package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/trends/position"
	"github.com/dnldd/trends/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const (
	upsertMetadataSQL = "INSERT INTO metadata(id, total, wins, winpercent, losses, losspercent, createdon) VALUES(?,1,?,?,?,?,?) " +
		"ON CONFLICT(id) DO UPDATE SET total = total + 1, wins = wins + excluded.wins, winpercent = winpercent + excluded.winpercent, " +
		"losses = losses + excluded.losses, losspercent = losspercent + excluded.losspercent"
	selectActionsSQL   = "SELECT id, kind, market, month, signal, createdon FROM rebalance_action ORDER BY createdon, rowid"
	selectPositionsSQL = "SELECT id, market, quantity, entryprice, exitprice, pnlpercent, createdon, closedon FROM position ORDER BY closedon, rowid"
	selectMetadataSQL  = "SELECT total, wins, winpercent, losses, losspercent FROM metadata WHERE id = ?"
)

// Metadata represents the monthly closed position statistics of a market.
type Metadata struct {
	Total       int
	Wins        int
	WinPercent  float64
	Losses      int
	LossPercent float64
}

// SQLiteConfig is the configuration for the local sqlite store.
type SQLiteConfig struct {
	// Path is the sqlite database file path.
	Path string
	// Location is the location metadata months are derived in.
	Location *time.Location
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SQLiteConfig) Validate() error {
	var errs error

	if cfg.Path == "" {
		errs = errors.Join(errs, fmt.Errorf("path cannot be an empty string"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("location cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// SQLite represents a local sqlite store.
type SQLite struct {
	cfg   *SQLiteConfig
	db    *sql.DB
	dbMtx sync.Mutex
}

// Ensure the sqlite store implements the Storer interface.
var _ Storer = (*SQLite)(nil)

// NewSQLite opens or creates the sqlite database at the configured path.
func NewSQLite(ctx context.Context, cfg *SQLiteConfig) (*SQLite, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating sqlite config: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting wal mode: %w", err)
	}

	s := &SQLite{
		cfg: cfg,
		db:  db,
	}

	err = s.bootstrap(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping sqlite: %w", err)
	}

	cfg.Logger.Info().Msgf("sqlite store opened: %s", cfg.Path)

	return s, nil
}

// bootstrap initializes the database.
func (s *SQLite) bootstrap(ctx context.Context) error {
	for _, stmt := range []string{createActionTableSQL, createPositionTableSQL, createMetadataSQL} {
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return err
		}
	}

	return nil
}

// PersistAction stores the provided portfolio action.
func (s *SQLite) PersistAction(ctx context.Context, action shared.Action) error {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	_, err := s.db.ExecContext(ctx, persistActionSQL, action.ID, action.Kind.String(), action.Market,
		action.Month.String(), action.Signal, action.CreatedOn.Unix())
	if err != nil {
		return fmt.Errorf("persisting action %s: %w", action.ID, err)
	}

	return nil
}

// PersistClosedPosition stores the provided closed position and updates its monthly metadata.
func (s *SQLite) PersistClosedPosition(ctx context.Context, pos *position.Position) error {
	out, err := positionOutcome(pos)
	if err != nil {
		s.cfg.Logger.Error().Msgf("unexpected closed position state for metadata calculations: %s", spew.Sdump(pos))
		return err
	}

	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, persistClosedPositionSQL, pos.ID, pos.Market, pos.Quantity.String(),
		pos.EntryPrice.String(), pos.ExitPrice.String(), pos.PNLPercent, pos.Status.String(),
		pos.CreatedOn, pos.ClosedOn)
	if err != nil {
		return fmt.Errorf("persisting position %s: %w", pos.ID, err)
	}

	id := generateMetadataID(pos, s.cfg.Location)
	_, err = tx.ExecContext(ctx, upsertMetadataSQL, id, out.win, out.winpercent, out.loss,
		out.losspercent, pos.ClosedOn)
	if err != nil {
		return fmt.Errorf("persisting metadata %s: %w", id, err)
	}

	return tx.Commit()
}

// Actions returns all stored actions in the order they were created.
func (s *SQLite) Actions(ctx context.Context) ([]shared.Action, error) {
	rows, err := s.db.QueryContext(ctx, selectActionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	actions := make([]shared.Action, 0)
	for rows.Next() {
		var action shared.Action
		var kind, month string
		var created int64

		err := rows.Scan(&action.ID, &kind, &action.Market, &month, &action.Signal, &created)
		if err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}

		switch kind {
		case shared.Liquidate.String():
			action.Kind = shared.Liquidate
		case shared.AllocateFull.String():
			action.Kind = shared.AllocateFull
		default:
			return nil, fmt.Errorf("unknown action kind %q", kind)
		}

		action.Month = shared.MonthKey(month)
		action.CreatedOn = time.Unix(created, 0).In(s.cfg.Location)
		actions = append(actions, action)
	}

	return actions, rows.Err()
}

// ClosedPositions returns all stored closed positions in the order they were closed.
func (s *SQLite) ClosedPositions(ctx context.Context) ([]*position.Position, error) {
	rows, err := s.db.QueryContext(ctx, selectPositionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*position.Position, 0)
	for rows.Next() {
		pos := &position.Position{Status: position.Closed}
		var quantity, entry, exit string

		err := rows.Scan(&pos.ID, &pos.Market, &quantity, &entry, &exit, &pos.PNLPercent,
			&pos.CreatedOn, &pos.ClosedOn)
		if err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}

		pos.Quantity, err = decimal.NewFromString(quantity)
		if err != nil {
			return nil, fmt.Errorf("parsing position %s quantity: %w", pos.ID, err)
		}
		pos.EntryPrice, err = decimal.NewFromString(entry)
		if err != nil {
			return nil, fmt.Errorf("parsing position %s entry price: %w", pos.ID, err)
		}
		pos.ExitPrice, err = decimal.NewFromString(exit)
		if err != nil {
			return nil, fmt.Errorf("parsing position %s exit price: %w", pos.ID, err)
		}

		positions = append(positions, pos)
	}

	return positions, rows.Err()
}

// Metadata returns the monthly statistics stored under the provided id.
func (s *SQLite) Metadata(ctx context.Context, id string) (Metadata, bool, error) {
	var meta Metadata
	err := s.db.QueryRowContext(ctx, selectMetadataSQL, id).Scan(&meta.Total, &meta.Wins,
		&meta.WinPercent, &meta.Losses, &meta.LossPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("querying metadata %s: %w", id, err)
	}

	return meta, true, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
