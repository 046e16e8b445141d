package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/trends/position"
	"github.com/dnldd/trends/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createActionTableSQL     = "CREATE TABLE IF NOT EXISTS rebalance_action (id TEXT PRIMARY KEY, kind TEXT, market TEXT, month TEXT, signal REAL, createdon INTEGER)"
	createPositionTableSQL   = "CREATE TABLE IF NOT EXISTS position (id TEXT PRIMARY KEY, market TEXT, quantity TEXT, entryprice TEXT, exitprice TEXT, pnlpercent REAL, status TEXT, createdon INTEGER, closedon INTEGER)"
	createMetadataSQL        = "CREATE TABLE IF NOT EXISTS metadata (id TEXT PRIMARY KEY, total INTEGER, wins INTEGER, winpercent REAL, losses INTEGER, losspercent REAL, createdon INTEGER)"
	persistActionSQL         = "INSERT INTO rebalance_action(id, kind, market, month, signal, createdon) VALUES(?,?,?,?,?,?)"
	persistClosedPositionSQL = "INSERT INTO position(id, market, quantity, entryprice, exitprice, pnlpercent, status, createdon, closedon) VALUES(?,?,?,?,?,?,?,?,?)"
	findMetadataSQL          = "SELECT * FROM metadata WHERE id = ?"
	updateMetadataSQL        = "UPDATE metadata SET total = total + 1, wins = wins + ?, winpercent = winpercent + ?, losses = losses + ?, losspercent = losspercent + ? WHERE id = ?"
	persistMetadataSQL       = "INSERT INTO metadata(id, total, wins, winpercent, losses, losspercent, createdon) VALUES(?,?,?,?,?,?,?)"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Location is the location metadata months are derived in.
	Location *time.Location
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("endpoint cannot be an empty string"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("location cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the rqlite database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the Storer interface.
var _ Storer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createActionTableSQL},
		{SQL: createPositionTableSQL},
		{SQL: createMetadataSQL},
	})
}

// PersistAction stores the provided portfolio action.
func (db *Database) PersistAction(ctx context.Context, action shared.Action) error {
	err := db.execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistActionSQL,
			PositionalParams: []any{action.ID, action.Kind.String(), action.Market,
				action.Month.String(), action.Signal, action.CreatedOn.Unix()},
		},
	})
	if err != nil {
		return fmt.Errorf("persisting action %s: %w", action.ID, err)
	}

	return nil
}

// PersistClosedPosition stores the provided closed position to the database.
func (db *Database) PersistClosedPosition(ctx context.Context, pos *position.Position) error {
	out, err := positionOutcome(pos)
	if err != nil {
		db.cfg.Logger.Error().Msgf("unexpected closed position state for metadata calculations: %s", spew.Sdump(pos))
		return err
	}

	err = db.execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistClosedPositionSQL,
			PositionalParams: []any{pos.ID, pos.Market, pos.Quantity.String(), pos.EntryPrice.String(),
				pos.ExitPrice.String(), pos.PNLPercent, pos.Status.String(), pos.CreatedOn, pos.ClosedOn},
		},
	})
	if err != nil {
		return fmt.Errorf("persisting position %s: %w", pos.ID, err)
	}

	id := generateMetadataID(pos, db.cfg.Location)
	resp, err := db.client.QuerySingle(ctx, findMetadataSQL, id)
	if err != nil {
		return fmt.Errorf("finding metadata %s: %w", id, err)
	}

	exists := len(resp.GetQueryResultsAssoc()) > 0
	switch {
	case exists:
		err := db.execute(ctx, rqlitehttp.SQLStatements{
			{
				SQL:              updateMetadataSQL,
				PositionalParams: []any{out.win, out.winpercent, out.loss, out.losspercent, id},
			},
		})
		if err != nil {
			return fmt.Errorf("updating metadata %s: %w", id, err)
		}
	default:
		err := db.execute(ctx, rqlitehttp.SQLStatements{
			{
				SQL:              persistMetadataSQL,
				PositionalParams: []any{id, 1, out.win, out.winpercent, out.loss, out.losspercent, pos.ClosedOn},
			},
		})
		if err != nil {
			return fmt.Errorf("persisting metadata %s: %w", id, err)
		}
	}

	return nil
}

// Close is a no-op, requests are made over plain http.
func (db *Database) Close() error {
	return nil
}
