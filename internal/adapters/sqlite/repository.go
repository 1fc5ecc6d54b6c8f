// Package sqlite persists the live service's trade journal and equity
// curve. Backtests keep everything in memory; only the live loop writes
// here.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

// Repository implements ports.TradeRepository and ports.EquityRepository
// on a single SQLite file.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

var (
	_ ports.TradeRepository  = (*Repository)(nil)
	_ ports.EquityRepository = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if needed) the journal database and
// ensures the schema exists.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trading_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the live loop and readers.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite serializes writes internally; one connection avoids
	// SQLITE_BUSY churn in the driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite journal ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		fee REAL NOT NULL,
		note TEXT NULL,
		pnl REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS equity_curve (
		ts INTEGER PRIMARY KEY,
		equity REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades (symbol, ts);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveTrade appends a fill record and returns its assigned ID.
func (r *Repository) SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (ts, symbol, side, quantity, price, fee, note, pnl)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Timestamp, trade.Symbol, string(trade.Side), trade.Quantity,
		trade.Price, trade.Fee, trade.Note, trade.RealizedPnL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "side": trade.Side})
	return id, nil
}

// FindBySymbol retrieves the most recent fills for a symbol, newest first.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT ts, symbol, side, quantity, price, fee, COALESCE(note, ''), pnl
	FROM trades
	WHERE symbol = ? ORDER BY ts DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t := &domain.Trade{}
		var side string
		if err := rows.Scan(&t.Timestamp, &t.Symbol, &side, &t.Quantity, &t.Price, &t.Fee, &t.Note, &t.RealizedPnL); err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindBySymbol: %w", err)
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// CountTodayBySymbol counts fills recorded today (UTC) for a symbol.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour).UnixMilli()
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND ts >= ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol, dayStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades today for symbol %s: %w", symbol, err)
	}
	return count, nil
}

// SaveEquityPoint appends one equity sample; samples at an existing
// timestamp overwrite the earlier value.
func (r *Repository) SaveEquityPoint(ctx context.Context, point domain.EquityPoint) error {
	const query = `INSERT OR REPLACE INTO equity_curve (ts, equity) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, point.Timestamp, point.Equity); err != nil {
		return fmt.Errorf("failed to insert equity point at %d: %w", point.Timestamp, err)
	}
	return nil
}

// EquityCurve returns all samples ordered by timestamp.
func (r *Repository) EquityCurve(ctx context.Context) ([]domain.EquityPoint, error) {
	const query = `SELECT ts, equity FROM equity_curve ORDER BY ts ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve: %w", err)
	}
	defer rows.Close()

	points := make([]domain.EquityPoint, 0)
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Timestamp, &p.Equity); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity rows: %w", err)
	}
	return points, nil
}
