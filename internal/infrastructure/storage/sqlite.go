package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements domain.TargetStore and domain.PositionStore on a
// local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS snipe_targets (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			position_size REAL NOT NULL,
			confidence REAL NOT NULL,
			pattern_type TEXT NOT NULL DEFAULT '',
			stop_loss_pct REAL NOT NULL DEFAULT 0,
			take_profit_pct REAL NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 0,
			execute_at DATETIME,
			status TEXT NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			executed_at DATETIME,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_targets_status ON snipe_targets(status, priority, created_at);`,
		`CREATE TABLE IF NOT EXISTS open_positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			stop_loss_price REAL NOT NULL DEFAULT 0,
			take_profit_price REAL NOT NULL DEFAULT 0,
			strategy TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			auto_sniped BOOLEAN NOT NULL DEFAULT 0,
			paper_trade BOOLEAN NOT NULL DEFAULT 0,
			opened_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			pnl_percent REAL NOT NULL,
			exit_reason TEXT NOT NULL DEFAULT '',
			strategy TEXT NOT NULL DEFAULT '',
			paper_trade BOOLEAN NOT NULL DEFAULT 0,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// TargetStore implementation

func (s *SQLiteStore) SaveTarget(ctx context.Context, t *domain.SnipeTarget) error {
	query := `INSERT INTO snipe_targets (id, symbol, position_size, confidence, pattern_type, stop_loss_pct, take_profit_pct, priority, execute_at, status, failure_reason, executed_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Symbol, t.PositionSize, t.Confidence, t.PatternType,
		t.StopLossPct, t.TakeProfitPct, t.Priority, t.ExecuteAt, t.Status, t.FailureReason, t.ExecutedAt, t.CreatedAt)
	return err
}

func (s *SQLiteStore) ListReady(ctx context.Context, limit int) ([]*domain.SnipeTarget, error) {
	query := `SELECT id, symbol, position_size, confidence, pattern_type, stop_loss_pct, take_profit_pct, priority, execute_at, status, failure_reason, executed_at, created_at
			  FROM snipe_targets
			  WHERE status = ? AND (execute_at IS NULL OR execute_at <= ?)
			  ORDER BY priority DESC, created_at ASC
			  LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, domain.TargetReady, time.Now().Add(5*time.Second), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []*domain.SnipeTarget
	for rows.Next() {
		var t domain.SnipeTarget
		if err := rows.Scan(&t.ID, &t.Symbol, &t.PositionSize, &t.Confidence, &t.PatternType,
			&t.StopLossPct, &t.TakeProfitPct, &t.Priority, &t.ExecuteAt, &t.Status, &t.FailureReason, &t.ExecutedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status domain.TargetStatus, executedAt *time.Time, failureReason string) error {
	query := `UPDATE snipe_targets SET status = ?, executed_at = COALESCE(?, executed_at), failure_reason = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, status, executedAt, failureReason, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no target with id %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetTarget(ctx context.Context, id string) (*domain.SnipeTarget, error) {
	query := `SELECT id, symbol, position_size, confidence, pattern_type, stop_loss_pct, take_profit_pct, priority, execute_at, status, failure_reason, executed_at, created_at
			  FROM snipe_targets WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	var t domain.SnipeTarget
	err := row.Scan(&t.ID, &t.Symbol, &t.PositionSize, &t.Confidence, &t.PatternType,
		&t.StopLossPct, &t.TakeProfitPct, &t.Priority, &t.ExecuteAt, &t.Status, &t.FailureReason, &t.ExecutedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PositionStore implementation

func (s *SQLiteStore) SaveOpenPosition(ctx context.Context, pos *domain.Position) error {
	query := `INSERT OR REPLACE INTO open_positions (id, symbol, side, quantity, entry_price, stop_loss_price, take_profit_price, strategy, confidence, auto_sniped, paper_trade, opened_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, pos.Side, pos.Quantity, pos.EntryPrice,
		pos.StopLossPrice, pos.TakeProfitPrice, pos.Strategy, pos.Confidence,
		pos.AutoSniped, pos.PaperTrade, pos.OpenedAt)
	return err
}

func (s *SQLiteStore) DeleteOpenPosition(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM open_positions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT id, symbol, side, quantity, entry_price, stop_loss_price, take_profit_price, strategy, confidence, auto_sniped, paper_trade, opened_at
			  FROM open_positions ORDER BY opened_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice,
			&p.StopLossPrice, &p.TakeProfitPrice, &p.Strategy, &p.Confidence,
			&p.AutoSniped, &p.PaperTrade, &p.OpenedAt); err != nil {
			return nil, err
		}
		p.Status = domain.PositionOpen
		p.CurrentPrice = p.EntryPrice
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) SaveClosedPosition(ctx context.Context, pos *domain.Position) error {
	query := `INSERT OR REPLACE INTO position_history (id, symbol, side, quantity, entry_price, exit_price, realized_pnl, pnl_percent, exit_reason, strategy, paper_trade, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, pos.Side, pos.Quantity, pos.EntryPrice, pos.CurrentPrice,
		pos.RealizedPnL, pos.PnLPercent, pos.ExitReason, pos.Strategy, pos.PaperTrade, pos.OpenedAt, pos.ClosedAt)
	return err
}

func (s *SQLiteStore) ListClosedPositions(ctx context.Context, limit int) ([]*domain.Position, error) {
	query := `SELECT id, symbol, side, quantity, entry_price, exit_price, realized_pnl, pnl_percent, exit_reason, strategy, paper_trade, opened_at, closed_at
			  FROM position_history ORDER BY closed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		var closedAt time.Time
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice, &p.CurrentPrice,
			&p.RealizedPnL, &p.PnLPercent, &p.ExitReason, &p.Strategy, &p.PaperTrade, &p.OpenedAt, &closedAt); err != nil {
			return nil, err
		}
		p.Status = domain.PositionClosed
		p.ClosedAt = &closedAt
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
