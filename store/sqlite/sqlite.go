/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TxStorage (transactions, balances, share markers)
  using SQLite. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The ledger table is append-only:
  - No UPDATE statements on point_transactions
  - No DELETE statements on point_transactions
  - Reversals are new spend rows, never edits

KEY TABLES:
  point_transactions: Immutable ledger of all point changes
  user_balances:      Materialized per-user aggregate
  social_shares:      Share dedupe markers

INDEXES:
  - idx_transactions_user_created: History reads and sums (hot path)
  - idx_unique_social_share: Enforces one award per (user, report, platform);
    the last line of defense if two share attempts race past the engine

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process; WithTx wraps
  multi-table writes in a database transaction so a ledger row and its
  balance update commit or roll back together.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  engine := points.NewEngine(st)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/civicbeacon/points-engine/ledger"
)

// Store implements ledger.TxStorage using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Point transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS point_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('earned', 'spent')),
		amount INTEGER NOT NULL CHECK (amount >= 0),
		action TEXT NOT NULL,
		description TEXT,
		reference TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON point_transactions(user_id);

	-- Composite index for history reads and direction sums (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_user_created
		ON point_transactions(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_direction
		ON point_transactions(user_id, direction);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON point_transactions(reference) WHERE reference != '';

	-- Per-user materialized aggregate
	CREATE TABLE IF NOT EXISTS user_balances (
		user_id TEXT PRIMARY KEY,
		current_points INTEGER NOT NULL DEFAULT 0,
		total_earned INTEGER NOT NULL DEFAULT 0,
		total_spent INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- Social share dedupe markers
	CREATE TABLE IF NOT EXISTS social_shares (
		user_id TEXT NOT NULL,
		report_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one share award per (user, report, platform)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_social_share
		ON social_shares(user_id, report_id, platform);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.PointTransaction) (ledger.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, q querier, tx ledger.PointTransaction) (ledger.PointTransaction, error) {
	if tx.Amount < 0 {
		return ledger.PointTransaction{}, ledger.ErrInvalidAmount
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO point_transactions
		(id, user_id, direction, amount, action, description, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Direction,
		tx.Amount,
		tx.Action,
		tx.Description,
		tx.Reference,
		tx.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ledger.PointTransaction{}, &ledger.PersistenceError{Op: "append transaction", Err: err}
	}

	return tx, nil
}

// SumFor returns the sum of amounts for a user in one direction.
func (s *Store) SumFor(ctx context.Context, userID ledger.UserID, direction ledger.Direction) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sumFor(ctx, s.db, userID, direction)
}

func sumFor(ctx context.Context, q querier, userID ledger.UserID, direction ledger.Direction) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE user_id = ? AND direction = ?",
		userID, direction,
	).Scan(&sum)
	if err != nil {
		return 0, &ledger.PersistenceError{Op: "sum transactions", Err: err}
	}
	return sum, nil
}

// ListFor returns a user's transactions newest first.
func (s *Store) ListFor(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.PointTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listFor(ctx, s.db, userID, limit)
}

func listFor(ctx context.Context, q querier, userID ledger.UserID, limit int) ([]ledger.PointTransaction, error) {
	query := `
		SELECT id, user_id, direction, amount, action, description, reference, created_at
		FROM point_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]ledger.PointTransaction, error) {
	var txs []ledger.PointTransaction
	for rows.Next() {
		var (
			tx          ledger.PointTransaction
			description sql.NullString
			reference   sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Direction, &tx.Amount,
			&tx.Action, &description, &reference, &createdAt); err != nil {
			return nil, &ledger.PersistenceError{Op: "scan transaction", Err: err}
		}
		tx.Description = description.String
		tx.Reference = reference.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore interface)
// =============================================================================

// GetBalance returns the user's balance, creating a zero row on first read.
func (s *Store) GetBalance(ctx context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return getBalance(ctx, s.db, userID)
}

func getBalance(ctx context.Context, q querier, userID ledger.UserID) (ledger.UserBalance, error) {
	// Lazy creation keeps first reads and first awards symmetric.
	_, err := q.ExecContext(ctx,
		"INSERT INTO user_balances (user_id, updated_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING",
		userID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return ledger.UserBalance{}, &ledger.PersistenceError{Op: "init balance", Err: err}
	}
	return scanBalance(ctx, q, userID)
}

func scanBalance(ctx context.Context, q querier, userID ledger.UserID) (ledger.UserBalance, error) {
	var bal ledger.UserBalance
	var updatedAt string

	err := q.QueryRowContext(ctx,
		"SELECT user_id, current_points, total_earned, total_spent, updated_at FROM user_balances WHERE user_id = ?",
		userID,
	).Scan(&bal.UserID, &bal.CurrentPoints, &bal.TotalEarned, &bal.TotalSpent, &updatedAt)
	if err != nil {
		return ledger.UserBalance{}, &ledger.PersistenceError{Op: "read balance", Err: err}
	}
	bal.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return bal, nil
}

// ApplyDelta increments the aggregate for one new transaction.
func (s *Store) ApplyDelta(ctx context.Context, userID ledger.UserID, direction ledger.Direction, amount int) (ledger.UserBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return applyDelta(ctx, s.db, userID, direction, amount)
}

func applyDelta(ctx context.Context, q querier, userID ledger.UserID, direction ledger.Direction, amount int) (ledger.UserBalance, error) {
	if amount < 0 {
		return ledger.UserBalance{}, ledger.ErrInvalidAmount
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	switch direction {
	case ledger.DirectionEarned:
		query := `
			INSERT INTO user_balances (user_id, current_points, total_earned, total_spent, updated_at)
			VALUES (?, ?, ?, 0, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				current_points = user_balances.current_points + ?,
				total_earned = user_balances.total_earned + ?,
				updated_at = ?
		`
		if _, err := q.ExecContext(ctx, query, userID, amount, amount, now, amount, amount, now); err != nil {
			return ledger.UserBalance{}, &ledger.PersistenceError{Op: "apply balance delta", Err: err}
		}
	case ledger.DirectionSpent:
		query := `
			INSERT INTO user_balances (user_id, current_points, total_earned, total_spent, updated_at)
			VALUES (?, ?, 0, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				current_points = user_balances.current_points - ?,
				total_spent = user_balances.total_spent + ?,
				updated_at = ?
		`
		if _, err := q.ExecContext(ctx, query, userID, -amount, amount, now, amount, amount, now); err != nil {
			return ledger.UserBalance{}, &ledger.PersistenceError{Op: "apply balance delta", Err: err}
		}
	default:
		return ledger.UserBalance{}, ledger.ErrInvalidDirection
	}

	return scanBalance(ctx, q, userID)
}

// RebuildBalance overwrites the aggregate from full ledger sums.
func (s *Store) RebuildBalance(ctx context.Context, userID ledger.UserID, earned, spent int) (ledger.UserBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return rebuildBalance(ctx, s.db, userID, earned, spent)
}

func rebuildBalance(ctx context.Context, q querier, userID ledger.UserID, earned, spent int) (ledger.UserBalance, error) {
	query := `
		INSERT INTO user_balances (user_id, current_points, total_earned, total_spent, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			current_points = excluded.current_points,
			total_earned = excluded.total_earned,
			total_spent = excluded.total_spent,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		userID, earned-spent, earned, spent,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return ledger.UserBalance{}, &ledger.PersistenceError{Op: "rebuild balance", Err: err}
	}
	return scanBalance(ctx, q, userID)
}

// =============================================================================
// SHARE STORE (ledger.ShareStore interface)
// =============================================================================

// ShareExists checks for a prior share award for the tuple.
func (s *Store) ShareExists(ctx context.Context, userID ledger.UserID, reportID, platform string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return shareExists(ctx, s.db, userID, reportID, platform)
}

func shareExists(ctx context.Context, q querier, userID ledger.UserID, reportID, platform string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM social_shares WHERE user_id = ? AND report_id = ? AND platform = ?",
		userID, reportID, platform,
	).Scan(&count)
	if err != nil {
		return false, &ledger.PersistenceError{Op: "check share", Err: err}
	}
	return count > 0, nil
}

// RecordShare persists the dedupe marker.
func (s *Store) RecordShare(ctx context.Context, rec ledger.SocialShareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return recordShare(ctx, s.db, rec)
}

func recordShare(ctx context.Context, q querier, rec ledger.SocialShareRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx,
		"INSERT INTO social_shares (user_id, report_id, platform, created_at) VALUES (?, ?, ?, ?)",
		rec.UserID, rec.ReportID, rec.Platform, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSocialShare
		}
		return &ledger.PersistenceError{Op: "record share", Err: err}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORAGE (ledger.TxStorage interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Storage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.PersistenceError{Op: "begin transaction", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&txStorage{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &ledger.PersistenceError{Op: "commit transaction", Err: err}
	}
	return nil
}

// txStorage is the Storage view scoped to one database transaction.
type txStorage struct {
	tx *sql.Tx
}

func (ts *txStorage) Append(ctx context.Context, tx ledger.PointTransaction) (ledger.PointTransaction, error) {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStorage) SumFor(ctx context.Context, userID ledger.UserID, direction ledger.Direction) (int, error) {
	return sumFor(ctx, ts.tx, userID, direction)
}

func (ts *txStorage) ListFor(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.PointTransaction, error) {
	return listFor(ctx, ts.tx, userID, limit)
}

func (ts *txStorage) GetBalance(ctx context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	return getBalance(ctx, ts.tx, userID)
}

func (ts *txStorage) ApplyDelta(ctx context.Context, userID ledger.UserID, direction ledger.Direction, amount int) (ledger.UserBalance, error) {
	return applyDelta(ctx, ts.tx, userID, direction, amount)
}

func (ts *txStorage) RebuildBalance(ctx context.Context, userID ledger.UserID, earned, spent int) (ledger.UserBalance, error) {
	return rebuildBalance(ctx, ts.tx, userID, earned, spent)
}

func (ts *txStorage) ShareExists(ctx context.Context, userID ledger.UserID, reportID, platform string) (bool, error) {
	return shareExists(ctx, ts.tx, userID, reportID, platform)
}

func (ts *txStorage) RecordShare(ctx context.Context, rec ledger.SocialShareRecord) error {
	return recordShare(ctx, ts.tx, rec)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"point_transactions", "user_balances", "social_shares"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// AllTransactions returns the most recent transactions across all users
// (for admin inspection).
func (s *Store) AllTransactions(ctx context.Context, limit int) ([]ledger.PointTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, direction, amount, action, description, reference, created_at
		FROM point_transactions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "list all transactions", Err: err}
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Users returns the ids of all users the store knows about: anyone with
// a ledger row or a balance row. A user whose ledger rows were written
// directly (before any recalculation creates their balance row) must
// still show up here.
func (s *Store) Users(ctx context.Context) ([]ledger.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT user_id FROM point_transactions
		UNION
		SELECT user_id FROM user_balances
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "list users", Err: err}
	}
	defer rows.Close()

	var users []ledger.UserID
	for rows.Next() {
		var id ledger.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
