/*
store.go - Persistence contracts for the points ledger

PURPOSE:
  Defines the interfaces between the domain logic and the database.
  The ledger itself is append-only; the balance aggregate and the social
  share markers live beside it and are written in the same logical
  transaction as the ledger entry they correspond to.

KEY INTERFACES:
  Store:        Append-only transaction persistence (append, sum, list)
  BalanceStore: Per-user aggregate (get, apply delta, rebuild)
  ShareStore:   Social share dedupe markers
  Storage:      The three combined; what the award engine operates on
  TxStorage:    Storage with WithTx for atomic multi-table writes

APPEND-ONLY CONTRACT:
  Store exposes Append and reads. NO Update() or Delete() methods exist.
  Status reversals are modeled as new spend transactions, never edits.

ATOMICITY:
  WithTx() ensures all-or-nothing semantics. An award is one ledger row
  plus one balance update (plus, for shares, one marker row): either all
  are committed or none are. A partially applied award must never be
  observable.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Durable SQLite store
  - ledger/store/memory.go: In-memory store for testing

SEE ALSO:
  - ledger.go: Read facade built on Store
  - points/engine.go: The only writer
*/
package ledger

import "context"

// =============================================================================
// STORE - Append-only transaction persistence
// =============================================================================

// Store handles persistence of point transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a transaction and returns it with its identifier
	// assigned. This is the ONLY write operation on the ledger. A
	// successfully appended transaction is visible to subsequent reads
	// within the same logical operation.
	Append(ctx context.Context, tx PointTransaction) (PointTransaction, error)

	// SumFor returns the sum of amounts for a user in one direction.
	SumFor(ctx context.Context, userID UserID, direction Direction) (int, error)

	// ListFor returns a user's transactions newest first, capped at
	// limit. limit <= 0 means no cap.
	ListFor(ctx context.Context, userID UserID, limit int) ([]PointTransaction, error)
}

// =============================================================================
// BALANCE STORE - Materialized per-user aggregate
// =============================================================================

// BalanceStore maintains the UserBalance aggregate. Writes to it happen
// only inside the award engine's transactional boundary.
type BalanceStore interface {
	// GetBalance returns the user's balance, creating a zero-valued
	// record if none exists yet.
	GetBalance(ctx context.Context, userID UserID) (UserBalance, error)

	// ApplyDelta increments the aggregate for one new transaction and
	// returns the updated balance. Earned raises current and total
	// earned; spent lowers current and raises total spent.
	ApplyDelta(ctx context.Context, userID UserID, direction Direction, amount int) (UserBalance, error)

	// RebuildBalance overwrites the aggregate from full ledger sums.
	// Used by recalculation for consistency repair.
	RebuildBalance(ctx context.Context, userID UserID, earned, spent int) (UserBalance, error)
}

// =============================================================================
// SHARE STORE - Social share dedupe markers
// =============================================================================

type ShareStore interface {
	// ShareExists checks for a prior share award for the tuple.
	ShareExists(ctx context.Context, userID UserID, reportID, platform string) (bool, error)

	// RecordShare persists the dedupe marker. Returns
	// ErrDuplicateSocialShare if the tuple already exists; this is the
	// last line of defense against concurrent duplicate shares.
	RecordShare(ctx context.Context, rec SocialShareRecord) error
}

// =============================================================================
// COMBINED STORAGE
// =============================================================================

// Storage is everything the award engine needs from persistence.
type Storage interface {
	Store
	BalanceStore
	ShareStore
}

// TxStorage wraps Storage with transaction support.
// Every engine operation runs inside WithTx so the ledger append and the
// balance update commit or abort together.
type TxStorage interface {
	Storage

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Storage) error) error
}
