/*
ledger.go - Transaction construction and the read facade

PURPOSE:
  The Ledger is the immutable source of truth for all point changes.
  Every award and deduction is recorded here. The balance aggregate is
  a cache; it can always be rebuilt by replaying the ledger.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. NON-NEGATIVE: Amounts are validated before any write; zero is allowed
  4. RECONSTRUCTIBLE: balance = Σ(earned) − Σ(spent) at all times

CORRECTIONS:
  If an award needs to be undone (a community project reverted, say),
  you don't edit the transaction. A compensating spend transaction is
  appended instead, and both remain in the ledger.

EXAMPLE FLOW:
  1. Project completed: earned +50 (community_project)
  2. Project status reverted: spent 50 (project_status_reverted)
  3. Re-completed: earned +50 again
  Net is +50, and every step is explained by the ledger.

SEE ALSO:
  - store.go: Low-level persistence contracts
  - points/engine.go: The business-rule layer that writes entries
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TRANSACTION CONSTRUCTION
// =============================================================================

// NewTransaction builds a validated, timestamped ledger entry.
// Returns ErrInvalidAmount for negative amounts and ErrInvalidDirection
// for unknown directions. The identifier is assigned here so callers
// can correlate the entry before it is persisted.
func NewTransaction(userID UserID, direction Direction, amount int, action Action, description, reference string) (PointTransaction, error) {
	if amount < 0 {
		return PointTransaction{}, ErrInvalidAmount
	}
	if !direction.Valid() {
		return PointTransaction{}, ErrInvalidDirection
	}
	return PointTransaction{
		ID:          TransactionID("ptx-" + uuid.NewString()),
		UserID:      userID,
		Direction:   direction,
		Amount:      amount,
		Action:      action,
		Description: description,
		Reference:   reference,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// =============================================================================
// LEDGER - Read facade over the append-only store
// =============================================================================

// Ledger exposes read-only views over the transaction log. Writes go
// through the award engine, never through this type.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// History returns a user's transactions, newest first, capped at limit.
func (l *Ledger) History(ctx context.Context, userID UserID, limit int) ([]PointTransaction, error) {
	return l.store.ListFor(ctx, userID, limit)
}

// Sums returns the full earned and spent totals from the ledger.
// This is the authoritative pair the balance cache must agree with.
func (l *Ledger) Sums(ctx context.Context, userID UserID) (earned, spent int, err error) {
	earned, err = l.store.SumFor(ctx, userID, DirectionEarned)
	if err != nil {
		return 0, 0, err
	}
	spent, err = l.store.SumFor(ctx, userID, DirectionSpent)
	if err != nil {
		return 0, 0, err
	}
	return earned, spent, nil
}

// Verify checks a cached balance against the ledger sums. A false result
// means the cache has diverged and should be repaired by recalculation.
func (l *Ledger) Verify(ctx context.Context, bal UserBalance) (bool, error) {
	earned, spent, err := l.Sums(ctx, bal.UserID)
	if err != nil {
		return false, err
	}
	return bal.TotalEarned == earned &&
		bal.TotalSpent == spent &&
		bal.CurrentPoints == earned-spent, nil
}
