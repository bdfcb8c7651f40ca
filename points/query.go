/*
query.go - Read-only facade over the points ledger

PURPOSE:
  External callers (UI rendering, admin reporting, notification
  triggers, test harnesses) need balance and history reads without any
  write access. Query exposes exactly that: it holds the storage but
  can only read from it, and it never mutates the balance aggregate.

SEE ALSO:
  - engine.go: The write side
  - stats.go: Aggregated activity summaries
*/
package points

import (
	"context"

	"github.com/civicbeacon/points-engine/ledger"
)

// =============================================================================
// QUERY FACADE
// =============================================================================

// Query is the read-only view of the points subsystem.
type Query struct {
	store ledger.Storage
	ldg   *ledger.Ledger
}

// NewQuery creates a read-only facade over the given storage.
func NewQuery(store ledger.Storage) *Query {
	return &Query{store: store, ldg: ledger.NewLedger(store)}
}

// CurrentPoints returns the user's current balance, creating a zeroed
// record on first read.
func (q *Query) CurrentPoints(ctx context.Context, userID ledger.UserID) (int, error) {
	bal, err := q.store.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return bal.CurrentPoints, nil
}

// Balance returns the full aggregate for the user.
func (q *Query) Balance(ctx context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	return q.store.GetBalance(ctx, userID)
}

// PointsHistory returns the user's transactions newest first. A
// non-positive limit means DefaultHistoryLimit.
func (q *Query) PointsHistory(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.PointTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return q.ldg.History(ctx, userID, limit)
}

// HasEnoughPoints reports whether the current balance covers amount.
func (q *Query) HasEnoughPoints(ctx context.Context, userID ledger.UserID, amount int) (bool, error) {
	bal, err := q.store.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return bal.CurrentPoints >= amount, nil
}

// =============================================================================
// CONSISTENCY AUDIT
// =============================================================================

// AuditResult compares the cached aggregate against the ledger sums.
type AuditResult struct {
	UserID       ledger.UserID
	Consistent   bool
	Cached       ledger.UserBalance
	LedgerEarned int
	LedgerSpent  int
}

// Audit verifies the balance invariant for one user. An inconsistent
// result means the cache has diverged; RecalculateUserPoints repairs it.
func (q *Query) Audit(ctx context.Context, userID ledger.UserID) (AuditResult, error) {
	bal, err := q.store.GetBalance(ctx, userID)
	if err != nil {
		return AuditResult{}, err
	}
	earned, spent, err := q.ldg.Sums(ctx, userID)
	if err != nil {
		return AuditResult{}, err
	}

	return AuditResult{
		UserID:       userID,
		Consistent:   bal.TotalEarned == earned && bal.TotalSpent == spent && bal.CurrentPoints == earned-spent,
		Cached:       bal,
		LedgerEarned: earned,
		LedgerSpent:  spent,
	}, nil
}

// ActivitySummary aggregates a user's whole ledger; see stats.go.
func (q *Query) ActivitySummary(ctx context.Context, userID ledger.UserID) (ActivitySummary, error) {
	txs, err := q.store.ListFor(ctx, userID, 0)
	if err != nil {
		return ActivitySummary{}, err
	}
	return Summarize(userID, txs), nil
}
