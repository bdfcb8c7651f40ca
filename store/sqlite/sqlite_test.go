package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicbeacon/points-engine/ledger"
	"github.com/civicbeacon/points-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTx(t *testing.T, userID ledger.UserID, direction ledger.Direction, amount int) ledger.PointTransaction {
	tx, err := ledger.NewTransaction(userID, direction, amount,
		ledger.ActionCommunityProject, "test activity", "")
	require.NoError(t, err)
	return tx
}

// =============================================================================
// LEDGER PERSISTENCE TESTS
// =============================================================================

func TestStore_AppendAndListFor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, newTx(t, "user-1", ledger.DirectionEarned, 10))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTx(t, "user-1", ledger.DirectionSpent, 4))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTx(t, "user-2", ledger.DirectionEarned, 7))
	require.NoError(t, err)

	txs, err := store.ListFor(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Newest first, even for writes in the same instant (rowid tiebreak)
	assert.Equal(t, ledger.DirectionSpent, txs[0].Direction)
	assert.Equal(t, ledger.DirectionEarned, txs[1].Direction)
}

func TestStore_Append_RoundTripsAllFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in, err := ledger.NewTransaction("user-1", ledger.DirectionEarned, 10,
		ledger.ActionSightingReport, "Approved sighting report", "report-9")
	require.NoError(t, err)

	_, err = store.Append(ctx, in)
	require.NoError(t, err)

	txs, err := store.ListFor(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	out := txs[0]
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Direction, out.Direction)
	assert.Equal(t, in.Amount, out.Amount)
	assert.Equal(t, in.Action, out.Action)
	assert.Equal(t, in.Description, out.Description)
	assert.Equal(t, in.Reference, out.Reference)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt), "timestamps survive the round trip")
}

func TestStore_SumFor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, amount := range []int{10, 30, 1} {
		_, err := store.Append(ctx, newTx(t, "user-1", ledger.DirectionEarned, amount))
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, newTx(t, "user-1", ledger.DirectionSpent, 15))
	require.NoError(t, err)

	earned, err := store.SumFor(ctx, "user-1", ledger.DirectionEarned)
	require.NoError(t, err)
	assert.Equal(t, 41, earned)

	spent, err := store.SumFor(ctx, "user-1", ledger.DirectionSpent)
	require.NoError(t, err)
	assert.Equal(t, 15, spent)

	none, err := store.SumFor(ctx, "nobody", ledger.DirectionEarned)
	require.NoError(t, err)
	assert.Equal(t, 0, none)
}

// =============================================================================
// BALANCE CACHE TESTS
// =============================================================================

func TestStore_ApplyDelta_Upserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bal, err := store.ApplyDelta(ctx, "user-1", ledger.DirectionEarned, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, bal.CurrentPoints)

	bal, err = store.ApplyDelta(ctx, "user-1", ledger.DirectionSpent, 25)
	require.NoError(t, err)
	assert.Equal(t, -15, bal.CurrentPoints, "cache arithmetic allows negative balances")
	assert.Equal(t, 10, bal.TotalEarned)
	assert.Equal(t, 25, bal.TotalSpent)
}

func TestStore_GetBalance_LazyInit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bal, err := store.GetBalance(ctx, "fresh-user")
	require.NoError(t, err)
	assert.Equal(t, ledger.UserID("fresh-user"), bal.UserID)
	assert.Equal(t, 0, bal.CurrentPoints)

	// Second read hits the persisted zero row
	again, err := store.GetBalance(ctx, "fresh-user")
	require.NoError(t, err)
	assert.Equal(t, bal.CurrentPoints, again.CurrentPoints)
}

func TestStore_RebuildBalance_Overwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyDelta(ctx, "user-1", ledger.DirectionEarned, 999)
	require.NoError(t, err)

	bal, err := store.RebuildBalance(ctx, "user-1", 40, 15)
	require.NoError(t, err)

	assert.Equal(t, 25, bal.CurrentPoints)
	assert.Equal(t, 40, bal.TotalEarned)
	assert.Equal(t, 15, bal.TotalSpent)
}

// =============================================================================
// DATABASE CONSTRAINT TESTS
// =============================================================================

func TestDatabaseConstraint_DuplicateShare_DirectStore(t *testing.T) {
	// This test bypasses the engine's check-then-act to verify that the
	// unique index itself rejects a duplicate share tuple. This is the
	// last line of defense against race conditions.

	store := newTestStore(t)
	ctx := context.Background()

	rec := ledger.SocialShareRecord{
		UserID:    "user-1",
		ReportID:  "report-1",
		Platform:  "facebook",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.RecordShare(ctx, rec))

	err := store.RecordShare(ctx, rec)
	assert.ErrorIs(t, err, ledger.ErrDuplicateSocialShare,
		"database should reject the duplicate tuple")
}

func TestDatabaseConstraint_DifferentPlatform_Allowed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.RecordShare(ctx, ledger.SocialShareRecord{
		UserID: "user-1", ReportID: "report-1", Platform: "facebook", CreatedAt: now,
	}))

	err := store.RecordShare(ctx, ledger.SocialShareRecord{
		UserID: "user-1", ReportID: "report-1", Platform: "twitter", CreatedAt: now,
	})
	assert.NoError(t, err, "platform is part of the dedupe tuple")
}

func TestDatabaseConstraint_NegativeAmount_Rejected(t *testing.T) {
	// The engine validates amounts before they reach storage; the CHECK
	// constraint catches anything that slips past it.

	store := newTestStore(t)
	ctx := context.Background()

	tx := newTx(t, "user-1", ledger.DirectionEarned, 5)
	tx.Amount = -5 // forged after construction

	_, err := store.Append(ctx, tx)
	assert.Error(t, err, "database should reject negative amounts")
}

// =============================================================================
// TRANSACTION SCOPE TESTS
// =============================================================================

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s ledger.Storage) error {
		if _, err := s.Append(ctx, newTx(t, "user-1", ledger.DirectionEarned, 10)); err != nil {
			return err
		}
		_, err := s.ApplyDelta(ctx, "user-1", ledger.DirectionEarned, 10)
		return err
	})
	require.NoError(t, err)

	bal, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, bal.CurrentPoints)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a ledger row and a balance delta
	// WHEN: The callback fails afterwards
	// THEN: Neither write survives

	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s ledger.Storage) error {
		if _, err := s.Append(ctx, newTx(t, "user-1", ledger.DirectionEarned, 10)); err != nil {
			return err
		}
		if _, err := s.ApplyDelta(ctx, "user-1", ledger.DirectionEarned, 10); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	txs, err := store.ListFor(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs, "ledger write must be rolled back")

	bal, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal.CurrentPoints, "balance delta must be rolled back")
}

// =============================================================================
// ADMIN QUERY TESTS
// =============================================================================

func TestStore_AllTransactions_AcrossUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, newTx(t, "user-1", ledger.DirectionEarned, 10))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTx(t, "user-2", ledger.DirectionEarned, 5))
	require.NoError(t, err)

	txs, err := store.AllTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, ledger.UserID("user-2"), txs[0].UserID, "newest first")
}

func TestStore_Users(t *testing.T) {
	// GIVEN: One user with only ledger rows (no balance row yet) and one
	//        with only a balance row
	// WHEN: Listing known users
	// THEN: Both appear, each once

	store := newTestStore(t)
	ctx := context.Background()

	// Ledger rows only: the state direct ledger writes leave behind
	// before any recalculation creates the balance row
	_, err := store.Append(ctx, newTx(t, "user-b", ledger.DirectionEarned, 10))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTx(t, "user-a", ledger.DirectionEarned, 5))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTx(t, "user-a", ledger.DirectionSpent, 1))
	require.NoError(t, err)

	// Balance row only
	_, err = store.ApplyDelta(ctx, "user-c", ledger.DirectionEarned, 3)
	require.NoError(t, err)

	users, err := store.Users(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ledger.UserID{"user-a", "user-b", "user-c"}, users)
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, newTx(t, "user-1", ledger.DirectionEarned, 10))
	require.NoError(t, err)
	_, err = store.ApplyDelta(ctx, "user-1", ledger.DirectionEarned, 10)
	require.NoError(t, err)
	require.NoError(t, store.RecordShare(ctx, ledger.SocialShareRecord{
		UserID: "user-1", ReportID: "report-1", Platform: "facebook",
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.Reset(ctx))

	txs, err := store.ListFor(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)

	exists, err := store.ShareExists(ctx, "user-1", "report-1", "facebook")
	require.NoError(t, err)
	assert.False(t, exists)
}
