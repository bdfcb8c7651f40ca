/*
Package points provides the award engine for the community platform.

PURPOSE:
  Maps domain events (registration, approved sighting reports, social
  shares, community project completion and rollback, reward redemption)
  to ledger entries, and keeps the per-user balance aggregate consistent
  with the ledger while doing so.

KEY RULES:
  1. Every earning/spending operation writes exactly one ledger entry
     and then updates the balance, atomically. The one exception is a
     duplicate social share, which writes nothing and reports false.
  2. Amounts are non-negative; zero-amount entries are recorded but do
     not move the balance.
  3. The generic deduction path never checks sufficiency - balances may
     go negative. Rollback flows (project status reverted) depend on
     deductions succeeding unconditionally.
  4. Reward redemption is the ONE spend path with a hard sufficiency
     guard: balance < required fails with InsufficientPointsError and
     writes nothing.
  5. Registration and sighting awards are NOT idempotent. Callers invoke
     them once per lifecycle event; the engine does not guard repeats.

CONCURRENCY:
  Operations on the same user are serialized by a per-user lock, and
  each operation runs inside the store's transactional boundary. Two
  concurrent awards for one user can never both read a stale balance.
  Operations on different users proceed in parallel.

NOTIFICATIONS:
  The engine performs no I/O beyond storage. It returns the resulting
  balance (or the awarded boolean) so the caller can decide whether and
  how to notify the user.

SEE ALSO:
  - ledger/: Types, contracts, and errors
  - query.go: Read-only facade for external callers
*/
package points

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/civicbeacon/points-engine/ledger"
)

// =============================================================================
// AWARD AMOUNTS - Fixed platform-wide point values
// =============================================================================

const (
	// RegistrationPoints is the one-time welcome award.
	RegistrationPoints = 10

	// SightingReportPoints is awarded when a sighting report is approved.
	SightingReportPoints = 10

	// SocialSharePoints is awarded once per (user, report, platform).
	SocialSharePoints = 1

	// DefaultHistoryLimit caps history reads when the caller passes no limit.
	DefaultHistoryLimit = 50
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the only writer of point transactions and user balances.
type Engine struct {
	store ledger.TxStorage
	locks userLocks
}

// NewEngine creates an award engine over the given storage.
func NewEngine(store ledger.TxStorage) *Engine {
	return &Engine{store: store}
}

// =============================================================================
// EARNING OPERATIONS
// =============================================================================

// AwardRegistrationPoints grants the fixed welcome award.
// Callers are expected to invoke this once per user lifecycle; the
// engine does not guard against repeats.
func (e *Engine) AwardRegistrationPoints(ctx context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	return e.award(ctx, userID, RegistrationPoints, ledger.ActionRegistration,
		"Welcome bonus for registering", "")
}

// AwardSightingReportPoints grants the fixed award for an approved
// sighting report.
func (e *Engine) AwardSightingReportPoints(ctx context.Context, userID ledger.UserID, sightingReportID string) (ledger.UserBalance, error) {
	return e.award(ctx, userID, SightingReportPoints, ledger.ActionSightingReport,
		"Approved sighting report", sightingReportID)
}

// AwardCommunityProjectPoints grants a project's configured reward on
// completion.
func (e *Engine) AwardCommunityProjectPoints(ctx context.Context, userID ledger.UserID, projectID, projectTitle string, amount int) (ledger.UserBalance, error) {
	return e.award(ctx, userID, amount, ledger.ActionCommunityProject,
		fmt.Sprintf("Completed community project: %s", projectTitle), projectID)
}

// AwardSocialSharePoints grants the share award at most once per
// (user, report, platform). A repeat attempt returns false with the
// unchanged balance and no error; the duplicate check and the ledger
// write happen inside one transaction, so concurrent attempts cannot
// both pass the check.
func (e *Engine) AwardSocialSharePoints(ctx context.Context, userID ledger.UserID, reportID, platform string) (bool, ledger.UserBalance, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	var (
		awarded bool
		out     ledger.UserBalance
	)
	err := e.store.WithTx(ctx, func(s ledger.Storage) error {
		exists, err := s.ShareExists(ctx, userID, reportID, platform)
		if err != nil {
			return err
		}
		if exists {
			out, err = s.GetBalance(ctx, userID)
			return err
		}

		if err := s.RecordShare(ctx, ledger.SocialShareRecord{
			UserID:   userID,
			ReportID: reportID,
			Platform: platform,
		}); err != nil {
			return err
		}

		tx, err := ledger.NewTransaction(userID, ledger.DirectionEarned, SocialSharePoints,
			ledger.ActionSocialShare,
			fmt.Sprintf("Shared report %s on %s", reportID, platform), platform)
		if err != nil {
			return err
		}
		if _, err := s.Append(ctx, tx); err != nil {
			return err
		}

		out, err = s.ApplyDelta(ctx, userID, ledger.DirectionEarned, SocialSharePoints)
		awarded = err == nil
		return err
	})
	if errors.Is(err, ledger.ErrDuplicateSocialShare) {
		// Lost a cross-process race to the unique index: same outcome as
		// finding the marker up front.
		bal, balErr := e.store.GetBalance(ctx, userID)
		return false, bal, balErr
	}
	if err != nil {
		return false, ledger.UserBalance{}, err
	}
	return awarded, out, nil
}

// AwardPoints is the generic earn path, used by the fixed awards above
// and by ad hoc/admin flows. A zero amount still records a ledger entry
// and leaves the balance unchanged; negative amounts are rejected.
func (e *Engine) AwardPoints(ctx context.Context, userID ledger.UserID, amount int, action ledger.Action, description string) (ledger.UserBalance, error) {
	return e.award(ctx, userID, amount, action, description, "")
}

func (e *Engine) award(ctx context.Context, userID ledger.UserID, amount int, action ledger.Action, description, reference string) (ledger.UserBalance, error) {
	return e.write(ctx, userID, ledger.DirectionEarned, amount, action, description, reference)
}

// =============================================================================
// SPENDING OPERATIONS
// =============================================================================

// DeductPoints is the generic spend path. It does NOT check sufficiency:
// the deduction always succeeds and may drive the balance negative.
// Rollback flows depend on this; callers wanting enforcement check
// HasEnoughPoints first or use DeductRewardPoints.
func (e *Engine) DeductPoints(ctx context.Context, userID ledger.UserID, amount int, action ledger.Action, description string) (ledger.UserBalance, error) {
	return e.write(ctx, userID, ledger.DirectionSpent, amount, action, description, "")
}

// DeductRewardPoints spends points on a reward. Unlike DeductPoints it
// enforces sufficiency: if the current balance is below pointsRequired
// it fails with InsufficientPointsError and writes nothing.
func (e *Engine) DeductRewardPoints(ctx context.Context, userID ledger.UserID, rewardID, rewardName string, pointsRequired int) (ledger.UserBalance, error) {
	if pointsRequired < 0 {
		return ledger.UserBalance{}, ledger.ErrInvalidAmount
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	var out ledger.UserBalance
	err := e.store.WithTx(ctx, func(s ledger.Storage) error {
		bal, err := s.GetBalance(ctx, userID)
		if err != nil {
			return err
		}
		if bal.CurrentPoints < pointsRequired {
			return &ledger.InsufficientPointsError{
				UserID:    userID,
				Available: bal.CurrentPoints,
				Required:  pointsRequired,
			}
		}

		tx, err := ledger.NewTransaction(userID, ledger.DirectionSpent, pointsRequired,
			ledger.ActionRewardRedemption,
			fmt.Sprintf("Redeemed reward: %s", rewardName), rewardID)
		if err != nil {
			return err
		}
		if _, err := s.Append(ctx, tx); err != nil {
			return err
		}

		out, err = s.ApplyDelta(ctx, userID, ledger.DirectionSpent, pointsRequired)
		return err
	})
	if err != nil {
		return ledger.UserBalance{}, err
	}
	return out, nil
}

// write is the shared earn/spend primitive: one ledger append plus one
// balance update, atomic per user.
func (e *Engine) write(ctx context.Context, userID ledger.UserID, direction ledger.Direction, amount int, action ledger.Action, description, reference string) (ledger.UserBalance, error) {
	tx, err := ledger.NewTransaction(userID, direction, amount, action, description, reference)
	if err != nil {
		return ledger.UserBalance{}, err
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	var out ledger.UserBalance
	err = e.store.WithTx(ctx, func(s ledger.Storage) error {
		if _, err := s.Append(ctx, tx); err != nil {
			return err
		}
		out, err = s.ApplyDelta(ctx, userID, direction, amount)
		return err
	})
	if err != nil {
		return ledger.UserBalance{}, err
	}
	return out, nil
}

// =============================================================================
// READS
// =============================================================================

// HasEnoughPoints reports whether the current balance covers amount.
func (e *Engine) HasEnoughPoints(ctx context.Context, userID ledger.UserID, amount int) (bool, error) {
	bal, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return bal.CurrentPoints >= amount, nil
}

// CurrentPoints returns the user's current balance, creating a zeroed
// record on first read.
func (e *Engine) CurrentPoints(ctx context.Context, userID ledger.UserID) (int, error) {
	bal, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return bal.CurrentPoints, nil
}

// Balance returns the full aggregate for the user.
func (e *Engine) Balance(ctx context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	return e.store.GetBalance(ctx, userID)
}

// PointsHistory returns the user's transactions newest first. A
// non-positive limit means DefaultHistoryLimit.
func (e *Engine) PointsHistory(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.PointTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return e.store.ListFor(ctx, userID, limit)
}

// =============================================================================
// RECALCULATION - Consistency repair
// =============================================================================

// RecalculateUserPoints rebuilds the balance aggregate from the full
// ledger, overwriting the cached values unconditionally. Used to repair
// consistency after direct ledger manipulation or data migration.
func (e *Engine) RecalculateUserPoints(ctx context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	var out ledger.UserBalance
	err := e.store.WithTx(ctx, func(s ledger.Storage) error {
		earned, err := s.SumFor(ctx, userID, ledger.DirectionEarned)
		if err != nil {
			return err
		}
		spent, err := s.SumFor(ctx, userID, ledger.DirectionSpent)
		if err != nil {
			return err
		}
		out, err = s.RebuildBalance(ctx, userID, earned, spent)
		return err
	})
	if err != nil {
		return ledger.UserBalance{}, err
	}
	return out, nil
}

// =============================================================================
// PER-USER LOCKS
// =============================================================================

// userLocks serializes operations per user. Different users never share
// a lock, so their operations are fully independent.
//
// The map holds one mutex per user ever seen and is never pruned. At a
// few dozen bytes per active user that stays small for this service's
// population; a store-level advisory lock would be needed before
// sharding across processes anyway.
type userLocks struct {
	mu sync.Mutex
	m  map[ledger.UserID]*sync.Mutex
}

func (l *userLocks) lock(userID ledger.UserID) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[ledger.UserID]*sync.Mutex)
	}
	lk, ok := l.m[userID]
	if !ok {
		lk = &sync.Mutex{}
		l.m[userID] = lk
	}
	l.mu.Unlock()

	lk.Lock()
	return lk.Unlock
}
