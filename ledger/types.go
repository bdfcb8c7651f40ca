/*
Package ledger provides the core types and contracts for the points ledger.

PURPOSE:
  This package contains the domain model for user points: the immutable
  PointTransaction ledger entry, the derived UserBalance aggregate, and
  the SocialShareRecord dedupe marker. The ledger is the single source
  of truth; the balance is always reconstructible from it.

KEY CONCEPTS IN THIS FILE (types.go):
  - PointTransaction: An immutable ledger entry recording a point change
  - Direction: Whether points were earned or spent
  - Action: Category tag tying a transaction to the activity that caused it
  - UserBalance: Per-user materialized aggregate (current/earned/spent)
  - SocialShareRecord: Marker enforcing one share award per (user, report, platform)

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never updated or deleted, only appended
  2. Reconstructibility: current = Σ(earned) − Σ(spent), always
  3. Type Safety: Strong typing for user and transaction identifiers
  4. Auditability: Every transaction carries action, description, and reference

USAGE:
  tx, err := ledger.NewTransaction("user-42", ledger.DirectionEarned, 10,
      ledger.ActionSightingReport, "Approved sighting report", "report-7")

SEE ALSO:
  - store.go: Persistence contracts for ledger, balance, and shares
  - ledger.go: Read facade and transaction construction
  - errors.go: Error taxonomy
*/
package ledger

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string

// =============================================================================
// DIRECTION - Earned vs spent
// =============================================================================

type Direction string

const (
	DirectionEarned Direction = "earned"
	DirectionSpent  Direction = "spent"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionEarned || d == DirectionSpent
}

// =============================================================================
// ACTION - Category tag for point-affecting activities
// =============================================================================

// Action categorizes what a transaction was for. The well-known actions
// below cover the platform's built-in flows; admin and manual flows may
// use arbitrary tags.
type Action string

const (
	ActionRegistration     Action = "registration"
	ActionSightingReport   Action = "sighting_report"
	ActionSocialShare      Action = "social_share"
	ActionCommunityProject Action = "community_project"
	ActionRewardRedemption Action = "reward_redemption"
	ActionProjectReverted  Action = "project_status_reverted"
)

// =============================================================================
// POINT TRANSACTION - Immutable, append-only ledger entry
// =============================================================================

// PointTransaction records a single point change for a user.
//
// INVARIANTS:
//   - Amount is non-negative; zero is explicitly allowed
//   - Never updated or deleted after creation
//   - CreatedAt defines history ordering
type PointTransaction struct {
	ID          TransactionID
	UserID      UserID
	Direction   Direction
	Amount      int
	Action      Action
	Description string
	Reference   string // originating entity: report id, project id, reward id, share platform
	CreatedAt   time.Time
}

// Signed returns the amount with its sign applied: positive for earned,
// negative for spent.
func (t PointTransaction) Signed() int {
	if t.Direction == DirectionSpent {
		return -t.Amount
	}
	return t.Amount
}

// =============================================================================
// USER BALANCE - Derived, mutable aggregate
// =============================================================================

// UserBalance summarizes a user's ledger. It is created lazily on first
// use, updated incrementally on each transaction, and can be rebuilt
// wholesale from the ledger at any time.
//
// OWNERSHIP: Only the award engine mutates this, through ApplyDelta and
// RebuildBalance. No other component may write it directly.
type UserBalance struct {
	UserID        UserID
	CurrentPoints int
	TotalEarned   int
	TotalSpent    int
	UpdatedAt     time.Time
}

// Consistent reports whether the internal aggregate identity holds:
// current = earned − spent.
func (b UserBalance) Consistent() bool {
	return b.CurrentPoints == b.TotalEarned-b.TotalSpent
}

// =============================================================================
// SOCIAL SHARE RECORD - Dedupe marker
// =============================================================================

// SocialShareRecord marks that a user has already been awarded points for
// sharing a specific report on a specific platform.
//
// INVARIANT: At most one social_share transaction may exist per unique
// (UserID, ReportID, Platform) tuple. The record is written in the same
// logical transaction as the award so the check-then-act is atomic.
type SocialShareRecord struct {
	UserID    UserID
	ReportID  string
	Platform  string
	CreatedAt time.Time
}
