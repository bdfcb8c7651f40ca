/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/civicbeacon/points-engine/ledger"
	"github.com/civicbeacon/points-engine/points"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BalanceDTO represents a user's point balance.
type BalanceDTO struct {
	UserID        string `json:"user_id"`
	CurrentPoints int    `json:"current_points"`
	TotalEarned   int    `json:"total_earned_points"`
	TotalSpent    int    `json:"total_spent_points"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Direction   string `json:"direction"`
	Amount      int    `json:"amount"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
	Reference   string `json:"reference,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// SightingAwardRequest awards points for an approved sighting report.
type SightingAwardRequest struct {
	ReportID string `json:"report_id"`
}

// ShareAwardRequest awards points for a social share.
type ShareAwardRequest struct {
	ReportID string `json:"report_id"`
	Platform string `json:"platform"`
}

// ShareAwardResponse reports whether the share was awarded or was a
// duplicate no-op.
type ShareAwardResponse struct {
	Awarded bool       `json:"awarded"`
	Balance BalanceDTO `json:"balance"`
}

// ProjectAwardRequest awards a community project's configured reward.
type ProjectAwardRequest struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Points    int    `json:"points"`
}

// AwardRequest is the generic earn path (admin/ad hoc flows).
type AwardRequest struct {
	Amount      int    `json:"amount"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// DeductRequest is the generic spend path. No sufficiency check.
type DeductRequest struct {
	Amount      int    `json:"amount"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// RedeemRequest spends points on a reward (the guarded spend path).
type RedeemRequest struct {
	RewardID       string `json:"reward_id"`
	RewardName     string `json:"reward_name"`
	PointsRequired int    `json:"points_required"`
}

// SufficiencyDTO is the response to a sufficiency check.
type SufficiencyDTO struct {
	UserID  string `json:"user_id"`
	Amount  int    `json:"amount"`
	Covered bool   `json:"covered"`
}

// AuditDTO reports whether the cached balance agrees with the ledger.
type AuditDTO struct {
	UserID       string     `json:"user_id"`
	Consistent   bool       `json:"consistent"`
	Cached       BalanceDTO `json:"cached"`
	LedgerEarned int        `json:"ledger_earned"`
	LedgerSpent  int        `json:"ledger_spent"`
}

// SummaryDTO is the per-user activity summary for admin reporting.
type SummaryDTO struct {
	UserID         string         `json:"user_id"`
	Transactions   int            `json:"transactions"`
	TotalEarned    int            `json:"total_earned"`
	TotalSpent     int            `json:"total_spent"`
	NetPoints      int            `json:"net_points"`
	ByAction       map[string]int `json:"by_action"`
	AverageEarned  string         `json:"average_earned"`
	AverageSpent   string         `json:"average_spent"`
	RedemptionRate string         `json:"redemption_rate"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBalanceDTO(b ledger.UserBalance) BalanceDTO {
	return BalanceDTO{
		UserID:        string(b.UserID),
		CurrentPoints: b.CurrentPoints,
		TotalEarned:   b.TotalEarned,
		TotalSpent:    b.TotalSpent,
		UpdatedAt:     b.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.PointTransaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		UserID:      string(tx.UserID),
		Direction:   string(tx.Direction),
		Amount:      tx.Amount,
		Action:      string(tx.Action),
		Description: tx.Description,
		Reference:   tx.Reference,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.PointTransaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toSummaryDTO(s points.ActivitySummary) SummaryDTO {
	byAction := make(map[string]int, len(s.ByAction))
	for action, n := range s.ByAction {
		byAction[string(action)] = n
	}
	return SummaryDTO{
		UserID:         string(s.UserID),
		Transactions:   s.Transactions,
		TotalEarned:    s.TotalEarned,
		TotalSpent:     s.TotalSpent,
		NetPoints:      s.NetPoints,
		ByAction:       byAction,
		AverageEarned:  s.AverageEarned.String(),
		AverageSpent:   s.AverageSpent.String(),
		RedemptionRate: s.RedemptionRate.String(),
	}
}
