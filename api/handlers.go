/*
handlers.go - HTTP API handlers for the points subsystem

PURPOSE:
  Exposes the award engine and query facade via REST. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.
  This layer is the status-change collaborator seam: report approval,
  project completion, and reward redemption flows call these endpoints
  on state transitions.

ENDPOINTS:
  Reads:
    GET  /api/users/{id}/points            Current balance
    GET  /api/users/{id}/points/history    Transaction history (newest first)
    GET  /api/users/{id}/points/check      Sufficiency check (?amount=N)
    GET  /api/users/{id}/audit             Cache-vs-ledger consistency
    GET  /api/users/{id}/summary           Activity summary

  Awards:
    POST /api/users/{id}/awards/registration
    POST /api/users/{id}/awards/sighting
    POST /api/users/{id}/awards/share
    POST /api/users/{id}/awards/project
    POST /api/users/{id}/awards            Generic earn (admin)

  Deductions:
    POST /api/users/{id}/deductions        Generic spend (unguarded)
    POST /api/users/{id}/redemptions       Reward redemption (guarded)

  Admin:
    POST /api/users/{id}/recalculate       Rebuild balance from ledger
    GET  /api/admin/transactions           Recent transactions, all users
    GET  /api/admin/summary                Activity summary per user

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (negative amounts, bad JSON)
  - 422: Insufficient points on the redemption path
  - 500: Storage failures

  A duplicate social share is NOT an error: the response carries
  awarded=false with status 200.

NOTIFICATIONS:
  The engine returns the resulting balance; deciding whether to notify
  the user belongs to the caller of these endpoints, not to this layer.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/civicbeacon/points-engine/ledger"
	"github.com/civicbeacon/points-engine/points"
	"github.com/civicbeacon/points-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *points.Engine
	Query  *points.Query
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:  store,
		Engine: points.NewEngine(store),
		Query:  points.NewQuery(store),
	}
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// GetBalance returns the user's balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	bal, err := h.Query.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// GetHistory returns the user's transaction history, newest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	txs, err := h.Query.PointsHistory(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read history", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// CheckPoints reports whether the balance covers ?amount=N.
func (h *Handler) CheckPoints(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	amount, err := strconv.Atoi(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	covered, err := h.Query.HasEnoughPoints(r.Context(), userID, amount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check balance", err)
		return
	}
	writeJSON(w, http.StatusOK, SufficiencyDTO{
		UserID:  string(userID),
		Amount:  amount,
		Covered: covered,
	})
}

// GetAudit compares the cached balance to the ledger sums.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	res, err := h.Query.Audit(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to audit balance", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditDTO{
		UserID:       string(res.UserID),
		Consistent:   res.Consistent,
		Cached:       toBalanceDTO(res.Cached),
		LedgerEarned: res.LedgerEarned,
		LedgerSpent:  res.LedgerSpent,
	})
}

// GetSummary returns the user's activity summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	summary, err := h.Query.ActivitySummary(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// AWARD HANDLERS
// =============================================================================

// AwardRegistration grants the fixed welcome award.
func (h *Handler) AwardRegistration(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	bal, err := h.Engine.AwardRegistrationPoints(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(bal))
}

// AwardSighting grants the fixed award for an approved sighting report.
func (h *Handler) AwardSighting(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	var req SightingAwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ReportID == "" {
		writeError(w, http.StatusBadRequest, "report_id is required", nil)
		return
	}

	bal, err := h.Engine.AwardSightingReportPoints(r.Context(), userID, req.ReportID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(bal))
}

// AwardShare grants the share award, at most once per tuple.
func (h *Handler) AwardShare(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	var req ShareAwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ReportID == "" || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "report_id and platform are required", nil)
		return
	}

	awarded, bal, err := h.Engine.AwardSocialSharePoints(r.Context(), userID, req.ReportID, req.Platform)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusCreated
	if !awarded {
		status = http.StatusOK // duplicate share: no-op, not a failure
	}
	writeJSON(w, status, ShareAwardResponse{Awarded: awarded, Balance: toBalanceDTO(bal)})
}

// AwardProject grants a community project's configured reward.
func (h *Handler) AwardProject(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	var req ProjectAwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required", nil)
		return
	}

	bal, err := h.Engine.AwardCommunityProjectPoints(r.Context(), userID, req.ProjectID, req.Title, req.Points)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(bal))
}

// AwardGeneric is the admin/ad hoc earn path.
func (h *Handler) AwardGeneric(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	var req AwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required", nil)
		return
	}

	bal, err := h.Engine.AwardPoints(r.Context(), userID, req.Amount, ledger.Action(req.Action), req.Description)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(bal))
}

// =============================================================================
// DEDUCTION HANDLERS
// =============================================================================

// Deduct is the generic unguarded spend path. The balance may go
// negative; sufficiency enforcement is the caller's job.
func (h *Handler) Deduct(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	var req DeductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required", nil)
		return
	}

	bal, err := h.Engine.DeductPoints(r.Context(), userID, req.Amount, ledger.Action(req.Action), req.Description)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(bal))
}

// Redeem is the guarded spend path for reward redemption.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RewardID == "" {
		writeError(w, http.StatusBadRequest, "reward_id is required", nil)
		return
	}

	bal, err := h.Engine.DeductRewardPoints(r.Context(), userID, req.RewardID, req.RewardName, req.PointsRequired)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(bal))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Recalculate rebuilds the user's balance from the ledger.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	bal, err := h.Engine.RecalculateUserPoints(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// AdminSummary returns the activity summary for every known user.
func (h *Handler) AdminSummary(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.Users(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	summaries := make([]SummaryDTO, 0, len(users))
	for _, userID := range users {
		s, err := h.Query.ActivitySummary(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to summarize activity", err)
			return
		}
		summaries = append(summaries, toSummaryDTO(s))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// ListTransactions returns recent transactions across all users.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	txs, err := h.Store.AllTransactions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeEngineError maps domain errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientPointsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Not enough points",
			Code:  "insufficient_points",
			Details: map[string]int{
				"available": insufficient.Available,
				"required":  insufficient.Required,
			},
		})
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidDirection):
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
	default:
		writeError(w, http.StatusInternalServerError, "Operation failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
