/*
handlers_test.go - HTTP handler tests

Tests exercise the full router with an in-memory SQLite store:
request decoding, status codes, error mapping, and the JSON shapes
the platform frontend depends on.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicbeacon/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewRouter(NewHandler(store)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// =============================================================================
// AWARD ENDPOINT TESTS
// =============================================================================

func TestAPI_AwardRegistration(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, "user-1", bal.UserID)
	assert.Equal(t, 10, bal.CurrentPoints)
}

func TestAPI_AwardSighting_RequiresReportID(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/sighting",
		SightingAwardRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/sighting",
		SightingAwardRequest{ReportID: "report-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, 10, bal.CurrentPoints)
}

func TestAPI_AwardShare_DuplicateReturns200(t *testing.T) {
	// GIVEN: A share already awarded
	// WHEN: Posting the same tuple again
	// THEN: 200 with awarded=false, balance unchanged

	srv := newTestServer(t)
	req := ShareAwardRequest{ReportID: "report-1", Platform: "facebook"}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/share", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[ShareAwardResponse](t, resp)
	assert.True(t, first.Awarded)
	assert.Equal(t, 1, first.Balance.CurrentPoints)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/share", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[ShareAwardResponse](t, resp)
	assert.False(t, second.Awarded)
	assert.Equal(t, 1, second.Balance.CurrentPoints)
}

func TestAPI_AwardProject_VariableAmount(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/project",
		ProjectAwardRequest{ProjectID: "proj-1", Title: "Park cleanup", Points: 50})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, 50, bal.CurrentPoints)
}

func TestAPI_AwardGeneric_NegativeAmount_400(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards",
		AwardRequest{Amount: -5, Action: "community_project", Description: "bad"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// DEDUCTION ENDPOINT TESTS
// =============================================================================

func TestAPI_Redeem_Insufficient_422(t *testing.T) {
	// GIVEN: A user with 10 points
	// WHEN: Redeeming a 25-point reward
	// THEN: 422 with available/required details, balance untouched

	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/redemptions",
		RedeemRequest{RewardID: "reward-1", RewardName: "Hoodie", PointsRequired: 25})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	errResp := decode[ErrorResponse](t, resp)
	assert.Equal(t, "insufficient_points", errResp.Code)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/points", nil)
	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, 10, bal.CurrentPoints)
}

func TestAPI_Redeem_Sufficient(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/redemptions",
		RedeemRequest{RewardID: "reward-1", RewardName: "Sticker pack", PointsRequired: 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, 0, bal.CurrentPoints)
}

func TestAPI_Deduct_AllowsNegative(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/deductions",
		DeductRequest{Amount: 60, Action: "project_status_reverted", Description: "Revert"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, -50, bal.CurrentPoints)
}

// =============================================================================
// READ ENDPOINT TESTS
// =============================================================================

func TestAPI_GetBalance_UnknownUser(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/users/ghost/points", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, 0, bal.CurrentPoints)
}

func TestAPI_GetHistory_NewestFirstWithLimit(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)
	for i := 0; i < 3; i++ {
		doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/sighting",
			SightingAwardRequest{ReportID: fmt.Sprintf("report-%d", i)})
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/points/history?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	txs := decode[[]TransactionDTO](t, resp)
	require.Len(t, txs, 2)
	assert.Equal(t, "report-2", txs[0].Reference)
}

func TestAPI_CheckPoints(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/points/check?amount=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decode[SufficiencyDTO](t, resp)
	assert.True(t, check.Covered)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/points/check?amount=11", nil)
	check = decode[SufficiencyDTO](t, resp)
	assert.False(t, check.Covered)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/points/check?amount=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Audit_And_Recalculate(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/audit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	audit := decode[AuditDTO](t, resp)
	assert.True(t, audit.Consistent)
	assert.Equal(t, 10, audit.LedgerEarned)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/recalculate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bal := decode[BalanceDTO](t, resp)
	assert.Equal(t, 10, bal.CurrentPoints)
}

func TestAPI_Summary(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)
	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/redemptions",
		RedeemRequest{RewardID: "reward-1", RewardName: "Pin", PointsRequired: 5})

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/users/user-1/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	summary := decode[SummaryDTO](t, resp)
	assert.Equal(t, 2, summary.Transactions)
	assert.Equal(t, 10, summary.TotalEarned)
	assert.Equal(t, 5, summary.TotalSpent)
}

// =============================================================================
// ADMIN ENDPOINT TESTS
// =============================================================================

func TestAPI_AdminTransactions(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)
	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-2/awards/registration", nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/admin/transactions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	txs := decode[[]TransactionDTO](t, resp)
	assert.Len(t, txs, 2)
}

func TestAPI_AdminSummary(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-1/awards/registration", nil)
	doJSON(t, http.MethodPost, srv.URL+"/api/users/user-2/awards/registration", nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/admin/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	summaries := decode[[]SummaryDTO](t, resp)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, 10, s.TotalEarned)
	}
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
