package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"rustchain-node/epochs"
	"rustchain-node/ledger"
	"rustchain-node/nodeconfig"
	"rustchain-node/settlement"
	"rustchain-node/types"
)

const adminKey = "test-admin-key"

func newFixture(t *testing.T) (*Server, *epochs.Scheduler, *ledger.Ledger) {
	t.Helper()
	params, err := nodeconfig.DefaultConfig().Chain.Params()
	require.NoError(t, err)

	ldg, err := ledger.NewLedger(nil)
	require.NoError(t, err)
	engine := settlement.NewEngine(params.EpochPot, params.EmissionCap)
	scheduler := epochs.NewScheduler(params, engine, ldg, true, nil)
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	return NewServer(adminKey, ldg, scheduler), scheduler, ldg
}

func do(t *testing.T, s *Server, key, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	if len(rec.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestAdminKeyRequired(t *testing.T) {
	s, _, _ := newFixture(t)

	rec, _ := do(t, s, "", "/rewards/settle", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, s, "wrong", "/rewards/settle", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEmptyKeyDisablesAdminSurface(t *testing.T) {
	params, err := nodeconfig.DefaultConfig().Chain.Params()
	require.NoError(t, err)
	ldg, err := ledger.NewLedger(nil)
	require.NoError(t, err)
	scheduler := epochs.NewScheduler(params, settlement.NewEngine(params.EpochPot, params.EmissionCap), ldg, true, nil)
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	s := NewServer("", ldg, scheduler)
	rec, _ := do(t, s, "", "/rewards/settle", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminTransfer(t *testing.T) {
	s, _, ldg := newFixture(t)
	require.NoError(t, ldg.ApplySettlement(settlement.Result{
		Epoch:     1,
		TotalPaid: sdkmath.NewInt(1_000_000),
		Payouts:   []settlement.Payout{{Wallet: "alice", Amount: sdkmath.NewInt(1_000_000)}},
	}))

	rec, body := do(t, s, adminKey, "/wallet/transfer", map[string]any{
		"from_miner": "alice",
		"to_miner":   "bob",
		"amount_rtc": "0.25",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, float64(250_000), body["amount_i64"])
	require.Equal(t, sdkmath.NewInt(250_000), ldg.Balance("bob"))

	// Overdraw rolls back cleanly.
	rec, _ = do(t, s, adminKey, "/wallet/transfer", map[string]any{
		"from_miner": "alice",
		"to_miner":   "bob",
		"amount_rtc": "100",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, sdkmath.NewInt(750_000), ldg.Balance("alice"))
}

func TestAdminTransferValidation(t *testing.T) {
	s, _, _ := newFixture(t)

	rec, _ := do(t, s, adminKey, "/wallet/transfer", map[string]any{
		"from_miner": "alice",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, adminKey, "/wallet/transfer", map[string]any{
		"from_miner": "alice",
		"to_miner":   "bob",
		"amount_rtc": "-1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, adminKey, "/wallet/transfer", map[string]any{
		"from_miner": "alice",
		"to_miner":   "bob",
		"amount_rtc": "0.1",
		"extra":      "field",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForceSettle(t *testing.T) {
	s, scheduler, ldg := newFixture(t)

	out := scheduler.SubmitVote(types.Vote{
		FingerprintHash: "fp1",
		Wallet:          "alice",
		Multiplier:      sdkmath.LegacyOneDec(),
	})
	require.NoError(t, out.Err)

	rec, body := do(t, s, adminKey, "/rewards/settle", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, float64(1), body["voters"])
	require.Equal(t, float64(1_500_000), body["total_paid_i64"])
	require.Equal(t, sdkmath.NewInt(1_500_000), ldg.Balance("alice"))

	// Second forced settlement of the same epoch is refused.
	rec, _ = do(t, s, adminKey, "/rewards/settle", map[string]any{})
	require.Equal(t, http.StatusConflict, rec.Code)
}
