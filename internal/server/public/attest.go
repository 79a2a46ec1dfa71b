package public

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"rustchain-node/fingerprint"
	"rustchain-node/internal/server"
	"rustchain-node/registry"
	"rustchain-node/types"
)

// challengeStore hands out single-use attestation nonces with a short TTL, so
// a captured sample cannot be replayed later.
type challengeStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	nonces map[string]time.Time
}

func newChallengeStore(ttl time.Duration) *challengeStore {
	return &challengeStore{ttl: ttl, nonces: map[string]time.Time{}}
}

func (c *challengeStore) issue() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for nonce, expiry := range c.nonces {
		if now.After(expiry) {
			delete(c.nonces, nonce)
		}
	}
	nonce := uuid.New().String()
	expiry := now.Add(c.ttl)
	c.nonces[nonce] = expiry
	return nonce, expiry
}

func (c *challengeStore) consume(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.nonces[nonce]
	if !ok {
		return false
	}
	delete(c.nonces, nonce)
	return time.Now().Before(expiry)
}

func (s *Server) postChallenge(ctx echo.Context) error {
	nonce, expiry := s.challenges.issue()
	return ctx.JSON(http.StatusOK, map[string]any{
		"nonce":       nonce,
		"expires_at":  expiry.Unix(),
		"server_time": time.Now().Unix(),
	})
}

type AttestRequest struct {
	Wallet       string                   `json:"wallet"`
	Nonce        string                   `json:"nonce"`
	DeviceFamily string                   `json:"device_family"`
	DeviceArch   string                   `json:"device_arch"`
	Sample       fingerprint.SignalSample `json:"sample"`
	// Set when moving an existing device binding to a new wallet.
	RebindSignature string `json:"rebind_signature,omitempty"`
	RebindPublicKey string `json:"rebind_public_key,omitempty"`
}

// postAttest is the full liveness path: challenge check, fingerprint
// evaluation, registry admission, trust update, then a vote in the current
// epoch. Each stage can reject without touching the stages after it.
func (s *Server) postAttest(ctx echo.Context) error {
	var req AttestRequest
	if err := server.BindStrict(ctx, &req); err != nil {
		return err
	}
	if req.Wallet == "" || req.Nonce == "" || req.DeviceFamily == "" || req.DeviceArch == "" {
		return ctx.JSON(http.StatusBadRequest,
			map[string]any{"ok": false, "error": "wallet, nonce, device_family and device_arch are required"})
	}
	if !s.challenges.consume(req.Nonce) {
		return ctx.JSON(http.StatusBadRequest,
			map[string]any{"ok": false, "error": "unknown or expired challenge"})
	}

	class := types.DeviceClass{Family: req.DeviceFamily, Arch: req.DeviceArch}
	result := s.evaluator.Evaluate(class, req.Sample)
	ticketId := uuid.New().String()
	fingerprintHash := fingerprint.Hash(class, req.Sample)

	snap, err := s.scheduler.State()
	if err != nil {
		return server.RespondError(ctx, err)
	}

	if !result.Admitted {
		trust := result.Score
		// A failing sample from a known device still counts against its
		// smoothed trust; enough of them suspend the device.
		if _, known := s.registry.Get(fingerprintHash); known {
			profile, err := s.registry.Attest(fingerprintHash, result.Score, snap.Epoch)
			if err != nil {
				return server.RespondError(ctx, err)
			}
			trust = profile.TrustScore
		}
		return ctx.JSON(http.StatusOK, map[string]any{
			"ok":                 false,
			"ticket_id":          ticketId,
			"status":             "rejected: " + result.FailReason,
			"fingerprint_passed": false,
			"trust_score":        trust.String(),
		})
	}

	var rebind *registry.RebindAuthorization
	if req.RebindSignature != "" {
		rebind = &registry.RebindAuthorization{
			Signature: req.RebindSignature,
			PublicKey: req.RebindPublicKey,
		}
	}

	profile, err := s.registry.Register(fingerprintHash, req.Wallet, class, result.Score, snap.Epoch, rebind)
	if err != nil {
		return server.RespondError(ctx, err)
	}
	profile, err = s.registry.Attest(fingerprintHash, result.Score, snap.Epoch)
	if err != nil {
		return server.RespondError(ctx, err)
	}

	outcome := s.scheduler.SubmitVote(types.Vote{
		FingerprintHash: fingerprintHash,
		Wallet:          req.Wallet,
		Multiplier:      s.table.Multiplier(class, profile.FirstSeenEpoch, snap.Epoch),
	})
	status := "vote_recorded"
	if outcome.Err != nil {
		if !outcome.Queued {
			return server.RespondError(ctx, outcome.Err)
		}
		status = "vote_queued"
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"ok":                 true,
		"ticket_id":          ticketId,
		"status":             status,
		"fingerprint_passed": true,
		"trust_score":        profile.TrustScore.String(),
	})
}

func (s *Server) getMiners(ctx echo.Context) error {
	snap, err := s.scheduler.State()
	if err != nil {
		return server.RespondError(ctx, err)
	}
	profiles := s.registry.List()
	miners := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		mult := s.table.Multiplier(p.Class, p.FirstSeenEpoch, snap.Epoch)
		am, _ := mult.Float64()
		miners = append(miners, map[string]any{
			"miner":                p.Wallet,
			"device_arch":          p.Class.Arch,
			"device_family":        p.Class.Family,
			"hardware_type":        p.Class.String(),
			"antiquity_multiplier": am,
			"last_attest":          p.LastAttestUnix,
		})
	}
	return ctx.JSON(http.StatusOK, miners)
}

func (s *Server) getEpochRewards(ctx echo.Context) error {
	epoch, err := strconv.ParseUint(ctx.Param("epoch"), 10, 64)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest,
			map[string]any{"ok": false, "error": "epoch must be a non-negative integer"})
	}
	res, ok := s.ledger.SettledEpoch(epoch)
	if !ok {
		return ctx.JSON(http.StatusNotFound,
			map[string]any{"ok": false, "error": "epoch not settled"})
	}
	rewards := make([]map[string]any, 0, len(res.Payouts))
	for _, p := range res.Payouts {
		rewards = append(rewards, map[string]any{
			"miner_id":  p.Wallet,
			"share_i64": p.Amount.Int64(),
			"share_rtc": types.RtcString(p.Amount),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"epoch": epoch, "rewards": rewards})
}
