package public

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"rustchain-node/anchor"
	"rustchain-node/epochs"
	"rustchain-node/fingerprint"
	"rustchain-node/internal/server"
	"rustchain-node/internal/server/middleware"
	"rustchain-node/ledger"
	"rustchain-node/multiplier"
	"rustchain-node/nodeconfig"
	"rustchain-node/registry"
	"rustchain-node/types"
)

type Server struct {
	e *echo.Echo

	version   string
	startedAt time.Time

	params      nodeconfig.ChainParams
	scheduler   *epochs.Scheduler
	registry    *registry.Registry
	evaluator   *fingerprint.Evaluator
	table       *multiplier.Table
	ledger      *ledger.Ledger
	committer   *anchor.Committer
	challenges  *challengeStore
	statePath   string
	anchoringOn bool
}

func NewServer(
	version string,
	params nodeconfig.ChainParams,
	attestation nodeconfig.AttestationConfig,
	anchorCfg nodeconfig.AnchorConfig,
	statePath string,
	scheduler *epochs.Scheduler,
	reg *registry.Registry,
	evaluator *fingerprint.Evaluator,
	table *multiplier.Table,
	ldg *ledger.Ledger,
	committer *anchor.Committer) *Server {

	e := echo.New()
	s := &Server{
		e:           e,
		version:     version,
		startedAt:   time.Now(),
		params:      params,
		scheduler:   scheduler,
		registry:    reg,
		evaluator:   evaluator,
		table:       table,
		ledger:      ldg,
		committer:   committer,
		challenges:  newChallengeStore(time.Duration(attestation.ChallengeTtlSeconds) * time.Second),
		statePath:   statePath,
		anchoringOn: anchorCfg.Enabled,
	}

	e.Use(middleware.LoggingMiddleware)

	e.GET("/health", s.getHealth)
	e.GET("/epoch", s.getEpoch)
	e.GET("/api/miners", s.getMiners)
	e.GET("/api/stats", s.getStats)

	e.GET("/wallet/balance", s.getBalance)
	e.POST("/wallet/transfer/signed", s.postTransferSigned)

	e.POST("/attest/challenge", s.postChallenge)
	e.POST("/attest/submit", s.postAttest)
	e.GET("/rewards/epoch/:epoch", s.getEpochRewards)

	e.GET("/anchor/status", s.getAnchorStatus)
	e.GET("/anchor/verify", s.getAnchorVerify)

	return s
}

func (s *Server) Start(addr string) {
	go s.e.Start(addr)
}

// Handler exposes the underlying echo instance for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) getHealth(ctx echo.Context) error {
	snap, err := s.scheduler.State()
	if err != nil {
		return server.RespondError(ctx, err)
	}

	tipAge := snap.Slot
	if snap.HasSettled {
		settledEnd := int64(snap.LastSettled+1) * s.params.SlotsPerEpoch
		tipAge = snap.Slot - settledEnd
		if tipAge < 0 {
			tipAge = 0
		}
	}

	backupAge := -1.0
	if info, err := os.Stat(s.statePath); err == nil {
		backupAge = time.Since(info.ModTime()).Hours()
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"ok":               true,
		"version":          s.version,
		"uptime_s":         int64(time.Since(s.startedAt).Seconds()),
		"db_rw":            s.stateWritable(),
		"tip_age_slots":    tipAge,
		"backup_age_hours": backupAge,
	})
}

// stateWritable probes the state directory the same way the persistence layer
// writes: a throwaway temp file.
func (s *Server) stateWritable() bool {
	f, err := os.CreateTemp(filepath.Dir(s.statePath), ".health-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

func (s *Server) getEpoch(ctx echo.Context) error {
	snap, err := s.scheduler.State()
	if err != nil {
		return server.RespondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"epoch":            snap.Epoch,
		"slot":             snap.Slot,
		"blocks_per_epoch": s.params.SlotsPerEpoch,
		"epoch_pot":        types.RtcString(s.params.EpochPot),
		"enrolled_miners":  snap.Votes,
	})
}

func (s *Server) getStats(ctx echo.Context) error {
	snap, err := s.scheduler.State()
	if err != nil {
		return server.RespondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"version":           s.version,
		"chain_id":          s.params.ChainId,
		"epoch":             snap.Epoch,
		"total_miners":      len(s.registry.List()),
		"total_balance_rtc": types.RtcString(s.ledger.TotalSupply()),
		"features":          []string{"attestation", "signed_transfers", "anchoring"},
	})
}
