package admin

import (
	"encoding/json"
	"net/http"

	sdkmath "cosmossdk.io/math"
	"github.com/labstack/echo/v4"

	"rustchain-node/epochs"
	"rustchain-node/internal/server"
	"rustchain-node/internal/server/middleware"
	"rustchain-node/ledger"
	"rustchain-node/types"
)

type Server struct {
	e         *echo.Echo
	ledger    *ledger.Ledger
	scheduler *epochs.Scheduler
}

func NewServer(adminKey string, ldg *ledger.Ledger, scheduler *epochs.Scheduler) *Server {
	e := echo.New()
	s := &Server{
		e:         e,
		ledger:    ldg,
		scheduler: scheduler,
	}

	e.Use(middleware.LoggingMiddleware)
	e.Use(middleware.AdminKeyMiddleware(adminKey))

	e.POST("/wallet/transfer", s.postTransfer)
	e.POST("/rewards/settle", s.postSettle)

	return s
}

func (s *Server) Start(addr string) {
	go s.e.Start(addr)
}

// Handler exposes the underlying echo instance for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

type TransferRequest struct {
	FromMiner string      `json:"from_miner"`
	ToMiner   string      `json:"to_miner"`
	AmountRtc json.Number `json:"amount_rtc"`
}

func (s *Server) postTransfer(ctx echo.Context) error {
	var req TransferRequest
	if err := server.BindStrict(ctx, &req); err != nil {
		return err
	}
	if req.FromMiner == "" || req.ToMiner == "" || req.AmountRtc == "" {
		return ctx.JSON(http.StatusBadRequest,
			map[string]any{"ok": false, "error": "from_miner, to_miner and amount_rtc are required"})
	}
	dec, err := sdkmath.LegacyNewDecFromStr(req.AmountRtc.String())
	if err != nil || !dec.IsPositive() {
		return server.RespondError(ctx,
			types.ErrInvalidAmount.Wrapf("amount_rtc %q", req.AmountRtc.String()))
	}
	amount := dec.MulInt64(types.Unit).TruncateInt().Int64()

	if err := s.ledger.TransferAdmin(req.FromMiner, req.ToMiner, amount); err != nil {
		return server.RespondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"ok":         true,
		"from":       req.FromMiner,
		"to":         req.ToMiner,
		"amount_i64": amount,
	})
}

// postSettle forces immediate settlement of the current epoch, ahead of its
// natural boundary. Votes arriving afterwards queue for the next epoch.
func (s *Server) postSettle(ctx echo.Context) error {
	res, err := s.scheduler.ForceSettle()
	if err != nil {
		return server.RespondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"ok":             true,
		"epoch":          res.Epoch,
		"voters":         res.Voters,
		"total_paid_i64": res.TotalPaid.Int64(),
		"cap_applied":    res.CapApplied,
	})
}
