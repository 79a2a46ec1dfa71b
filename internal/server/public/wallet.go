package public

import (
	"encoding/json"
	"net/http"

	sdkmath "cosmossdk.io/math"
	"github.com/labstack/echo/v4"

	"rustchain-node/internal/server"
	"rustchain-node/ledger"
	"rustchain-node/types"
)

func (s *Server) getBalance(ctx echo.Context) error {
	minerId := ctx.QueryParam("miner_id")
	if minerId == "" {
		return ctx.JSON(http.StatusBadRequest,
			map[string]any{"ok": false, "error": "miner_id query parameter required"})
	}
	balance := s.ledger.Balance(minerId)
	return ctx.JSON(http.StatusOK, map[string]any{
		"ok":         true,
		"miner_id":   minerId,
		"amount_rtc": types.RtcString(balance),
		"amount_i64": balance.Int64(),
	})
}

// SignedTransferRequest carries the API field names. The signed message itself
// uses the canonical keys {amount, from, nonce, to} — a deliberate difference,
// do not conflate the two.
type SignedTransferRequest struct {
	FromAddress string      `json:"from_address"`
	ToAddress   string      `json:"to_address"`
	AmountRtc   json.Number `json:"amount_rtc"`
	Nonce       string      `json:"nonce"`
	Signature   string      `json:"signature"`
	PublicKey   string      `json:"public_key"`
}

func (s *Server) postTransferSigned(ctx echo.Context) error {
	var req SignedTransferRequest
	if err := server.BindStrict(ctx, &req); err != nil {
		return err
	}
	if req.FromAddress == "" || req.ToAddress == "" || req.AmountRtc == "" ||
		req.Nonce == "" || req.Signature == "" || req.PublicKey == "" {
		return ctx.JSON(http.StatusBadRequest,
			map[string]any{"ok": false, "error": "from_address, to_address, amount_rtc, nonce, signature and public_key are required"})
	}

	amount, err := parseRtcAmount(req.AmountRtc)
	if err != nil {
		return server.RespondError(ctx, err)
	}

	if err := s.ledger.TransferSigned(ledger.SignedTransfer{
		From:      req.FromAddress,
		To:        req.ToAddress,
		Amount:    amount,
		Nonce:     req.Nonce,
		PublicKey: req.PublicKey,
		Signature: req.Signature,
	}); err != nil {
		return server.RespondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"ok":         true,
		"from":       req.FromAddress,
		"to":         req.ToAddress,
		"amount_i64": amount,
	})
}

// parseRtcAmount converts a decimal RTC amount to integer uRTC, truncating
// anything below one uRTC.
func parseRtcAmount(raw json.Number) (int64, error) {
	dec, err := sdkmath.LegacyNewDecFromStr(raw.String())
	if err != nil {
		return 0, types.ErrInvalidAmount.Wrapf("amount_rtc %q", raw.String())
	}
	if !dec.IsPositive() {
		return 0, types.ErrInvalidAmount.Wrapf("amount_rtc %q", raw.String())
	}
	return dec.MulInt64(types.Unit).TruncateInt().Int64(), nil
}
