package public

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"rustchain-node/internal/server"
)

func (s *Server) getAnchorStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"enabled":     s.anchoringOn,
		"commitments": s.committer.Status(),
	})
}

func (s *Server) getAnchorVerify(ctx echo.Context) error {
	epoch, err := strconv.ParseUint(ctx.QueryParam("epoch"), 10, 64)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest,
			map[string]any{"ok": false, "error": "epoch query parameter required"})
	}
	commitment, err := s.committer.Verify(ctx.Request().Context(), epoch)
	if err != nil {
		return server.RespondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"ok":       true,
		"epoch":    commitment.Epoch,
		"digest":   commitment.Digest,
		"tx_ref":   commitment.TxRef,
		"verified": true,
	})
}
