// Package server carries the helpers shared by the public and admin surfaces:
// strict request binding and the error-to-status mapping for the registered
// error taxonomy.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"rustchain-node/types"
)

// BindStrict decodes the request body into v and rejects unknown fields, so a
// misspelled field fails loudly instead of silently defaulting.
func BindStrict(ctx echo.Context, v any) error {
	dec := json.NewDecoder(ctx.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body: "+err.Error())
	}
	return nil
}

// StatusOf maps registered errors to HTTP statuses. Unregistered errors are
// internal by definition.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrLowTrust),
		errors.Is(err, types.ErrInvalidSignature),
		errors.Is(err, types.ErrInvalidWallet),
		errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrDeviceSuspended):
		return http.StatusForbidden
	case errors.Is(err, types.ErrUnknownDevice),
		errors.Is(err, types.ErrAnchorUnavailable):
		return http.StatusNotFound
	case errors.Is(err, types.ErrDuplicateBinding),
		errors.Is(err, types.ErrDuplicateVote),
		errors.Is(err, types.ErrNonceReplay),
		errors.Is(err, types.ErrEpochClosed),
		errors.Is(err, types.ErrEpochSettled),
		errors.Is(err, types.ErrAnchorMismatch):
		return http.StatusConflict
	case errors.Is(err, types.ErrSchedulerBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the uniform error envelope.
func RespondError(ctx echo.Context, err error) error {
	return ctx.JSON(StatusOf(err), map[string]any{"ok": false, "error": err.Error()})
}
