package types

import sdkerrors "cosmossdk.io/errors"

const codespace = "rustchain"

// Admission errors: reported to the caller, device and wallet state unchanged.
var (
	ErrLowTrust         = sdkerrors.Register(codespace, 2, "trust score below admission threshold")
	ErrDuplicateBinding = sdkerrors.Register(codespace, 3, "fingerprint already bound to another wallet")
	ErrUnknownDevice    = sdkerrors.Register(codespace, 4, "device not registered")
	ErrDuplicateVote    = sdkerrors.Register(codespace, 5, "device already voted in this epoch")
	ErrDeviceSuspended  = sdkerrors.Register(codespace, 6, "device suspended until trust recovers")
)

// Epoch errors: caller should retry next epoch, never silently reassigned.
var (
	ErrEpochClosed   = sdkerrors.Register(codespace, 10, "epoch closed for voting")
	ErrEpochSettled  = sdkerrors.Register(codespace, 11, "epoch already settled")
	ErrSchedulerBusy = sdkerrors.Register(codespace, 12, "scheduler busy, retry")
)

// Ledger errors: the transaction is rolled back in full.
var (
	ErrInvalidSignature    = sdkerrors.Register(codespace, 20, "invalid signature")
	ErrInsufficientBalance = sdkerrors.Register(codespace, 21, "insufficient balance")
	ErrNonceReplay         = sdkerrors.Register(codespace, 22, "nonce already consumed")
	ErrUnauthorized        = sdkerrors.Register(codespace, 23, "unauthorized")
	ErrInvalidWallet       = sdkerrors.Register(codespace, 24, "invalid wallet identifier")
	ErrInvalidAmount       = sdkerrors.Register(codespace, 25, "invalid amount")
)

// Settlement errors: recovered locally by proportional multiplier scaling.
var (
	ErrEmissionCapExceeded = sdkerrors.Register(codespace, 30, "multiplier premiums exceed per-epoch emission cap")
)

// Anchor errors: retried with backoff, never block settlement or transfers.
var (
	ErrAnchorUnavailable = sdkerrors.Register(codespace, 40, "external anchor chain unavailable")
	ErrAnchorMismatch    = sdkerrors.Register(codespace, 41, "recomputed digest does not match anchored digest")
)
