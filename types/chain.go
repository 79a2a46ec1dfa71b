package types

import (
	"fmt"
	"unicode/utf8"

	sdkmath "cosmossdk.io/math"
)

// Unit is the number of uRTC in one RTC. All persisted amounts are integer uRTC.
const Unit = 1_000_000

// DeviceClass identifies a hardware family/architecture pair, e.g. PowerPC/G4.
type DeviceClass struct {
	Family string `json:"family"`
	Arch   string `json:"arch"`
}

func (c DeviceClass) String() string {
	return c.Family + "/" + c.Arch
}

// Vote is one admitted attestation-backed vote: one device, one epoch.
// The multiplier is captured at vote time so settlement sees the decayed value.
type Vote struct {
	Epoch           uint64
	FingerprintHash string
	Wallet          string
	Multiplier      sdkmath.LegacyDec
}

// ValidateWallet enforces the wallet identifier contract: opaque UTF-8, 1-256 chars.
func ValidateWallet(wallet string) error {
	if wallet == "" || len(wallet) > 256 || !utf8.ValidString(wallet) {
		return ErrInvalidWallet.Wrapf("%q", wallet)
	}
	return nil
}

// RtcString renders an integer uRTC amount as a decimal RTC string.
func RtcString(amount sdkmath.Int) string {
	whole := amount.Quo(sdkmath.NewInt(Unit))
	frac := amount.Mod(sdkmath.NewInt(Unit)).Abs()
	return fmt.Sprintf("%s.%06d", whole.String(), frac.Int64())
}
