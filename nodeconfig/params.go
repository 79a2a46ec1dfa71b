package nodeconfig

import (
	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"rustchain-node/types"
)

// ChainParams is ChainConfig with the decimal strings parsed into uRTC integers.
type ChainParams struct {
	ChainId          string
	GenesisTimestamp int64
	SlotSeconds      int64
	SlotsPerEpoch    int64
	EpochPot         sdkmath.Int
	EmissionCap      sdkmath.Int
}

func (c ChainConfig) Params() (ChainParams, error) {
	pot, err := parseRtc(c.EpochPotRtc)
	if err != nil {
		return ChainParams{}, err
	}
	cap_, err := parseRtc(c.EmissionCapRtc)
	if err != nil {
		return ChainParams{}, err
	}
	return ChainParams{
		ChainId:          c.ChainId,
		GenesisTimestamp: c.GenesisTimestamp,
		SlotSeconds:      c.SlotSeconds,
		SlotsPerEpoch:    c.SlotsPerEpoch,
		EpochPot:         pot,
		EmissionCap:      cap_,
	}, nil
}

// TrustParams is AttestationConfig with thresholds parsed.
type TrustParams struct {
	AdmissionThreshold decimal.Decimal
	TrustAlpha         decimal.Decimal
	SuspendThreshold   decimal.Decimal
}

func (c AttestationConfig) Params() (TrustParams, error) {
	admission, err := decimal.NewFromString(c.AdmissionThreshold)
	if err != nil {
		return TrustParams{}, err
	}
	alpha, err := decimal.NewFromString(c.TrustAlpha)
	if err != nil {
		return TrustParams{}, err
	}
	suspend, err := decimal.NewFromString(c.SuspendThreshold)
	if err != nil {
		return TrustParams{}, err
	}
	return TrustParams{
		AdmissionThreshold: admission,
		TrustAlpha:         alpha,
		SuspendThreshold:   suspend,
	}, nil
}

func parseRtc(s string) (sdkmath.Int, error) {
	dec, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.Int{}, types.ErrInvalidAmount.Wrapf("%q: %v", s, err)
	}
	if dec.IsNegative() {
		return sdkmath.Int{}, types.ErrInvalidAmount.Wrapf("%q is negative", s)
	}
	return dec.MulInt64(types.Unit).TruncateInt(), nil
}
