// Package settlement turns a closed epoch's vote set into integer uRTC payouts.
// All arithmetic is fixed-point: given the same vote set the payouts are
// bit-identical on every validator, which is what lets independent nodes agree
// on balances without exchanging them.
package settlement

import (
	"sort"

	sdkmath "cosmossdk.io/math"

	"rustchain-node/logging"
	"rustchain-node/types"
)

// Payout is one miner's reward for one epoch.
type Payout struct {
	Wallet          string            `json:"wallet"`
	FingerprintHash string            `json:"fingerprint_hash"`
	Multiplier      sdkmath.LegacyDec `json:"multiplier"`
	Amount          sdkmath.Int       `json:"amount_i64"`
}

// Result is the full settlement outcome for one epoch.
type Result struct {
	Epoch          uint64      `json:"epoch"`
	Voters         int         `json:"voters"`
	Share          sdkmath.Int `json:"share_i64"`
	TotalPaid      sdkmath.Int `json:"total_paid_i64"`
	ReturnedToPool sdkmath.Int `json:"returned_to_pool_i64"`
	CapApplied     bool        `json:"cap_applied"`
	Payouts        []Payout    `json:"payouts"`
}

// Engine computes per-epoch reward distributions from a fixed pot.
type Engine struct {
	pot sdkmath.Int
	cap sdkmath.Int
}

// NewEngine configures the per-epoch base pot and the hard emission cap, both
// in uRTC. The engine never pays out more than the cap in any epoch.
func NewEngine(pot, emissionCap sdkmath.Int) *Engine {
	return &Engine{pot: pot, cap: emissionCap}
}

// Settle distributes the pot across the epoch's distinct voters.
//
//	share     = pot / voters                  (integer uRTC, truncated)
//	reward(v) = trunc(share * multiplier(v))
//
// When the multiplier premiums push the raw total past the emission cap, every
// reward is scaled by cap/total in integer arithmetic and the truncation
// remainder is handed out one uRTC at a time in payout order, so the paid
// total equals the cap exactly — the cap breach is recovered locally for this
// epoch only, never by silent over-issuance and never retroactively.
func (e *Engine) Settle(epoch uint64, votes []types.Vote) Result {
	res := Result{
		Epoch:          epoch,
		Share:          sdkmath.ZeroInt(),
		TotalPaid:      sdkmath.ZeroInt(),
		ReturnedToPool: e.pot,
	}
	if len(votes) == 0 {
		return res
	}

	// Deterministic payout order: wallet, then fingerprint.
	ordered := append([]types.Vote(nil), votes...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Wallet != ordered[j].Wallet {
			return ordered[i].Wallet < ordered[j].Wallet
		}
		return ordered[i].FingerprintHash < ordered[j].FingerprintHash
	})

	res.Voters = len(ordered)
	share := e.pot.Quo(sdkmath.NewInt(int64(len(ordered))))
	res.Share = share
	shareDec := sdkmath.LegacyNewDecFromInt(share)

	totalRaw := sdkmath.ZeroInt()
	payouts := make([]Payout, len(ordered))
	for i, v := range ordered {
		amount := shareDec.Mul(v.Multiplier).TruncateInt()
		payouts[i] = Payout{
			Wallet:          v.Wallet,
			FingerprintHash: v.FingerprintHash,
			Multiplier:      v.Multiplier,
			Amount:          amount,
		}
		totalRaw = totalRaw.Add(amount)
	}

	if totalRaw.GT(e.cap) {
		logging.Warn("emission cap exceeded, scaling multipliers for this epoch",
			types.Settlement, "epoch", epoch,
			"raw_total", totalRaw.String(), "cap", e.cap.String(),
			"error", types.ErrEmissionCapExceeded)
		res.CapApplied = true

		scaledTotal := sdkmath.ZeroInt()
		for i := range payouts {
			scaled := payouts[i].Amount.Mul(e.cap).Quo(totalRaw)
			payouts[i].Amount = scaled
			scaledTotal = scaledTotal.Add(scaled)
		}
		// Hand the truncation remainder out one uRTC at a time, in order.
		remainder := e.cap.Sub(scaledTotal)
		one := sdkmath.OneInt()
		for i := 0; remainder.IsPositive(); i = (i + 1) % len(payouts) {
			payouts[i].Amount = payouts[i].Amount.Add(one)
			remainder = remainder.Sub(one)
		}
		totalRaw = e.cap
	}

	res.Payouts = payouts
	res.TotalPaid = totalRaw
	if e.pot.GT(totalRaw) {
		res.ReturnedToPool = e.pot.Sub(totalRaw)
	} else {
		res.ReturnedToPool = sdkmath.ZeroInt()
	}
	return res
}
