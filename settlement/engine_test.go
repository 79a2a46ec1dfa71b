package settlement

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"rustchain-node/types"
)

func urtc(rtc string) sdkmath.Int {
	return sdkmath.LegacyMustNewDecFromStr(rtc).MulInt64(types.Unit).TruncateInt()
}

func vote(wallet, fp, mult string) types.Vote {
	return types.Vote{
		Wallet:          wallet,
		FingerprintHash: fp,
		Multiplier:      sdkmath.LegacyMustNewDecFromStr(mult),
	}
}

func TestSettleEmptyEpochReturnsPot(t *testing.T) {
	engine := NewEngine(urtc("1.5"), urtc("1.5"))
	res := engine.Settle(7, nil)
	require.Equal(t, 0, res.Voters)
	require.True(t, res.TotalPaid.IsZero())
	require.Equal(t, urtc("1.5"), res.ReturnedToPool)
	require.False(t, res.CapApplied)
}

func TestSettleScalesToEmissionCapExactly(t *testing.T) {
	engine := NewEngine(urtc("1.5"), urtc("1.5"))
	votes := []types.Vote{
		vote("w-g4", "fp1", "2.5"),
		vote("w-g5", "fp2", "2.0"),
		vote("w-m1", "fp3", "1.0"),
		vote("w-m2", "fp4", "1.0"),
		vote("w-m3", "fp5", "1.0"),
	}
	res := engine.Settle(1, votes)

	require.Equal(t, urtc("0.3"), res.Share)
	require.True(t, res.CapApplied)
	require.Equal(t, urtc("1.5"), res.TotalPaid)
	require.True(t, res.ReturnedToPool.IsZero())

	total := sdkmath.ZeroInt()
	for _, p := range res.Payouts {
		total = total.Add(p.Amount)
	}
	require.Equal(t, urtc("1.5"), total)

	// Raw rewards were 0.75/0.60/0.30/0.30/0.30 = 2.25; scaled by 1.5/2.25
	// each becomes exactly two thirds of raw.
	byWallet := map[string]sdkmath.Int{}
	for _, p := range res.Payouts {
		byWallet[p.Wallet] = p.Amount
	}
	require.Equal(t, urtc("0.5"), byWallet["w-g4"])
	require.Equal(t, urtc("0.4"), byWallet["w-g5"])
	require.Equal(t, urtc("0.2"), byWallet["w-m1"])
}

func TestSettleUnderCapReturnsUnpaidRemainder(t *testing.T) {
	engine := NewEngine(urtc("1.5"), urtc("10"))
	votes := []types.Vote{
		vote("a", "fp1", "1.0"),
		vote("b", "fp2", "1.0"),
		vote("c", "fp3", "2.0"),
	}
	res := engine.Settle(2, votes)

	require.False(t, res.CapApplied)
	require.Equal(t, urtc("0.5"), res.Share)
	// 0.5 + 0.5 + 1.0 = 2.0 paid against a pot of 1.5 but a cap of 10:
	// nothing scales, and nothing returns to the pool.
	require.Equal(t, urtc("2.0"), res.TotalPaid)
	require.True(t, res.ReturnedToPool.IsZero())
}

func TestSettleDeterministicOrderAndOutput(t *testing.T) {
	engine := NewEngine(urtc("1.5"), urtc("1.5"))
	forward := []types.Vote{
		vote("alice", "fp-a", "2.5"),
		vote("bob", "fp-b", "2.0"),
		vote("carol", "fp-c", "1.0"),
	}
	reversed := []types.Vote{forward[2], forward[1], forward[0]}

	r1 := engine.Settle(3, forward)
	r2 := engine.Settle(3, reversed)
	require.Equal(t, r1, r2)
	require.Equal(t, "alice", r1.Payouts[0].Wallet)
	require.Equal(t, "carol", r1.Payouts[2].Wallet)
}

func TestSettleRemainderDistributionSumsToCap(t *testing.T) {
	// Seven voters with awkward multipliers: integer scaling truncates, the
	// largest-remainder pass must top the total back up to the cap exactly.
	engine := NewEngine(urtc("1.5"), urtc("1.5"))
	votes := []types.Vote{
		vote("w1", "f1", "2.3"),
		vote("w2", "f2", "2.7"),
		vote("w3", "f3", "1.8"),
		vote("w4", "f4", "2.5"),
		vote("w5", "f5", "1.0"),
		vote("w6", "f6", "1.4"),
		vote("w7", "f7", "2.6"),
	}
	res := engine.Settle(4, votes)
	require.True(t, res.CapApplied)

	total := sdkmath.ZeroInt()
	for _, p := range res.Payouts {
		total = total.Add(p.Amount)
	}
	require.Equal(t, urtc("1.5"), total)
	require.Equal(t, urtc("1.5"), res.TotalPaid)
}

func TestSettleSingleVoterKeepsMultiplierUnderCap(t *testing.T) {
	engine := NewEngine(urtc("1.5"), urtc("4.0"))
	res := engine.Settle(5, []types.Vote{vote("solo", "fp", "2.5")})
	require.False(t, res.CapApplied)
	require.Equal(t, urtc("3.75"), res.TotalPaid)
	require.Equal(t, urtc("3.75"), res.Payouts[0].Amount)
}
