package multiplier

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"rustchain-node/types"
)

// 144 slots of 600s: one epoch per day, 365 epochs per year.
const epochSeconds = 144 * 600

func class(family, arch string) types.DeviceClass {
	return types.DeviceClass{Family: family, Arch: arch}
}

func TestBaseWeights(t *testing.T) {
	table := NewTable(epochSeconds)

	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("2.5"), table.Base(class("PowerPC", "G4")))
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("2.0"), table.Base(class("PowerPC", "G5")))
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.8"), table.Base(class("PowerPC", "G3")))
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("2.8"), table.Base(class("console", "nes_6502")))
	require.Equal(t, sdkmath.LegacyOneDec(), table.Base(class("x86_64", "modern")))
	// Unknown arch falls back to the family default.
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.5"), table.Base(class("PowerPC", "G4e")))
	// Unknown family floors at 1.0.
	require.Equal(t, sdkmath.LegacyOneDec(), table.Base(class("quantum", "q1")))
}

func TestMultiplierNoDecayWithinFirstYear(t *testing.T) {
	table := NewTable(epochSeconds)
	g4 := class("PowerPC", "G4")

	require.Equal(t, table.Base(g4), table.Multiplier(g4, 100, 100))
	require.Equal(t, table.Base(g4), table.Multiplier(g4, 100, 100+364))
}

func TestMultiplierDecaysFifteenPercentPerYear(t *testing.T) {
	table := NewTable(epochSeconds)
	g4 := class("PowerPC", "G4")

	oneYear := table.Multiplier(g4, 0, 365)
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("2.125"), oneYear)

	twoYears := table.Multiplier(g4, 0, 2*365)
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.80625"), twoYears)
}

func TestMultiplierFloorsAtOne(t *testing.T) {
	table := NewTable(epochSeconds)
	g4 := class("PowerPC", "G4")

	// 2.5 * 0.85^12 ≈ 0.356, well under the floor.
	require.Equal(t, sdkmath.LegacyOneDec(), table.Multiplier(g4, 0, 12*365))
	// Modern hardware sits at the floor from day one.
	require.Equal(t, sdkmath.LegacyOneDec(), table.Multiplier(class("x86_64", "modern"), 0, 5*365))
}

func TestMultiplierIgnoresClockSkewBeforeFirstSeen(t *testing.T) {
	table := NewTable(epochSeconds)
	g4 := class("PowerPC", "G4")
	require.Equal(t, table.Base(g4), table.Multiplier(g4, 500, 400))
}
