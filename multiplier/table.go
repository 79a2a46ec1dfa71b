package multiplier

import (
	sdkmath "cosmossdk.io/math"

	"rustchain-node/types"
)

// secondsPerYear converts epoch counts to elapsed years for decay purposes.
const secondsPerYear = 365 * 24 * 3600

var (
	floor       = sdkmath.LegacyOneDec()
	decayFactor = sdkmath.LegacyMustNewDecFromStr("0.85")
)

// Table maps a device class to its antiquity reward multiplier. The base values
// are per-class constants; the effective multiplier erodes by 15% per elapsed
// year, compounded, and never drops below 1.0. It is recomputed at every vote
// from the immutable first-seen epoch, so re-registration cannot reset decay.
type Table struct {
	arch          map[string]sdkmath.LegacyDec
	familyDefault map[string]sdkmath.LegacyDec
	epochSeconds  int64
}

// NewTable builds the reference weight table. epochSeconds is the wall-clock
// length of one epoch, used to convert epoch distance into elapsed years.
func NewTable(epochSeconds int64) *Table {
	d := sdkmath.LegacyMustNewDecFromStr
	t := &Table{
		arch:          map[string]sdkmath.LegacyDec{},
		familyDefault: map[string]sdkmath.LegacyDec{},
		epochSeconds:  epochSeconds,
	}
	set := func(family, arch string, v sdkmath.LegacyDec) {
		t.arch[types.DeviceClass{Family: family, Arch: arch}.String()] = v
	}

	set("PowerPC", "G3", d("1.8"))
	set("PowerPC", "G4", d("2.5"))
	set("PowerPC", "G5", d("2.0"))
	set("PowerPC", "power8", d("2.0"))
	set("PowerPC", "power9", d("1.5"))
	t.familyDefault["PowerPC"] = d("1.5")

	set("Apple Silicon", "M1", d("1.2"))
	set("Apple Silicon", "M2", d("1.2"))
	set("Apple Silicon", "M3", d("1.1"))
	t.familyDefault["Apple Silicon"] = d("1.2")

	set("x86", "retro", d("1.4"))
	set("x86", "core2", d("1.3"))
	t.familyDefault["x86"] = d("1.0")
	t.familyDefault["x86_64"] = d("1.0")
	t.familyDefault["ARM"] = d("1.0")

	set("console", "nes_6502", d("2.8"))
	set("console", "snes_65c816", d("2.7"))
	set("console", "n64_mips", d("2.5"))
	set("console", "genesis_68000", d("2.5"))
	set("console", "gameboy_z80", d("2.6"))
	set("console", "ps1_mips", d("2.8"))
	set("console", "saturn_sh2", d("2.6"))
	set("console", "gba_arm7", d("2.3"))
	t.familyDefault["console"] = d("2.5")

	return t
}

// Base returns the undecayed multiplier for a class.
func (t *Table) Base(class types.DeviceClass) sdkmath.LegacyDec {
	if v, ok := t.arch[class.String()]; ok {
		return v
	}
	if v, ok := t.familyDefault[class.Family]; ok {
		return v
	}
	return floor
}

// Multiplier returns the effective multiplier at currentEpoch for a device
// first seen at firstSeenEpoch: base * 0.85^wholeElapsedYears, floored at 1.0.
func (t *Table) Multiplier(class types.DeviceClass, firstSeenEpoch, currentEpoch uint64) sdkmath.LegacyDec {
	base := t.Base(class)
	if currentEpoch <= firstSeenEpoch {
		return base
	}
	elapsedSeconds := int64(currentEpoch-firstSeenEpoch) * t.epochSeconds
	years := uint64(elapsedSeconds / secondsPerYear)
	if years == 0 {
		return base
	}
	effective := base.Mul(decayFactor.Power(years))
	if effective.LT(floor) {
		return floor
	}
	return effective
}
