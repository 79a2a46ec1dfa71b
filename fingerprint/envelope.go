package fingerprint

import (
	"github.com/shopspring/decimal"

	"rustchain-node/types"
)

// Band is an inclusive [Min, Max] range for a physical reading.
type Band struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func band(min, max string) Band {
	return Band{Min: dec(min), Max: dec(max)}
}

func (b Band) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(b.Min) && v.LessThanOrEqual(b.Max)
}

// Envelope is the statistical profile expected from genuine silicon of a class.
// The exact constants are tunable configuration, not law; these defaults were
// fitted against the attestation corpus of the reference deployment.
type Envelope struct {
	Class types.DeviceClass

	// Oscillator drift: vintage crystals wander, hypervisor clocks are either
	// dead flat or synthetically noisy.
	DriftCv Band

	// Per-level cache access latency, ns.
	L1, L2, L3 Band

	// Expected vector unit tag, empty when the class has none.
	SimdTag string

	// Minimum entropy (bits) of thermal noise over the sampling window.
	MinEntropyBits decimal.Decimal

	// Minimum dispersion (stddev/mean) of the jitter histogram. Emulated
	// pipelines are too uniform.
	MinJitterSpread decimal.Decimal

	// Timing side-channel ratio band for the anti-emulation probe.
	ProbeRatio Band
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// x86 feature flags that must never be visible on a non-x86 class.
var x86OnlyFeatures = map[string]bool{
	"sse": true, "sse2": true, "sse3": true, "ssse3": true,
	"sse4_1": true, "sse4_2": true, "avx": true, "avx2": true, "avx512f": true,
}

// DefaultEnvelopes covers the classes the reward table knows about. Unknown
// classes fall back to the modern profile, which earns no antiquity bonus anyway.
func DefaultEnvelopes() map[string]Envelope {
	list := []Envelope{
		{
			Class:           types.DeviceClass{Family: "PowerPC", Arch: "G3"},
			DriftCv:         band("0.005", "0.08"),
			L1:              Band{dec("2"), dec("12")},
			L2:              Band{dec("18"), dec("90")},
			L3:              Band{dec("0"), dec("0")},
			SimdTag:         "",
			MinEntropyBits:  dec("3.0"),
			MinJitterSpread: dec("0.15"),
			ProbeRatio:      band("0.8", "1.6"),
		},
		{
			Class:           types.DeviceClass{Family: "PowerPC", Arch: "G4"},
			DriftCv:         band("0.005", "0.05"),
			L1:              Band{dec("2"), dec("10")},
			L2:              Band{dec("15"), dec("60")},
			L3:              Band{dec("40"), dec("220")},
			SimdTag:         "altivec",
			MinEntropyBits:  dec("3.0"),
			MinJitterSpread: dec("0.15"),
			ProbeRatio:      band("0.8", "1.6"),
		},
		{
			Class:           types.DeviceClass{Family: "PowerPC", Arch: "G5"},
			DriftCv:         band("0.004", "0.04"),
			L1:              Band{dec("1"), dec("8")},
			L2:              Band{dec("10"), dec("45")},
			L3:              Band{dec("0"), dec("0")},
			SimdTag:         "altivec",
			MinEntropyBits:  dec("3.0"),
			MinJitterSpread: dec("0.12"),
			ProbeRatio:      band("0.8", "1.6"),
		},
		{
			Class:           types.DeviceClass{Family: "Apple Silicon", Arch: "M1"},
			DriftCv:         band("0.0002", "0.01"),
			L1:              Band{dec("1"), dec("4")},
			L2:              Band{dec("4"), dec("18")},
			L3:              Band{dec("10"), dec("60")},
			SimdTag:         "neon",
			MinEntropyBits:  dec("2.5"),
			MinJitterSpread: dec("0.05"),
			ProbeRatio:      band("0.9", "1.3"),
		},
		{
			Class:           types.DeviceClass{Family: "x86", Arch: "retro"},
			DriftCv:         band("0.003", "0.06"),
			L1:              Band{dec("2"), dec("10")},
			L2:              Band{dec("12"), dec("70")},
			L3:              Band{dec("0"), dec("0")},
			SimdTag:         "mmx",
			MinEntropyBits:  dec("2.5"),
			MinJitterSpread: dec("0.12"),
			ProbeRatio:      band("0.8", "1.6"),
		},
		{
			Class:           types.DeviceClass{Family: "x86_64", Arch: "modern"},
			DriftCv:         band("0.0001", "0.01"),
			L1:              Band{dec("0.5"), dec("3")},
			L2:              Band{dec("2"), dec("12")},
			L3:              Band{dec("8"), dec("50")},
			SimdTag:         "avx2",
			MinEntropyBits:  dec("2.0"),
			MinJitterSpread: dec("0.03"),
			ProbeRatio:      band("0.9", "1.2"),
		},
	}
	out := make(map[string]Envelope, len(list))
	for _, e := range list {
		out[e.Class.String()] = e
	}
	return out
}
