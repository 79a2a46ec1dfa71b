package fingerprint

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"rustchain-node/types"
)

// SignalSample is one attestation submission. It is consumed by the evaluator and
// never persisted raw; only the derived fingerprint hash and score are retained.
// A nil category means the miner skipped it, which scores as a failure for that
// category — no category may be omitted to inflate the composite.
type SignalSample struct {
	ClockDrift      *ClockDrift      `json:"clock_drift"`
	CacheLatency    *CacheLatency    `json:"cache_latency"`
	SimdIdentity    *SimdIdentity    `json:"simd_identity"`
	ThermalEntropy  *ThermalEntropy  `json:"thermal_entropy"`
	JitterHistogram *JitterHistogram `json:"jitter_histogram"`
	AntiEmulation   *AntiEmulation   `json:"anti_emulation"`
}

// ClockDrift reports the coefficient of variation of repeated oscillator readings.
type ClockDrift struct {
	Cv      decimal.Decimal `json:"cv"`
	Samples int             `json:"samples"`
}

// CacheLatency is the measured per-level access latency tuple, in nanoseconds.
type CacheLatency struct {
	L1Ns decimal.Decimal `json:"l1_ns"`
	L2Ns decimal.Decimal `json:"l2_ns"`
	L3Ns decimal.Decimal `json:"l3_ns"`
}

// SimdIdentity names the vector unit the miner detected, plus any x86 feature
// flags it saw. x86 flags on a claimed PowerPC are a hard mismatch.
type SimdIdentity struct {
	Tag         string   `json:"tag"`
	X86Features []string `json:"x86_features"`
}

// ThermalEntropy is the entropy of thermal sensor noise over a sampling window.
// Hypervisors report suspiciously clean readings.
type ThermalEntropy struct {
	EntropyBits   decimal.Decimal `json:"entropy_bits"`
	WindowSamples int             `json:"window_samples"`
}

// JitterHistogram buckets instruction-path timing jitter.
type JitterHistogram struct {
	Buckets []int64 `json:"buckets"`
}

// AntiEmulation carries the result of explicit timing side-channel probes.
type AntiEmulation struct {
	Passed       bool            `json:"passed"`
	TimingRatio  decimal.Decimal `json:"timing_ratio"`
	VmIndicators []string        `json:"vm_indicators"`
}

// Hash derives the device fingerprint from the six signal measurements and the
// claimed class. Raw readings vary run to run, so each measurement is quantized
// to its stable physical envelope before hashing: the same machine hashes the
// same way across attestations, while a different cache hierarchy, vector unit
// or oscillator grade lands in a different bucket. BLAKE2b-256, hex encoded,
// truncated to 32 chars like the legacy induction records.
func Hash(class types.DeviceClass, sample SignalSample) string {
	var b strings.Builder
	b.WriteString(class.String())
	b.WriteByte('|')
	if sample.ClockDrift != nil {
		fmt.Fprintf(&b, "cd:%d", magnitude(sample.ClockDrift.Cv))
	}
	b.WriteByte('|')
	if sample.CacheLatency != nil {
		fmt.Fprintf(&b, "cl:%d,%d,%d",
			quantizeNs(sample.CacheLatency.L1Ns),
			quantizeNs(sample.CacheLatency.L2Ns),
			quantizeNs(sample.CacheLatency.L3Ns))
	}
	b.WriteByte('|')
	if sample.SimdIdentity != nil {
		feats := append([]string(nil), sample.SimdIdentity.X86Features...)
		sort.Strings(feats)
		fmt.Fprintf(&b, "simd:%s/%s", sample.SimdIdentity.Tag, strings.Join(feats, ","))
	}
	b.WriteByte('|')
	if sample.ThermalEntropy != nil {
		fmt.Fprintf(&b, "te:%s", sample.ThermalEntropy.EntropyBits.Round(0).String())
	}
	b.WriteByte('|')
	if sample.JitterHistogram != nil {
		fmt.Fprintf(&b, "jh:%d", len(sample.JitterHistogram.Buckets))
	}

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:32]
}

// magnitude returns the base-10 exponent of a positive reading, e.g. 0.003 -> -3.
func magnitude(d decimal.Decimal) int {
	if d.Sign() <= 0 {
		return 0
	}
	exp := 0
	one := decimal.NewFromInt(1)
	ten := decimal.NewFromInt(10)
	for d.LessThan(one) {
		d = d.Mul(ten)
		exp--
	}
	for d.GreaterThanOrEqual(ten) {
		d = d.Div(ten)
		exp++
	}
	return exp
}

// quantizeNs buckets a latency reading to the nearest 10ns.
func quantizeNs(d decimal.Decimal) int64 {
	return d.Div(decimal.NewFromInt(10)).Round(0).IntPart() * 10
}
