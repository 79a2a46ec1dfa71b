package fingerprint

import (
	"strings"

	"github.com/shopspring/decimal"

	"rustchain-node/logging"
	"rustchain-node/types"
)

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// Result is the outcome of scoring one sample against its class envelope.
type Result struct {
	Score     decimal.Decimal
	Admitted  bool
	SubScores map[string]decimal.Decimal
	// First category that drove the composite to zero, empty when admitted.
	FailReason string
}

// Evaluator scores raw hardware-signal samples against per-class envelopes.
// It is stateless per call: trust history lives in the device registry.
type Evaluator struct {
	envelopes map[string]Envelope
	fallback  Envelope
	threshold decimal.Decimal
}

func NewEvaluator(threshold decimal.Decimal) *Evaluator {
	envelopes := DefaultEnvelopes()
	return &Evaluator{
		envelopes: envelopes,
		fallback:  envelopes[types.DeviceClass{Family: "x86_64", Arch: "modern"}.String()],
		threshold: threshold,
	}
}

// SetEnvelope overrides the envelope for a class. Thresholds are configuration,
// not hard-coded law.
func (e *Evaluator) SetEnvelope(env Envelope) {
	e.envelopes[env.Class.String()] = env
}

// Evaluate produces a composite trust score in [0,1] and an admission decision.
// Sub-scores combine multiplicatively so that a single hard anti-emulation
// failure drives the composite to zero instead of being averaged away. A
// missing category scores zero for that category.
func (e *Evaluator) Evaluate(class types.DeviceClass, sample SignalSample) Result {
	env, ok := e.envelopes[class.String()]
	if !ok {
		env = e.fallback
		logging.Debug("no envelope for claimed class, using fallback", types.Fingerprint,
			"class", class.String())
	}

	subScores := map[string]decimal.Decimal{
		"clock_drift":      scoreClockDrift(env, sample.ClockDrift),
		"cache_latency":    scoreCacheLatency(env, sample.CacheLatency),
		"simd_identity":    scoreSimdIdentity(class, env, sample.SimdIdentity),
		"thermal_entropy":  scoreThermalEntropy(env, sample.ThermalEntropy),
		"jitter_histogram": scoreJitter(env, sample.JitterHistogram),
		"anti_emulation":   scoreAntiEmulation(env, sample.AntiEmulation),
	}

	composite := one
	failReason := ""
	for _, name := range []string{
		"anti_emulation", "clock_drift", "cache_latency",
		"simd_identity", "thermal_entropy", "jitter_histogram",
	} {
		composite = composite.Mul(subScores[name])
		if failReason == "" && subScores[name].IsZero() {
			failReason = name
		}
	}

	admitted := composite.GreaterThanOrEqual(e.threshold)
	if !admitted {
		logging.Debug("sample rejected", types.Fingerprint,
			"class", class.String(), "score", composite.String(), "reason", failReason)
	}
	return Result{
		Score:      composite,
		Admitted:   admitted,
		SubScores:  subScores,
		FailReason: failReason,
	}
}

func scoreClockDrift(env Envelope, cd *ClockDrift) decimal.Decimal {
	if cd == nil || cd.Samples == 0 {
		return zero
	}
	// cv == 0 means the reading was fabricated, real oscillators always wander
	if cd.Cv.IsZero() {
		return zero
	}
	if env.DriftCv.Contains(cd.Cv) {
		return one
	}
	return zero
}

func scoreCacheLatency(env Envelope, cl *CacheLatency) decimal.Decimal {
	if cl == nil {
		return zero
	}
	levels := []struct {
		band    Band
		reading decimal.Decimal
	}{
		{env.L1, cl.L1Ns},
		{env.L2, cl.L2Ns},
		{env.L3, cl.L3Ns},
	}
	hits := int64(0)
	for _, l := range levels {
		// A zero-width band at zero means the class has no such cache level;
		// the reading must agree.
		if l.band.Min.IsZero() && l.band.Max.IsZero() {
			if l.reading.IsZero() {
				hits++
			}
			continue
		}
		if l.band.Contains(l.reading) {
			hits++
		}
	}
	return decimal.NewFromInt(hits).Div(decimal.NewFromInt(3))
}

func scoreSimdIdentity(class types.DeviceClass, env Envelope, si *SimdIdentity) decimal.Decimal {
	if si == nil {
		return zero
	}
	// x86 feature flags visible on a non-x86 claim is a hard arch mismatch.
	if !strings.HasPrefix(class.Family, "x86") {
		for _, f := range si.X86Features {
			if x86OnlyFeatures[strings.ToLower(f)] {
				return zero
			}
		}
	}
	if !strings.EqualFold(si.Tag, env.SimdTag) {
		return zero
	}
	return one
}

func scoreThermalEntropy(env Envelope, te *ThermalEntropy) decimal.Decimal {
	if te == nil || te.WindowSamples == 0 {
		return zero
	}
	if te.EntropyBits.GreaterThanOrEqual(env.MinEntropyBits) {
		return one
	}
	// Too-clean noise is the hypervisor signature; degrade proportionally.
	if env.MinEntropyBits.IsZero() {
		return one
	}
	return te.EntropyBits.Div(env.MinEntropyBits)
}

func scoreJitter(env Envelope, jh *JitterHistogram) decimal.Decimal {
	if jh == nil || len(jh.Buckets) == 0 {
		return zero
	}
	spread := histogramSpread(jh.Buckets)
	if spread.GreaterThanOrEqual(env.MinJitterSpread) {
		return one
	}
	return zero
}

func scoreAntiEmulation(env Envelope, ae *AntiEmulation) decimal.Decimal {
	if ae == nil {
		return zero
	}
	if !ae.Passed || len(ae.VmIndicators) > 0 {
		return zero
	}
	if !env.ProbeRatio.Contains(ae.TimingRatio) {
		return zero
	}
	return one
}

// histogramSpread computes stddev/mean over the bucket counts, the dispersion
// measure the envelope's MinJitterSpread is calibrated against.
func histogramSpread(buckets []int64) decimal.Decimal {
	n := decimal.NewFromInt(int64(len(buckets)))
	sum := decimal.Zero
	for _, c := range buckets {
		sum = sum.Add(decimal.NewFromInt(c))
	}
	if sum.IsZero() {
		return decimal.Zero
	}
	mean := sum.Div(n)

	variance := decimal.Zero
	for _, c := range buckets {
		d := decimal.NewFromInt(c).Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)

	// Newton's method square root; decimal has no Sqrt and the dispersion only
	// needs a few digits of precision.
	sd := sqrt(variance)
	return sd.Div(mean)
}

func sqrt(v decimal.Decimal) decimal.Decimal {
	if v.Sign() <= 0 {
		return decimal.Zero
	}
	guess := v
	half := decimal.NewFromFloat(0.5)
	for i := 0; i < 20; i++ {
		guess = guess.Add(v.DivRound(guess, 16)).Mul(half)
	}
	return guess
}
