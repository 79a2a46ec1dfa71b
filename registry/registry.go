// Package registry is the admission-control and identity-binding layer: it
// holds every admitted device profile, enforces the one-fingerprint-one-wallet
// binding invariant, and smooths per-attestation trust scores over time.
package registry

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rustchain-node/internal/store"
	"rustchain-node/logging"
	"rustchain-node/nodeconfig"
	"rustchain-node/types"
)

// DeviceProfile is immutable in identity once admitted: the fingerprint hash,
// class and first-seen epoch never change, even across an authorized rebind.
type DeviceProfile struct {
	FingerprintHash string            `json:"fingerprint_hash"`
	Wallet          string            `json:"wallet"`
	Class           types.DeviceClass `json:"class"`
	FirstSeenEpoch  uint64            `json:"first_seen_epoch"`
	TrustScore      decimal.Decimal   `json:"trust_score"`
	Suspended       bool              `json:"suspended"`
	Attestations    uint64            `json:"attestations"`
	LastAttestEpoch uint64            `json:"last_attest_epoch"`
	LastAttestUnix  int64             `json:"last_attest_unix"`
}

// RebindAuthorization proves the original wallet consents to moving a device
// binding. The signature is Ed25519 over CanonicalRebindMessage and the public
// key must derive to the original wallet's address.
type RebindAuthorization struct {
	Signature string
	PublicKey string
}

// CanonicalRebindMessage is the exact byte string a rebind authorization signs:
// compact JSON with keys in sorted order and no HTML escaping, matching the
// canonical form signed transfers use.
func CanonicalRebindMessage(fingerprintHash, fromWallet, toWallet string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(struct {
		Device string `json:"device"`
		From   string `json:"from"`
		To     string `json:"to"`
	}{Device: fingerprintHash, From: fromWallet, To: toWallet})
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

type Registry struct {
	mu sync.RWMutex

	devices map[string]*DeviceProfile
	// wallet -> class key -> fingerprints bound in that slot, for the
	// per-class binding cap
	byWallet map[string]map[string]map[string]bool

	trust             nodeconfig.TrustParams
	rebindGraceEpochs uint64
	maxPerClass       int

	store *store.Store
	now   func() time.Time
}

type snapshot struct {
	Devices []DeviceProfile `json:"devices"`
}

func NewRegistry(trust nodeconfig.TrustParams, cfg nodeconfig.AttestationConfig, st *store.Store) (*Registry, error) {
	r := &Registry{
		devices:           map[string]*DeviceProfile{},
		byWallet:          map[string]map[string]map[string]bool{},
		trust:             trust,
		rebindGraceEpochs: cfg.RebindGraceEpochs,
		maxPerClass:       cfg.MaxBindingsPerClass,
		store:             st,
		now:               time.Now,
	}
	if st != nil {
		var snap snapshot
		found, err := st.Load(&snap)
		if err != nil {
			return nil, err
		}
		if found {
			for i := range snap.Devices {
				d := snap.Devices[i]
				r.devices[d.FingerprintHash] = &d
				r.index(d.Wallet, d.Class, d.FingerprintHash)
			}
			logging.Info("registry state restored", types.Registry, "devices", len(r.devices))
		}
	}
	return r, nil
}

func (r *Registry) index(wallet string, class types.DeviceClass, fp string) {
	if r.byWallet[wallet] == nil {
		r.byWallet[wallet] = map[string]map[string]bool{}
	}
	slot := r.byWallet[wallet][class.String()]
	if slot == nil {
		slot = map[string]bool{}
		r.byWallet[wallet][class.String()] = slot
	}
	slot[fp] = true
}

// unindex removes a single fingerprint from its wallet's class slot; sibling
// bindings in the same slot are untouched.
func (r *Registry) unindex(wallet string, class types.DeviceClass, fp string) {
	m := r.byWallet[wallet]
	if m == nil {
		return
	}
	if slot := m[class.String()]; slot != nil {
		delete(slot, fp)
		if len(slot) == 0 {
			delete(m, class.String())
		}
	}
	if len(m) == 0 {
		delete(r.byWallet, wallet)
	}
}

// classSlotFree reports whether wallet can take one more binding of class.
func (r *Registry) classSlotFree(wallet string, class types.DeviceClass) error {
	limit := r.maxPerClass
	if limit < 1 {
		limit = 1
	}
	if slot := r.byWallet[wallet][class.String()]; len(slot) >= limit {
		return types.ErrDuplicateBinding.Wrapf(
			"wallet %s already holds %d %s bindings (cap %d)",
			wallet, len(slot), class.String(), limit)
	}
	return nil
}

// Register admits a new device or re-binds an existing one.
//
// A fingerprint binds to exactly one wallet. Moving the binding requires either
// a RebindAuthorization signed by the original wallet, or the device having
// been silent beyond the rebind grace window. The first-seen epoch survives any
// rebind so that re-registration can never reset antiquity decay.
func (r *Registry) Register(fingerprintHash, wallet string, class types.DeviceClass,
	trustScore decimal.Decimal, currentEpoch uint64, auth *RebindAuthorization) (DeviceProfile, error) {

	if err := types.ValidateWallet(wallet); err != nil {
		return DeviceProfile{}, err
	}
	if trustScore.LessThan(r.trust.AdmissionThreshold) {
		return DeviceProfile{}, types.ErrLowTrust.Wrapf("score %s < threshold %s",
			trustScore.String(), r.trust.AdmissionThreshold.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[fingerprintHash]; ok {
		if existing.Wallet == wallet {
			return *existing, nil
		}
		if err := r.authorizeRebind(existing, wallet, currentEpoch, auth); err != nil {
			return DeviceProfile{}, err
		}
		if err := r.classSlotFree(wallet, existing.Class); err != nil {
			return DeviceProfile{}, err
		}
		logging.Info("device re-bound", types.Registry,
			"fingerprint", fingerprintHash, "from", existing.Wallet, "to", wallet)
		r.unindex(existing.Wallet, existing.Class, fingerprintHash)
		existing.Wallet = wallet
		r.index(wallet, existing.Class, fingerprintHash)
		r.persist()
		return *existing, nil
	}

	// Bindings per wallet per device class are capped, default one.
	if err := r.classSlotFree(wallet, class); err != nil {
		return DeviceProfile{}, err
	}

	profile := &DeviceProfile{
		FingerprintHash: fingerprintHash,
		Wallet:          wallet,
		Class:           class,
		FirstSeenEpoch:  currentEpoch,
		TrustScore:      trustScore,
		Attestations:    1,
		LastAttestEpoch: currentEpoch,
		LastAttestUnix:  r.now().Unix(),
	}
	r.devices[fingerprintHash] = profile
	r.index(wallet, class, fingerprintHash)
	r.persist()
	logging.Info("device admitted", types.Registry,
		"fingerprint", fingerprintHash, "wallet", wallet, "class", class.String(),
		"first_seen_epoch", currentEpoch)
	return *profile, nil
}

func (r *Registry) authorizeRebind(existing *DeviceProfile, newWallet string,
	currentEpoch uint64, auth *RebindAuthorization) error {

	if auth != nil {
		addr, err := types.AddressFromPubKey(auth.PublicKey)
		if err != nil {
			return types.ErrDuplicateBinding.Wrap("rebind authorization: malformed public key")
		}
		if addr != existing.Wallet {
			return types.ErrDuplicateBinding.Wrapf(
				"rebind authorization key does not belong to %s", existing.Wallet)
		}
		msg := CanonicalRebindMessage(existing.FingerprintHash, existing.Wallet, newWallet)
		if !types.VerifyEd25519(auth.PublicKey, msg, auth.Signature) {
			return types.ErrDuplicateBinding.Wrap("rebind authorization signature invalid")
		}
		return nil
	}

	// Without consent the device must have been inactive beyond the grace window.
	if currentEpoch > existing.LastAttestEpoch &&
		currentEpoch-existing.LastAttestEpoch > r.rebindGraceEpochs {
		return nil
	}
	return types.ErrDuplicateBinding.Wrapf("fingerprint bound to %s", existing.Wallet)
}

// Attest records a liveness attestation and folds the sample score into the
// device's running trust via exponential smoothing. A device whose smoothed
// trust falls below the suspension threshold stops voting until it recovers.
func (r *Registry) Attest(fingerprintHash string, sampleScore decimal.Decimal, epoch uint64) (DeviceProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[fingerprintHash]
	if !ok {
		return DeviceProfile{}, types.ErrUnknownDevice.Wrap(fingerprintHash)
	}

	device.TrustScore = r.trust.TrustAlpha.Mul(sampleScore).
		Add(decimal.NewFromInt(1).Sub(r.trust.TrustAlpha).Mul(device.TrustScore))
	device.Attestations++
	device.LastAttestEpoch = epoch
	device.LastAttestUnix = r.now().Unix()

	if device.TrustScore.LessThan(r.trust.SuspendThreshold) {
		if !device.Suspended {
			logging.Warn("device suspended, trust degraded", types.Registry,
				"fingerprint", fingerprintHash, "trust", device.TrustScore.String())
		}
		device.Suspended = true
		r.persist()
		return *device, types.ErrDeviceSuspended.Wrapf("trust %s", device.TrustScore.String())
	}
	if device.Suspended {
		logging.Info("device reinstated", types.Registry,
			"fingerprint", fingerprintHash, "trust", device.TrustScore.String())
		device.Suspended = false
	}
	r.persist()
	return *device, nil
}

// Get returns the profile for a fingerprint.
func (r *Registry) Get(fingerprintHash string) (DeviceProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[fingerprintHash]
	if !ok {
		return DeviceProfile{}, false
	}
	return *d, true
}

// List returns all profiles ordered by wallet then fingerprint.
func (r *Registry) List() []DeviceProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceProfile, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wallet != out[j].Wallet {
			return out[i].Wallet < out[j].Wallet
		}
		return out[i].FingerprintHash < out[j].FingerprintHash
	})
	return out
}

func (r *Registry) persist() {
	if r.store == nil {
		return
	}
	snap := snapshot{Devices: make([]DeviceProfile, 0, len(r.devices))}
	for _, d := range r.devices {
		snap.Devices = append(snap.Devices, *d)
	}
	sort.Slice(snap.Devices, func(i, j int) bool {
		return snap.Devices[i].FingerprintHash < snap.Devices[j].FingerprintHash
	})
	if err := r.store.Save(&snap); err != nil {
		logging.Error("failed to persist registry state", types.Registry, "error", err)
	}
}
