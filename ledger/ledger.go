// Package ledger holds wallet balances in integer uRTC and applies the only
// two ways value moves: settlement credits and transfers. Every mutation is
// all-or-nothing under one lock and snapshotted to disk before it is visible.
package ledger

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"

	"rustchain-node/internal/store"
	"rustchain-node/logging"
	"rustchain-node/settlement"
	"rustchain-node/types"
)

// SignedTransfer is a user-authorized transfer. The signature is Ed25519 over
// CanonicalTransferMessage and the public key must derive to the from address.
type SignedTransfer struct {
	From      string
	To        string
	Amount    int64
	Nonce     string
	PublicKey string
	Signature string
}

// CanonicalTransferMessage is the exact byte string a transfer signs: compact
// JSON with keys in sorted order and no HTML escaping, so any wallet producing
// canonical JSON computes the same bytes. Wallets never need to agree on a
// marshaller, only on this string.
func CanonicalTransferMessage(amount int64, from, nonce, to string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Struct field order is the sorted key order.
	_ = enc.Encode(struct {
		Amount int64  `json:"amount"`
		From   string `json:"from"`
		Nonce  string `json:"nonce"`
		To     string `json:"to"`
	}{Amount: amount, From: from, Nonce: nonce, To: to})
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

type Ledger struct {
	mu sync.RWMutex

	balances map[string]sdkmath.Int
	// consumed nonces per sender; a nonce is burned even if unseen senders reuse it
	nonces map[string]map[string]bool

	settledEpochs map[uint64]settlement.Result

	store *store.Store
}

type BalanceEntry struct {
	Wallet string      `json:"wallet"`
	Amount sdkmath.Int `json:"amount_i64"`
}

type snapshot struct {
	Balances []BalanceEntry        `json:"balances"`
	Nonces   map[string][]string   `json:"nonces"`
	Settled  []settlement.Result   `json:"settled_epochs"`
}

func NewLedger(st *store.Store) (*Ledger, error) {
	l := &Ledger{
		balances:      map[string]sdkmath.Int{},
		nonces:        map[string]map[string]bool{},
		settledEpochs: map[uint64]settlement.Result{},
		store:         st,
	}
	if st != nil {
		var snap snapshot
		found, err := st.Load(&snap)
		if err != nil {
			return nil, err
		}
		if found {
			for _, b := range snap.Balances {
				l.balances[b.Wallet] = b.Amount
			}
			for sender, used := range snap.Nonces {
				set := make(map[string]bool, len(used))
				for _, n := range used {
					set[n] = true
				}
				l.nonces[sender] = set
			}
			for _, res := range snap.Settled {
				l.settledEpochs[res.Epoch] = res
			}
			logging.Info("ledger state restored", types.Ledger,
				"wallets", len(l.balances), "settled_epochs", len(l.settledEpochs))
		}
	}
	return l, nil
}

// Balance returns the uRTC balance for a wallet, zero for unknown wallets.
func (l *Ledger) Balance(wallet string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[wallet]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := sdkmath.ZeroInt()
	for _, b := range l.balances {
		total = total.Add(b)
	}
	return total
}

// Wallets returns the number of wallets with a recorded balance.
func (l *Ledger) Wallets() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.balances)
}

// ApplySettlement credits every payout of a settled epoch. Settlement is the
// only way supply enters the ledger. Re-applying an already recorded epoch is
// rejected so a retried settlement can never double-pay.
func (l *Ledger) ApplySettlement(res settlement.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.settledEpochs[res.Epoch]; done {
		return types.ErrEpochSettled.Wrapf("epoch %d already credited", res.Epoch)
	}
	for _, p := range res.Payouts {
		l.credit(p.Wallet, p.Amount)
	}
	l.settledEpochs[res.Epoch] = res
	l.persist()
	logging.Info("settlement credited", types.Ledger,
		"epoch", res.Epoch, "payouts", len(res.Payouts), "total", res.TotalPaid.String())
	return nil
}

// SettledEpoch returns the recorded distribution for an epoch, if settled.
func (l *Ledger) SettledEpoch(epoch uint64) (settlement.Result, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res, ok := l.settledEpochs[epoch]
	return res, ok
}

// LastSettledEpoch returns the highest settled epoch number, or false when
// nothing has settled yet.
func (l *Ledger) LastSettledEpoch() (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var max uint64
	found := false
	for e := range l.settledEpochs {
		if !found || e > max {
			max = e
			found = true
		}
	}
	return max, found
}

// TransferSigned verifies and applies a user transfer. Checks run in order:
// wallet validity, amount, sender/key match, signature, nonce, balance. The
// nonce is consumed only when the transfer succeeds.
func (l *Ledger) TransferSigned(t SignedTransfer) error {
	if err := types.ValidateWallet(t.To); err != nil {
		return err
	}
	if t.Amount <= 0 {
		return types.ErrInvalidAmount.Wrapf("amount %d", t.Amount)
	}
	if t.Nonce == "" {
		return types.ErrNonceReplay.Wrap("empty nonce")
	}

	addr, err := types.AddressFromPubKey(t.PublicKey)
	if err != nil {
		return err
	}
	if addr != t.From {
		return types.ErrInvalidSignature.Wrapf("public key derives %s, not sender %s", addr, t.From)
	}
	msg := CanonicalTransferMessage(t.Amount, t.From, t.Nonce, t.To)
	if !types.VerifyEd25519(t.PublicKey, msg, t.Signature) {
		return types.ErrInvalidSignature.Wrap("transfer signature does not verify")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.nonces[t.From][t.Nonce] {
		return types.ErrNonceReplay.Wrapf("nonce %s already used by %s", t.Nonce, t.From)
	}
	amount := sdkmath.NewInt(t.Amount)
	if err := l.move(t.From, t.To, amount); err != nil {
		return err
	}
	if l.nonces[t.From] == nil {
		l.nonces[t.From] = map[string]bool{}
	}
	l.nonces[t.From][t.Nonce] = true
	l.persist()
	logging.Info("signed transfer applied", types.Ledger,
		"from", t.From, "to", t.To, "amount", t.Amount, "nonce", t.Nonce)
	return nil
}

// TransferAdmin moves value without a signature. Authorization is the caller's
// problem (the admin server gates it on the admin key); conservation is not —
// the sender still needs the balance.
func (l *Ledger) TransferAdmin(from, to string, amount int64) error {
	if err := types.ValidateWallet(from); err != nil {
		return err
	}
	if err := types.ValidateWallet(to); err != nil {
		return err
	}
	if amount <= 0 {
		return types.ErrInvalidAmount.Wrapf("amount %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.move(from, to, sdkmath.NewInt(amount)); err != nil {
		return err
	}
	l.persist()
	logging.Info("admin transfer applied", types.Ledger, "from", from, "to", to, "amount", amount)
	return nil
}

// move debits and credits under the held lock; it either fully applies or
// leaves both balances untouched.
func (l *Ledger) move(from, to string, amount sdkmath.Int) error {
	balance, ok := l.balances[from]
	if !ok || balance.LT(amount) {
		have := sdkmath.ZeroInt()
		if ok {
			have = balance
		}
		return types.ErrInsufficientBalance.Wrapf("%s holds %s, needs %s",
			from, have.String(), amount.String())
	}
	l.balances[from] = balance.Sub(amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(wallet string, amount sdkmath.Int) {
	if b, ok := l.balances[wallet]; ok {
		l.balances[wallet] = b.Add(amount)
		return
	}
	l.balances[wallet] = amount
}

// Snapshot returns balances ordered by wallet. The ordering is load-bearing:
// the anchor digest hashes these bytes and must be identical across restarts.
func (l *Ledger) Snapshot() []BalanceEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedBalances()
}

func (l *Ledger) sortedBalances() []BalanceEntry {
	out := make([]BalanceEntry, 0, len(l.balances))
	for w, b := range l.balances {
		out = append(out, BalanceEntry{Wallet: w, Amount: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

func (l *Ledger) persist() {
	if l.store == nil {
		return
	}
	snap := snapshot{
		Balances: l.sortedBalances(),
		Nonces:   map[string][]string{},
	}
	for sender, used := range l.nonces {
		list := make([]string, 0, len(used))
		for n := range used {
			list = append(list, n)
		}
		sort.Strings(list)
		snap.Nonces[sender] = list
	}
	epochs := make([]uint64, 0, len(l.settledEpochs))
	for e := range l.settledEpochs {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	for _, e := range epochs {
		snap.Settled = append(snap.Settled, l.settledEpochs[e])
	}
	if err := l.store.Save(&snap); err != nil {
		logging.Error("failed to persist ledger state", types.Ledger, "error", err)
	}
}
