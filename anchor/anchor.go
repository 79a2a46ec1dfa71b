// Package anchor periodically commits a digest of the ledger to an external
// anchoring endpoint. Anchoring is evidence, not consensus: a failed or slow
// anchor never blocks settlement, it only delays third-party verifiability.
package anchor

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"rustchain-node/ledger"
	"rustchain-node/logging"
	"rustchain-node/nodeconfig"
	"rustchain-node/types"
)

// Commitment is one anchored ledger digest. The list of commitments is
// append-only; a later commitment never rewrites an earlier one.
type Commitment struct {
	Epoch       uint64 `json:"epoch"`
	Digest      string `json:"digest"`
	TxRef       string `json:"tx_ref"`
	SubmittedAt int64  `json:"submitted_at"`
	Attempts    int    `json:"attempts"`
	Anchored    bool   `json:"anchored"`
}

// Client submits and retrieves commitments on the anchoring endpoint.
type Client interface {
	Submit(ctx context.Context, c Commitment) error
	Fetch(ctx context.Context, epoch uint64) (digest string, err error)
}

// Digest hashes the canonical ledger snapshot together with the epoch it
// belongs to. BLAKE2b-256 over sorted wallet=amount lines: any node holding
// the same balances computes the same digest.
func Digest(entries []ledger.BalanceEntry, epoch uint64) string {
	h, _ := blake2b.New256(nil)
	for _, e := range entries {
		fmt.Fprintf(h, "%s=%s\n", e.Wallet, e.Amount.String())
	}
	fmt.Fprintf(h, "epoch=%d\n", epoch)
	return hex.EncodeToString(h.Sum(nil))
}

type Committer struct {
	mu sync.RWMutex

	cfg    nodeconfig.AnchorConfig
	ledger *ledger.Ledger
	client Client

	commitments []Commitment
	quit        chan struct{}
}

func NewCommitter(cfg nodeconfig.AnchorConfig, ldg *ledger.Ledger, client Client) *Committer {
	return &Committer{
		cfg:    cfg,
		ledger: ldg,
		client: client,
		quit:   make(chan struct{}),
	}
}

// Start runs the anchoring loop on its own cadence, independent of epoch
// boundaries. No-op when anchoring is disabled.
func (c *Committer) Start() {
	if !c.cfg.Enabled || c.client == nil {
		logging.Info("anchoring disabled", types.Anchor)
		return
	}
	go c.loop()
}

func (c *Committer) Stop() {
	close(c.quit)
}

func (c *Committer) loop() {
	ticker := time.NewTicker(time.Duration(c.cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			c.commitOnce()
		}
	}
}

// commitOnce anchors the latest settled epoch, unless it is already anchored.
func (c *Committer) commitOnce() {
	epoch, ok := c.ledger.LastSettledEpoch()
	if !ok {
		return
	}
	if latest, exists := c.latestFor(epoch); exists && latest.Anchored {
		return
	}

	commitment := Commitment{
		Epoch:       epoch,
		Digest:      Digest(c.ledger.Snapshot(), epoch),
		TxRef:       uuid.New().String(),
		SubmittedAt: time.Now().Unix(),
	}

	backoff := time.Second
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		commitment.Attempts = attempt
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.client.Submit(ctx, commitment)
		cancel()
		if err == nil {
			commitment.Anchored = true
			break
		}
		logging.Warn("anchor submit failed", types.Anchor,
			"epoch", epoch, "attempt", attempt, "error", err)
		select {
		case <-c.quit:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	c.mu.Lock()
	c.commitments = append(c.commitments, commitment)
	c.mu.Unlock()

	if commitment.Anchored {
		logging.Info("ledger digest anchored", types.Anchor,
			"epoch", epoch, "digest", commitment.Digest, "tx_ref", commitment.TxRef)
	} else {
		logging.Error("anchor attempts exhausted, will retry next interval", types.Anchor,
			"epoch", epoch, "attempts", commitment.Attempts)
	}
}

func (c *Committer) latestFor(epoch uint64) (Commitment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.commitments) - 1; i >= 0; i-- {
		if c.commitments[i].Epoch == epoch {
			return c.commitments[i], true
		}
	}
	return Commitment{}, false
}

// Status returns all commitments, oldest first.
func (c *Committer) Status() []Commitment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Commitment(nil), c.commitments...)
}

// Verify re-fetches the anchored digest for an epoch and compares it with the
// locally recorded commitment.
func (c *Committer) Verify(ctx context.Context, epoch uint64) (Commitment, error) {
	local, ok := c.latestFor(epoch)
	if !ok || !local.Anchored {
		return Commitment{}, types.ErrAnchorUnavailable.Wrapf("epoch %d not anchored", epoch)
	}
	if c.client == nil {
		return Commitment{}, types.ErrAnchorUnavailable.Wrap("no anchor client configured")
	}
	remote, err := c.client.Fetch(ctx, epoch)
	if err != nil {
		return Commitment{}, types.ErrAnchorUnavailable.Wrapf("fetch epoch %d: %v", epoch, err)
	}
	if remote != local.Digest {
		return local, types.ErrAnchorMismatch.Wrapf(
			"epoch %d: local %s, anchored %s", epoch, local.Digest, remote)
	}
	return local, nil
}

// HTTPClient anchors commitments against a JSON HTTP endpoint.
type HTTPClient struct {
	url  string
	http *http.Client
}

func NewHTTPClient(url string) *HTTPClient {
	return &HTTPClient{url: url, http: &http.Client{Timeout: 30 * time.Second}}
}

func (h *HTTPClient) Submit(ctx context.Context, c Commitment) error {
	body, err := json.Marshal(map[string]any{
		"epoch":  c.Epoch,
		"digest": c.Digest,
		"tx_ref": c.TxRef,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("anchor endpoint returned %s", resp.Status)
	}
	return nil
}

func (h *HTTPClient) Fetch(ctx context.Context, epoch uint64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?epoch=%d", h.url, epoch), nil)
	if err != nil {
		return "", err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anchor endpoint returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var record struct {
		Digest string `json:"digest"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return "", err
	}
	return record.Digest, nil
}
