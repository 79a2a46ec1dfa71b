package anchor

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"rustchain-node/ledger"
	"rustchain-node/nodeconfig"
	"rustchain-node/settlement"
	"rustchain-node/types"
)

type fakeClient struct {
	mu           sync.Mutex
	failuresLeft int
	submitted    []Commitment
	fetchDigest  map[uint64]string
}

func (f *fakeClient) Submit(_ context.Context, c Commitment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("beacon unavailable")
	}
	f.submitted = append(f.submitted, c)
	if f.fetchDigest == nil {
		f.fetchDigest = map[uint64]string{}
	}
	f.fetchDigest[c.Epoch] = c.Digest
	return nil
}

func (f *fakeClient) Fetch(_ context.Context, epoch uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.fetchDigest[epoch]
	if !ok {
		return "", errors.New("no record")
	}
	return d, nil
}

func settledLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.NewLedger(nil)
	require.NoError(t, err)
	require.NoError(t, l.ApplySettlement(settlement.Result{
		Epoch:     4,
		TotalPaid: sdkmath.NewInt(1_500_000),
		Payouts:   []settlement.Payout{{Wallet: "alice", Amount: sdkmath.NewInt(1_500_000)}},
	}))
	return l
}

func TestDigestDeterministicAndSensitive(t *testing.T) {
	entries := []ledger.BalanceEntry{
		{Wallet: "alice", Amount: sdkmath.NewInt(100)},
		{Wallet: "bob", Amount: sdkmath.NewInt(200)},
	}
	require.Equal(t, Digest(entries, 4), Digest(entries, 4))
	require.NotEqual(t, Digest(entries, 4), Digest(entries, 5))

	moved := []ledger.BalanceEntry{
		{Wallet: "alice", Amount: sdkmath.NewInt(99)},
		{Wallet: "bob", Amount: sdkmath.NewInt(201)},
	}
	require.NotEqual(t, Digest(entries, 4), Digest(moved, 4))
	require.Len(t, Digest(entries, 4), 64)
}

func TestCommitAnchorsLatestSettledEpoch(t *testing.T) {
	client := &fakeClient{}
	c := NewCommitter(nodeconfig.AnchorConfig{Enabled: true, MaxAttempts: 3}, settledLedger(t), client)

	c.commitOnce()

	status := c.Status()
	require.Len(t, status, 1)
	require.Equal(t, uint64(4), status[0].Epoch)
	require.True(t, status[0].Anchored)
	require.Equal(t, 1, status[0].Attempts)
	require.NotEmpty(t, status[0].TxRef)

	// Already anchored: the next pass is a no-op.
	c.commitOnce()
	require.Len(t, c.Status(), 1)
}

func TestCommitRetriesOnFailure(t *testing.T) {
	client := &fakeClient{failuresLeft: 1}
	c := NewCommitter(nodeconfig.AnchorConfig{Enabled: true, MaxAttempts: 3}, settledLedger(t), client)

	c.commitOnce()

	status := c.Status()
	require.Len(t, status, 1)
	require.True(t, status[0].Anchored)
	require.Equal(t, 2, status[0].Attempts)
}

func TestCommitGivesUpAfterMaxAttempts(t *testing.T) {
	client := &fakeClient{failuresLeft: 10}
	c := NewCommitter(nodeconfig.AnchorConfig{Enabled: true, MaxAttempts: 2}, settledLedger(t), client)

	c.commitOnce()

	status := c.Status()
	require.Len(t, status, 1)
	require.False(t, status[0].Anchored)
	require.Equal(t, 2, status[0].Attempts)
}

func TestCommitSkipsWhenNothingSettled(t *testing.T) {
	l, err := ledger.NewLedger(nil)
	require.NoError(t, err)
	c := NewCommitter(nodeconfig.AnchorConfig{Enabled: true, MaxAttempts: 1}, l, &fakeClient{})

	c.commitOnce()
	require.Empty(t, c.Status())
}

func TestVerifyAgainstRemote(t *testing.T) {
	client := &fakeClient{}
	c := NewCommitter(nodeconfig.AnchorConfig{Enabled: true, MaxAttempts: 1}, settledLedger(t), client)
	c.commitOnce()

	commitment, err := c.Verify(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, uint64(4), commitment.Epoch)

	// Unanchored epoch.
	_, err = c.Verify(context.Background(), 99)
	require.ErrorIs(t, err, types.ErrAnchorUnavailable)

	// Tampered remote record.
	client.mu.Lock()
	client.fetchDigest[4] = "deadbeef"
	client.mu.Unlock()
	_, err = c.Verify(context.Background(), 4)
	require.ErrorIs(t, err, types.ErrAnchorMismatch)
}
