package epochs

import (
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"rustchain-node/ledger"
	"rustchain-node/nodeconfig"
	"rustchain-node/settlement"
	"rustchain-node/types"
)

const genesis = 1764706927

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testParams() nodeconfig.ChainParams {
	return nodeconfig.ChainParams{
		ChainId:          "rustchain-test",
		GenesisTimestamp: genesis,
		SlotSeconds:      600,
		SlotsPerEpoch:    144,
		EpochPot:         sdkmath.NewInt(1_500_000),
		EmissionCap:      sdkmath.NewInt(1_500_000),
	}
}

func testScheduler(t *testing.T, queueLateVotes bool) (*Scheduler, *fakeClock, *ledger.Ledger) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(genesis, 0)}
	ldg, err := ledger.NewLedger(nil)
	require.NoError(t, err)
	params := testParams()
	engine := settlement.NewEngine(params.EpochPot, params.EmissionCap)
	s := NewScheduler(params, engine, ldg, queueLateVotes, clock)
	s.Start()
	t.Cleanup(s.Stop)
	return s, clock, ldg
}

func vote(fp, wallet string) types.Vote {
	return types.Vote{
		FingerprintHash: fp,
		Wallet:          wallet,
		Multiplier:      sdkmath.LegacyOneDec(),
	}
}

func TestSlotAndEpochMath(t *testing.T) {
	s, clock, _ := testScheduler(t, true)

	snap, err := s.State()
	require.NoError(t, err)
	require.Equal(t, uint64(0), snap.Epoch)
	require.Equal(t, int64(0), snap.Slot)
	require.Equal(t, int64(genesis+144*600), snap.NextEpochAt)

	clock.advance(601 * time.Second)
	snap, err = s.State()
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Slot)
	require.Equal(t, uint64(0), snap.Epoch)
}

func TestVoteAdmissionAndDuplicates(t *testing.T) {
	s, _, _ := testScheduler(t, true)

	out := s.SubmitVote(vote("fp1", "alice"))
	require.NoError(t, out.Err)
	require.Equal(t, uint64(0), out.Epoch)

	out = s.SubmitVote(vote("fp1", "alice"))
	require.ErrorIs(t, out.Err, types.ErrDuplicateVote)

	out = s.SubmitVote(vote("fp2", "bob"))
	require.NoError(t, out.Err)

	snap, err := s.State()
	require.NoError(t, err)
	require.Equal(t, 2, snap.Votes)
}

func TestEpochBoundarySettlesAndCredits(t *testing.T) {
	s, clock, ldg := testScheduler(t, true)

	require.NoError(t, s.SubmitVote(vote("fp1", "alice")).Err)
	require.NoError(t, s.SubmitVote(vote("fp2", "bob")).Err)

	clock.advance(144 * 600 * time.Second)
	snap, err := s.State()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Epoch)
	require.Equal(t, PhaseOpen, snap.Phase)
	require.Equal(t, 0, snap.Votes)

	// 1.5 RTC split two ways at multiplier 1.0.
	require.Equal(t, sdkmath.NewInt(750_000), ldg.Balance("alice"))
	require.Equal(t, sdkmath.NewInt(750_000), ldg.Balance("bob"))

	res, ok := ldg.SettledEpoch(0)
	require.True(t, ok)
	require.Equal(t, 2, res.Voters)

	// A device that voted in epoch 0 may vote again in epoch 1.
	require.NoError(t, s.SubmitVote(vote("fp1", "alice")).Err)
}

func TestForceSettleClosesEpoch(t *testing.T) {
	s, _, ldg := testScheduler(t, false)

	require.NoError(t, s.SubmitVote(vote("fp1", "alice")).Err)

	res, err := s.ForceSettle()
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.Epoch)
	require.Equal(t, 1, res.Voters)
	require.Equal(t, sdkmath.NewInt(1_500_000), ldg.Balance("alice"))

	// Settling twice is refused.
	_, err = s.ForceSettle()
	require.ErrorIs(t, err, types.ErrEpochSettled)

	// Late vote with queueing disabled: rejected outright.
	out := s.SubmitVote(vote("fp2", "bob"))
	require.ErrorIs(t, out.Err, types.ErrEpochClosed)
	require.False(t, out.Queued)
}

func TestLateVotesQueueForNextEpoch(t *testing.T) {
	s, clock, ldg := testScheduler(t, true)

	_, err := s.ForceSettle()
	require.NoError(t, err)

	out := s.SubmitVote(vote("fp1", "alice"))
	require.ErrorIs(t, out.Err, types.ErrEpochClosed)
	require.True(t, out.Queued)

	snap, err := s.State()
	require.NoError(t, err)
	require.Equal(t, 1, snap.QueuedVotes)

	clock.advance(144 * 600 * time.Second)
	snap, err = s.State()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Epoch)
	require.Equal(t, 1, snap.Votes)
	require.Equal(t, 0, snap.QueuedVotes)

	// The queued vote settles with epoch 1.
	clock.advance(144 * 600 * time.Second)
	_, err = s.State()
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_500_000), ldg.Balance("alice"))
}

func TestQueueCommandRequiresBufferedResponse(t *testing.T) {
	s, _, _ := testScheduler(t, true)
	err := s.QueueCommand(StateCommand{Response: make(chan Snapshot)})
	require.Error(t, err)
}

func TestBusySchedulerReturnsRetryableError(t *testing.T) {
	clock := &fakeClock{now: time.Unix(genesis, 0)}
	ldg, err := ledger.NewLedger(nil)
	require.NoError(t, err)
	params := testParams()
	// Never started: the loop drains nothing, so callers must time out
	// instead of blocking forever.
	s := NewScheduler(params, settlement.NewEngine(params.EpochPot, params.EmissionCap), ldg, true, clock)
	s.commandTimeout = 20 * time.Millisecond

	out := s.SubmitVote(vote("fp1", "alice"))
	require.ErrorIs(t, out.Err, types.ErrSchedulerBusy)

	_, err = s.State()
	require.ErrorIs(t, err, types.ErrSchedulerBusy)

	// Fill the command buffer; the next enqueue gives up too.
	for len(s.commands) < cap(s.commands) {
		require.NoError(t, s.QueueCommand(StateCommand{Response: make(chan Snapshot, 1)}))
	}
	err = s.QueueCommand(StateCommand{Response: make(chan Snapshot, 1)})
	require.ErrorIs(t, err, types.ErrSchedulerBusy)
}

func TestEmptyEpochSettlesToNothing(t *testing.T) {
	s, clock, ldg := testScheduler(t, true)

	clock.advance(144 * 600 * time.Second)
	snap, err := s.State()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Epoch)

	res, ok := ldg.SettledEpoch(0)
	require.True(t, ok)
	require.Equal(t, 0, res.Voters)
	require.True(t, ldg.TotalSupply().IsZero())
}
