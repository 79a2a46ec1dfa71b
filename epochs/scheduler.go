// Package epochs runs the chain's clock: it derives the current slot and epoch
// from wall time, admits one vote per device per epoch, and settles each epoch
// exactly once at its boundary. All of it happens on a single command loop, so
// vote admission and settlement can never interleave.
package epochs

import (
	"errors"
	"time"

	"rustchain-node/ledger"
	"rustchain-node/logging"
	"rustchain-node/nodeconfig"
	"rustchain-node/settlement"
	"rustchain-node/types"
)

// Clock abstracts wall time so tests can drive the epoch boundary directly.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	PhaseOpen    = "open"
	PhaseSettled = "settled"
)

// Snapshot is a point-in-time view of the scheduler for the API.
type Snapshot struct {
	Epoch        uint64
	Slot         int64
	Phase        string
	Votes        int
	QueuedVotes  int
	NextEpochAt  int64
	LastSettled  uint64
	HasSettled   bool
}

// Command is anything the loop can process. Responses travel over per-command
// channels that must be buffered, otherwise a slow caller would stall the loop.
type Command interface {
	ResponseCapacity() int
}

// VoteOutcome reports where a submitted vote ended up.
type VoteOutcome struct {
	Epoch  uint64
	Queued bool
	Err    error
}

type SubmitVoteCommand struct {
	Vote     types.Vote
	Response chan VoteOutcome
}

func (c SubmitVoteCommand) ResponseCapacity() int { return cap(c.Response) }

type StateCommand struct {
	Response chan Snapshot
}

func (c StateCommand) ResponseCapacity() int { return cap(c.Response) }

// SettleOutcome carries the distribution of a forced settlement.
type SettleOutcome struct {
	Result settlement.Result
	Err    error
}

type SettleCommand struct {
	Response chan SettleOutcome
}

func (c SettleCommand) ResponseCapacity() int { return cap(c.Response) }

type Scheduler struct {
	params         nodeconfig.ChainParams
	engine         *settlement.Engine
	ledger         *ledger.Ledger
	queueLateVotes bool
	clock          Clock

	commands chan Command
	quit     chan struct{}
	// longest a caller waits to enqueue a command or collect its response
	// before giving up with a retryable error
	commandTimeout time.Duration

	// owned by the loop goroutine, never touched from outside
	current     uint64
	phase       string
	votes       map[string]types.Vote
	queued      []types.Vote
	lastSettled uint64
	hasSettled  bool
}

func NewScheduler(params nodeconfig.ChainParams, engine *settlement.Engine,
	ldg *ledger.Ledger, queueLateVotes bool, clock Clock) *Scheduler {

	if clock == nil {
		clock = realClock{}
	}
	s := &Scheduler{
		params:         params,
		engine:         engine,
		ledger:         ldg,
		queueLateVotes: queueLateVotes,
		clock:          clock,
		commands:       make(chan Command, 100),
		quit:           make(chan struct{}),
		commandTimeout: 5 * time.Second,
		phase:          PhaseOpen,
		votes:          map[string]types.Vote{},
	}
	s.current = s.epochAt(clock.Now())
	if last, ok := ldg.LastSettledEpoch(); ok {
		s.lastSettled, s.hasSettled = last, true
	}
	return s
}

// SlotAt returns the slot index at t, clamped to 0 before genesis.
func (s *Scheduler) SlotAt(t time.Time) int64 {
	elapsed := t.Unix() - s.params.GenesisTimestamp
	if elapsed < 0 {
		return 0
	}
	return elapsed / s.params.SlotSeconds
}

func (s *Scheduler) epochAt(t time.Time) uint64 {
	return uint64(s.SlotAt(t) / s.params.SlotsPerEpoch)
}

func (s *Scheduler) epochStartUnix(epoch uint64) int64 {
	return s.params.GenesisTimestamp + int64(epoch)*s.params.SlotsPerEpoch*s.params.SlotSeconds
}

// Start launches the command loop. The ticker only wakes the loop up; the
// boundary decision is always made against the clock, so a missed tick can
// delay a settlement but never duplicate one.
func (s *Scheduler) Start() {
	go s.loop()
}

func (s *Scheduler) Stop() {
	close(s.quit)
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(time.Duration(s.params.SlotSeconds) * time.Second / 10)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.rollover()
		case cmd := <-s.commands:
			s.rollover()
			s.handle(cmd)
		}
	}
}

// QueueCommand submits a command to the loop. Commands with unbuffered
// response channels are rejected up front. When the command buffer stays full
// past the command timeout the caller gets ErrSchedulerBusy and should retry
// rather than pile up behind a wedged loop.
func (s *Scheduler) QueueCommand(cmd Command) error {
	if cmd.ResponseCapacity() == 0 {
		return errors.New("command response channel must be buffered")
	}
	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()
	select {
	case s.commands <- cmd:
		return nil
	case <-timer.C:
		return types.ErrSchedulerBusy.Wrapf("command queue full for %s", s.commandTimeout)
	case <-s.quit:
		return errors.New("scheduler stopped")
	}
}

func (s *Scheduler) handle(cmd Command) {
	switch c := cmd.(type) {
	case SubmitVoteCommand:
		c.Response <- s.submitVote(c.Vote)
	case StateCommand:
		c.Response <- s.snapshot()
	case SettleCommand:
		c.Response <- s.forceSettle()
	default:
		logging.Error("unknown scheduler command", types.Epochs, "command", cmd)
	}
}

// rollover settles every epoch the clock has moved past and opens the current
// one, seeding it with any queued late votes.
func (s *Scheduler) rollover() {
	now := s.epochAt(s.clock.Now())
	if now == s.current {
		return
	}
	if s.phase != PhaseSettled {
		s.settleCurrent()
	}
	logging.Info("epoch advanced", types.Epochs, "from", s.current, "to", now)
	s.current = now
	s.phase = PhaseOpen
	s.votes = map[string]types.Vote{}
	for _, v := range s.queued {
		if _, dup := s.votes[v.FingerprintHash]; dup {
			continue
		}
		v.Epoch = s.current
		s.votes[v.FingerprintHash] = v
	}
	if n := len(s.queued); n > 0 {
		logging.Info("queued late votes admitted", types.Epochs, "epoch", s.current, "votes", n)
	}
	s.queued = nil
}

func (s *Scheduler) submitVote(v types.Vote) VoteOutcome {
	if s.phase == PhaseSettled {
		err := types.ErrEpochClosed.Wrapf("epoch %d already settled", s.current)
		if s.queueLateVotes {
			for _, q := range s.queued {
				if q.FingerprintHash == v.FingerprintHash {
					return VoteOutcome{Epoch: s.current, Queued: true, Err: err}
				}
			}
			s.queued = append(s.queued, v)
			return VoteOutcome{Epoch: s.current, Queued: true, Err: err}
		}
		return VoteOutcome{Epoch: s.current, Err: err}
	}
	if _, dup := s.votes[v.FingerprintHash]; dup {
		return VoteOutcome{Epoch: s.current,
			Err: types.ErrDuplicateVote.Wrapf("device %s already voted in epoch %d", v.FingerprintHash, s.current)}
	}
	v.Epoch = s.current
	s.votes[v.FingerprintHash] = v
	return VoteOutcome{Epoch: s.current}
}

func (s *Scheduler) forceSettle() SettleOutcome {
	if s.phase == PhaseSettled {
		return SettleOutcome{Err: types.ErrEpochSettled.Wrapf("epoch %d", s.current)}
	}
	res := s.settleCurrent()
	return SettleOutcome{Result: res}
}

func (s *Scheduler) settleCurrent() settlement.Result {
	votes := make([]types.Vote, 0, len(s.votes))
	for _, v := range s.votes {
		votes = append(votes, v)
	}
	res := s.engine.Settle(s.current, votes)
	if err := s.ledger.ApplySettlement(res); err != nil {
		// Already credited on a previous run; keep the recorded outcome.
		logging.Warn("settlement skipped", types.Epochs, "epoch", s.current, "error", err)
		if prior, ok := s.ledger.SettledEpoch(s.current); ok {
			res = prior
		}
	} else {
		logging.Info("epoch settled", types.Epochs, "epoch", s.current,
			"voters", res.Voters, "total_paid", res.TotalPaid.String(),
			"cap_applied", res.CapApplied)
	}
	s.phase = PhaseSettled
	s.lastSettled = s.current
	s.hasSettled = true
	return res
}

func (s *Scheduler) snapshot() Snapshot {
	return Snapshot{
		Epoch:       s.current,
		Slot:        s.SlotAt(s.clock.Now()),
		Phase:       s.phase,
		Votes:       len(s.votes),
		QueuedVotes: len(s.queued),
		NextEpochAt: s.epochStartUnix(s.current + 1),
		LastSettled: s.lastSettled,
		HasSettled:  s.hasSettled,
	}
}

// SubmitVote queues a vote command and waits for the outcome.
func (s *Scheduler) SubmitVote(v types.Vote) VoteOutcome {
	response := make(chan VoteOutcome, 1)
	if err := s.QueueCommand(SubmitVoteCommand{Vote: v, Response: response}); err != nil {
		return VoteOutcome{Err: err}
	}
	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()
	select {
	case out := <-response:
		return out
	case <-timer.C:
		return VoteOutcome{Err: types.ErrSchedulerBusy.Wrap("vote response timed out")}
	}
}

// State queues a state command and waits for the snapshot.
func (s *Scheduler) State() (Snapshot, error) {
	response := make(chan Snapshot, 1)
	if err := s.QueueCommand(StateCommand{Response: response}); err != nil {
		return Snapshot{}, err
	}
	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()
	select {
	case snap := <-response:
		return snap, nil
	case <-timer.C:
		return Snapshot{}, types.ErrSchedulerBusy.Wrap("state response timed out")
	}
}

// ForceSettle settles the current epoch immediately, ahead of its boundary.
func (s *Scheduler) ForceSettle() (settlement.Result, error) {
	response := make(chan SettleOutcome, 1)
	if err := s.QueueCommand(SettleCommand{Response: response}); err != nil {
		return settlement.Result{}, err
	}
	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()
	select {
	case out := <-response:
		return out.Result, out.Err
	case <-timer.C:
		return settlement.Result{}, types.ErrSchedulerBusy.Wrap("settle response timed out")
	}
}
