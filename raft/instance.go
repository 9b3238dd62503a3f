package raft

import (
	"errors"
	"log"
	"math/rand"
	"time"
)

var (
	errInstanceStopped = errors.New("raft: instance stopped")
	errNotLeader       = errors.New("raft: not leader")
)

// RaftInstance is the single-writer owner of one RaftState, grounded on
// the teacher's *Server (raft-server/server.go): one process-wide
// message loop, one election timer, one heartbeat ticker, the same
// persist-then-respond discipline — generalized per spec §5/§9 so that
// the actual decision logic (Dispatch, StartElection, LogShipper) is
// pure and testable on its own, and RaftInstance's job is reduced to
// feeding it events and applying what comes back.
type RaftInstance struct {
	state *RaftState

	store    Store
	transport Transport
	applier  Applier
	logger   *log.Logger
	tunables Tunables

	inflight *InFlightMap
	shippers map[MemberId]*LogShipper

	inbound  chan Message
	commands chan proposal
	stop     chan struct{}
	rng      *rand.Rand

	// CompactionHint, if set, is invoked whenever this instance (as a
	// follower) learns its needed entries have been pruned off the
	// leader. The actual store-copy reaction lives outside this repo's
	// scope (spec §9 open question, SPEC_FULL.md §13); this is the seam
	// a host wires a reaction into.
	CompactionHint func(LogCompactionInfo)
}

type proposal struct {
	payload []byte
	result  chan proposalResult
}

type proposalResult struct {
	index LogIndex
	err   error
}

// NewRaftInstance wires the pure decision logic to its collaborators.
// The instance does not start any timers or goroutines until Run.
func NewRaftInstance(myself MemberId, votingMembers []MemberId, storeId StoreId, store Store, transport Transport, applier Applier, tunables Tunables, logger *log.Logger) *RaftInstance {
	inst := &RaftInstance{
		state:     NewRaftState(myself, votingMembers, storeId),
		store:     store,
		transport: transport,
		applier:   applier,
		logger:    logger,
		tunables:  tunables,
		inflight:  NewInFlightMap(),
		shippers:  make(map[MemberId]*LogShipper),
		inbound:   make(chan Message, 256),
		commands:  make(chan proposal, 64),
		stop:      make(chan struct{}),
		rng:       rand.New(rand.NewSource(int64(myself) + 1)),
	}
	transport.RegisterInbox(inst)
	return inst
}

// Enqueue implements Inbox: Transport hands decoded inbound messages here.
func (r *RaftInstance) Enqueue(msg Message) {
	select {
	case r.inbound <- msg:
	case <-r.stop:
	}
}

// Propose appends payload to the log if this instance is currently
// Leader, and blocks until the append has at least been queued for
// replication (not until it is committed — callers that need committed
// durability should poll CommitIndex/LastApplied, spec §1 leaves that
// contract to the host). Returns an error if this instance is not
// Leader; spec §1 assigns redirecting a misdirected write to the host,
// not to the consensus core.
func (r *RaftInstance) Propose(payload []byte) (LogIndex, error) {
	p := proposal{payload: payload, result: make(chan proposalResult, 1)}
	select {
	case r.commands <- p:
	case <-r.stop:
		return NoIndex, &FatalError{Op: "Propose", Err: errInstanceStopped}
	}
	res := <-p.result
	return res.index, res.err
}

// Restore loads persisted term/vote/log state before Run starts, per
// spec §4.2's crash-recovery requirement that a restarted node never
// forgets a cast vote or an accepted term.
func (r *RaftInstance) Restore() error {
	termRec, err := r.store.LoadTerm()
	if err != nil {
		return err
	}
	r.state.TermStateRef().Update(termRec.Term)

	voteRec, err := r.store.LoadVote()
	if err != nil {
		return err
	}
	if voteRec.Term != NoTerm {
		r.state.VoteStateRef().Update(voteRec.VotedFor, voteRec.Voted, voteRec.Term)
	}

	prevIndex, entries, err := r.store.LoadLog()
	if err != nil {
		return err
	}
	if prevIndex != NoIndex {
		r.state.Log().Prune(prevIndex)
	}
	for _, e := range entries {
		r.state.Log().Append(e)
	}

	return nil
}

// Run is the single message-processing loop (spec §5): exactly one
// goroutine ever touches r.state. It blocks until Stop is called or the
// loop panics on a SafetyViolation, which the caller is expected to let
// propagate (spec §7: "there is no recovery path by design").
func (r *RaftInstance) Run() {
	electionTimer := time.NewTimer(r.randomElectionTimeout())
	defer electionTimer.Stop()
	heartbeat := time.NewTicker(r.tunables.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.stop:
			return

		case msg := <-r.inbound:
			r.handleInbound(msg, electionTimer)

		case p := <-r.commands:
			r.handleProposal(p)

		case <-electionTimer.C:
			r.handleElectionTimeout(electionTimer)

		case <-heartbeat.C:
			r.handleHeartbeatTick()
		}
	}
}

func (r *RaftInstance) Stop() {
	close(r.stop)
}

func (r *RaftInstance) State() ReadableRaftState { return r.state }

func (r *RaftInstance) handleInbound(msg Message, electionTimer *time.Timer) {
	if info, ok := msg.(LogCompactionInfo); ok {
		r.logger.Printf("raft: %s received LogCompactionInfo from %s: prevIndex=%d prevTerm=%d", r.state.Myself(), info.From, info.PrevIndex, info.PrevTerm)
		if r.CompactionHint != nil {
			r.CompactionHint(info)
		}
		return
	}

	wasLeader := r.state.Role() == Leader
	out := Dispatch(r.state, msg)
	r.applyOutcome(out, electionTimer)

	if resp, ok := msg.(AppendEntriesResponse); ok && wasLeader {
		r.feedShipperFromResponse(resp)
	}
}

func (r *RaftInstance) handleProposal(p proposal) {
	if r.state.Role() != Leader {
		p.result <- proposalResult{index: NoIndex, err: errNotLeader}
		return
	}

	entry := RaftLogEntry{Term: r.state.Term(), Payload: p.payload}
	index := r.state.Log().Append(entry)
	r.inflight.Put(index, entry)

	if err := r.store.AppendLogEntries(index, []RaftLogEntry{entry}); err != nil {
		p.result <- proposalResult{index: NoIndex, err: err}
		return
	}

	ctx := r.leaderContext()
	for member, shipper := range r.shippers {
		if d := shipper.OnNewEntries(index-1, entry.Term, []RaftLogEntry{entry}, ctx); d != nil {
			r.send(member, *d)
		}
	}

	p.result <- proposalResult{index: index, err: nil}
}

func (r *RaftInstance) handleElectionTimeout(timer *time.Timer) {
	out, ok := StartElection(r.state)
	if ok {
		r.applyOutcome(out, timer)
	} else {
		r.logger.Printf("raft: election timeout fired but %s is not a voting member, not starting an election", r.state.Myself())
	}
	timer.Reset(r.randomElectionTimeout())
}

func (r *RaftInstance) handleHeartbeatTick() {
	if r.state.Role() != Leader {
		return
	}
	ctx := r.leaderContext()
	for member, shipper := range r.shippers {
		d := shipper.OnTimeout(ctx)
		r.send(member, d)
	}
}

// applyOutcome is the single place persistent state is written and
// outgoing messages are released, in that order (spec §5's "persist
// before responding" guarantee, spec §9's design note that Outcomes are
// applied atomically from the caller's point of view).
func (r *RaftInstance) applyOutcome(out Outcome, electionTimer *time.Timer) {
	if out.TermChanged {
		if r.state.TermStateRef().Update(out.NextTerm) {
			if err := r.store.SaveTerm(TermRecord{Term: out.NextTerm}); err != nil {
				r.logger.Printf("raft: failed to persist term: %v", err)
			}
		}
	}

	if out.VoteUpdated {
		r.state.VoteStateRef().Update(out.NextVotedFor, out.Voted, r.state.Term())
		if err := r.store.SaveVote(VoteRecord{Term: r.state.Term(), VotedFor: out.NextVotedFor, Voted: out.Voted}); err != nil {
			r.logger.Printf("raft: failed to persist vote: %v", err)
		}
	}

	for _, op := range out.LogOps {
		r.applyLogOp(op)
	}

	previousRole := r.state.Role()
	if out.NextRole != previousRole {
		r.transitionRole(previousRole, out.NextRole)
	}

	if out.NextRole == Candidate && out.TermChanged {
		r.state.ResetCandidateVotes()
	}
	for _, member := range out.GrantedVotesFrom {
		r.state.RecordGrantedVote(member)
	}
	for _, fu := range out.FollowerUpdates {
		r.state.SetFollowerProgress(fu.Member, fu.Progress)
	}

	if out.ElectionTimerReset {
		electionTimer.Reset(r.randomElectionTimeout())
	}

	for _, info := range out.CompactionHints {
		if r.CompactionHint != nil {
			r.CompactionHint(info)
		}
	}

	for _, d := range out.OutgoingMessages {
		r.send(d.To, d)
	}
}

func (r *RaftInstance) applyLogOp(op LogOp) {
	switch op.Kind {
	case LogOpAppend:
		index := r.state.Log().Append(op.AppendEntry)
		r.inflight.Put(index, op.AppendEntry)
		if err := r.store.AppendLogEntries(index, []RaftLogEntry{op.AppendEntry}); err != nil {
			r.logger.Printf("raft: failed to persist log entry %d: %v", index, err)
		}
	case LogOpTruncate:
		r.state.Log().Truncate(op.TruncateFrom)
		if err := r.store.TruncateLogFrom(op.TruncateFrom); err != nil {
			r.logger.Printf("raft: failed to persist truncate from %d: %v", op.TruncateFrom, err)
		}
	case LogOpCommitTo:
		r.state.Log().SetCommitHint(op.CommitIndex)
		r.state.SetCommitIndex(op.CommitIndex)
		r.applyCommitted()
	}
}

// applyCommitted drives committed entries into the Applier in strict
// order, per spec §4.1's application-order rule.
func (r *RaftInstance) applyCommitted() {
	if r.applier == nil {
		return
	}
	for idx := r.state.LastApplied() + 1; idx <= r.state.CommitIndex(); idx++ {
		entry, ok := r.inflight.Get(idx)
		if !ok {
			entry, ok = r.state.Log().ReadEntry(idx)
		}
		if !ok {
			r.logger.Printf("raft: missing entry %d at apply time", idx)
			return
		}
		if err := r.applier.Apply(idx, entry); err != nil {
			r.logger.Printf("raft: applier failed at index %d: %v", idx, err)
			return
		}
		r.state.SetLastApplied(idx)
	}
	r.inflight.TrimBelow(r.state.LastApplied())
}

func (r *RaftInstance) transitionRole(from, to Role) {
	r.logger.Printf("raft: %s role transition %s -> %s at term %d", r.state.Myself(), from, to, r.state.Term())

	if from == Leader && to != Leader {
		for _, s := range r.shippers {
			s.Stop()
		}
		r.shippers = make(map[MemberId]*LogShipper)
	}

	r.state.SetRole(to)

	if to == Leader {
		r.state.InitLeaderState()
		ctx := r.leaderContext()
		for member := range r.state.VotingMembers() {
			if member == r.state.Myself() {
				continue
			}
			shipper := NewLogShipper(member, r.tunables.CatchupBatchSize, r.tunables.MaxShippingLag, r.logger)
			r.shippers[member] = shipper
			d := shipper.Start(ctx)
			r.send(member, d)
		}
	}
}

// feedShipperFromResponse translates an AppendEntriesResponse into the
// matching LogShipper event, per spec §4.9's event vocabulary.
func (r *RaftInstance) feedShipperFromResponse(resp AppendEntriesResponse) {
	shipper, ok := r.shippers[resp.From]
	if !ok {
		return
	}
	ctx := r.leaderContext()

	if resp.Success {
		d, info := shipper.OnMatch(resp.MatchIndex, ctx)
		if d != nil {
			r.send(resp.From, *d)
		}
		if info != nil {
			r.send(resp.From, Directed{To: resp.From, Message: *info})
		}
		return
	}

	fp, known := r.state.FollowerProgressOf(resp.From)
	lastAttempted := NoIndex
	if known {
		lastAttempted = fp.NextIndex - 1
	}
	d, info := shipper.OnMismatch(lastAttempted, ctx)
	if d != nil {
		r.send(resp.From, *d)
	}
	if info != nil {
		r.send(resp.From, Directed{To: resp.From, Message: *info})
	}
}

func (r *RaftInstance) leaderContext() LeaderContext {
	return LeaderContext{
		Myself:      r.state.Myself(),
		Term:        r.state.Term(),
		Log:         r.state.Log(),
		CommitIndex: r.state.CommitIndex(),
	}
}

func (r *RaftInstance) send(to MemberId, d Directed) {
	if err := r.transport.Send(to, d.Message); err != nil {
		r.logger.Printf("raft: send to %s failed: %v", to, err)
	}
}

func (r *RaftInstance) randomElectionTimeout() time.Duration {
	lo := r.tunables.ElectionTimeoutMin
	hi := r.tunables.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.rng.Int63n(int64(hi-lo)))
}
