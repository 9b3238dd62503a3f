package raft

import "log"

// ShipperState is one of the three per-follower replication modes from
// spec §4.9.
type ShipperState int

const (
	ShipperMismatch ShipperState = iota
	ShipperPipeline
	ShipperCatchup
)

func (s ShipperState) String() string {
	switch s {
	case ShipperMismatch:
		return "MISMATCH"
	case ShipperPipeline:
		return "PIPELINE"
	case ShipperCatchup:
		return "CATCHUP"
	default:
		return "UNKNOWN"
	}
}

// LeaderContext is the slice of leader state a LogShipper needs to build
// outgoing messages. It is a read-only snapshot handed in by RaftInstance
// on every event, never retained across calls.
type LeaderContext struct {
	Myself      MemberId
	Term        Term
	Log         *RaftLog
	CommitIndex LogIndex
}

// LogShipper tracks replication progress to exactly one follower, per
// spec §4.9. Unlike RoleHandlers it is not a pure function: it is a small
// stateful machine fed events from RaftInstance's single queue (spec §5),
// so its own state (mismatch probe position, current mode) legitimately
// lives as mutable fields rather than an immutable Outcome. It still
// returns what to send rather than sending it itself, keeping transport
// hand-off in the instance's hands.
type LogShipper struct {
	follower MemberId

	catchupBatchSize      int
	maxAllowedShippingLag int

	state ShipperState

	// mismatchProbe is the prevLogIndex currently being probed while in
	// MISMATCH.
	mismatchProbe LogIndex

	// lastSentIndex is the index new entries must chain onto, used by
	// onNewEntries to decide whether incoming new entries chain directly
	// onto what we last sent (spec §4.9 PIPELINE row) or must be dropped
	// because we're behind. Start, OnMismatch and a partial OnMatch set it
	// to the prevLogIndex they sent; a full OnMatch sets it to the append
	// index, and OnNewEntries to the last index it shipped.
	lastSentIndex LogIndex

	stopped bool

	logger *log.Logger
}

// NewLogShipper returns a shipper with the given tunables (spec §6), not
// yet started. logger is the same *log.Logger RaftInstance logs through,
// threaded in so a LogCompactionInfo emission shows up alongside the
// instance's own role-transition and election log lines rather than
// going unreported (SPEC_FULL.md §10.2).
func NewLogShipper(follower MemberId, catchupBatchSize, maxAllowedShippingLag int, logger *log.Logger) *LogShipper {
	return &LogShipper{
		follower:              follower,
		catchupBatchSize:      catchupBatchSize,
		maxAllowedShippingLag: maxAllowedShippingLag,
		state:                 ShipperPipeline,
		mismatchProbe:         NoIndex,
		lastSentIndex:         NoIndex,
		logger:                logger,
	}
}

func (s *LogShipper) State() ShipperState { return s.state }

// Start implements spec §4.9's "start" row: send the single last entry,
// prevIndex = appendIndex-1. If the log is empty, send an empty heartbeat
// instead (there is no "last entry" to send).
func (s *LogShipper) Start(ctx LeaderContext) Directed {
	s.state = ShipperPipeline
	appendIndex := ctx.Log.AppendIndex()

	if appendIndex == NoIndex {
		s.lastSentIndex = NoIndex
		return s.heartbeat(ctx)
	}

	prevIndex := appendIndex - 1
	prevTerm := ctx.Log.ReadEntryTerm(prevIndex)
	entry, ok := ctx.Log.ReadEntry(appendIndex)
	if !ok {
		return s.heartbeat(ctx)
	}

	s.lastSentIndex = prevIndex
	return s.appendEntries(ctx, prevIndex, prevTerm, []RaftLogEntry{entry})
}

// Stop marks the shipper inactive; RaftInstance drops it from its
// per-follower map on Leader exit (spec §5 cancellation rule).
func (s *LogShipper) Stop() { s.stopped = true }

// OnMatch implements spec §4.9's onMatch row: a full match (m ==
// appendIndex) returns to/stays in PIPELINE with nothing to send; a
// partial match (m < appendIndex) enters CATCHUP and sends up to
// catchupBatchSize entries starting at m+1.
func (s *LogShipper) OnMatch(matchIndex LogIndex, ctx LeaderContext) (*Directed, *LogCompactionInfo) {
	appendIndex := ctx.Log.AppendIndex()

	if matchIndex >= appendIndex {
		s.state = ShipperPipeline
		s.lastSentIndex = appendIndex
		return nil, nil
	}

	s.state = ShipperCatchup

	batchEnd := matchIndex + LogIndex(s.catchupBatchSize)
	if batchEnd > appendIndex {
		batchEnd = appendIndex
	}

	entries, ok := ctx.Log.EntriesFrom(matchIndex + 1)
	if !ok {
		// The pruning race: by the time we went to read, the entries we
		// expected are gone. Emit LogCompactionInfo instead of a broken
		// AppendEntries (spec §4.9 "pruning race" paragraph and §8
		// scenario 7).
		s.state = ShipperMismatch
		info := s.compactionInfo(ctx)
		s.logCompaction("onMatch pruning race", matchIndex, info)
		return nil, &info
	}
	if LogIndex(len(entries)) > batchEnd-matchIndex {
		entries = entries[:batchEnd-matchIndex]
	}

	prevTerm := ctx.Log.ReadEntryTerm(matchIndex)
	if matchIndex != NoIndex && prevTerm == NoTerm {
		s.state = ShipperMismatch
		info := s.compactionInfo(ctx)
		s.logCompaction("onMatch prevTerm pruned", matchIndex, info)
		return nil, &info
	}

	s.lastSentIndex = matchIndex
	d := s.appendEntries(ctx, matchIndex, prevTerm, entries)
	return &d, nil
}

// OnMismatch implements spec §4.9's onMismatch rows: back-track one
// position below lastAttemptedIndex on the first mismatch after
// PIPELINE/CATCHUP, or one position below the current probe on a
// repeated mismatch, floored at log.PrevIndex()+1. Crossing the floor
// emits a LogCompactionInfo and falls back to shipping the newest
// available entry instead of failing outright.
func (s *LogShipper) OnMismatch(lastAttemptedIndex LogIndex, ctx LeaderContext) (*Directed, *LogCompactionInfo) {
	first := s.state != ShipperMismatch
	s.state = ShipperMismatch

	var probe LogIndex
	if first {
		if s.lastSentIndex != NoIndex {
			probe = s.lastSentIndex - 1
		} else {
			probe = lastAttemptedIndex - 1
		}
	} else {
		probe = s.mismatchProbe - 1
	}
	// NoIndex ("before the log") is the absolute floor: there is nothing
	// to probe before it, so repeated mismatches at this point keep
	// re-probing the same position instead of walking further negative.
	if probe < NoIndex {
		probe = NoIndex
	}

	// A separate, higher floor applies once entries have actually been
	// pruned: dipping to or below log.PrevIndex() means the needed entry
	// is gone, not just unreached yet.
	if prunedFloor := ctx.Log.PrevIndex(); prunedFloor > NoIndex && probe <= prunedFloor {
		info := s.compactionInfo(ctx)
		s.logCompaction("onMismatch crossed pruned floor", probe, info)
		// Keep shipping the most recently available entry rather than
		// stalling entirely; this mirrors Start's shape.
		d := s.Start(ctx)
		return &d, &info
	}

	s.mismatchProbe = probe
	prevTerm := ctx.Log.ReadEntryTerm(probe)
	if probe != NoIndex && prevTerm == NoTerm {
		info := s.compactionInfo(ctx)
		s.logCompaction("onMismatch probe pruned", probe, info)
		return nil, &info
	}

	var entries []RaftLogEntry
	if entry, ok := ctx.Log.ReadEntry(probe + 1); ok {
		entries = []RaftLogEntry{entry}
	}

	s.lastSentIndex = probe
	d := s.appendEntries(ctx, probe, prevTerm, entries)
	return &d, nil
}

// OnNewEntries implements spec §4.9's onNewEntries rows: in PIPELINE,
// ship the entries only if they chain directly onto the last thing we
// sent (prev == lastSentIndex); otherwise drop, we're behind and will
// catch up on the next onMatch. In MISMATCH, always drop — no new
// entries are shipped before a match is reestablished.
func (s *LogShipper) OnNewEntries(prevIndex LogIndex, prevTerm Term, entries []RaftLogEntry, ctx LeaderContext) *Directed {
	if s.state != ShipperPipeline {
		return nil
	}
	if prevIndex != s.lastSentIndex {
		return nil
	}

	appendIndex := ctx.Log.AppendIndex()
	if appendIndex-s.lastSentIndex > LogIndex(s.maxAllowedShippingLag) {
		// Back-pressure: stop shipping new entries until the follower
		// catches up; timeouts still fire heartbeats (spec §4.9
		// "Back-pressure").
		return nil
	}

	lastIndex := prevIndex
	if len(entries) > 0 {
		lastIndex = prevIndex + LogIndex(len(entries))
	}
	s.lastSentIndex = lastIndex
	d := s.appendEntries(ctx, prevIndex, prevTerm, entries)
	return &d
}

// OnTimeout implements spec §4.9's onTimeout rows: a heartbeat in
// PIPELINE, a resend of the current probe in MISMATCH.
func (s *LogShipper) OnTimeout(ctx LeaderContext) Directed {
	if s.state == ShipperMismatch {
		prevTerm := ctx.Log.ReadEntryTerm(s.mismatchProbe)
		var entries []RaftLogEntry
		if entry, ok := ctx.Log.ReadEntry(s.mismatchProbe + 1); ok {
			entries = []RaftLogEntry{entry}
		}
		return s.appendEntries(ctx, s.mismatchProbe, prevTerm, entries)
	}
	return s.heartbeat(ctx)
}

func (s *LogShipper) heartbeat(ctx LeaderContext) Directed {
	prevIndex := ctx.Log.AppendIndex()
	prevTerm := ctx.Log.ReadEntryTerm(prevIndex)
	return s.appendEntries(ctx, prevIndex, prevTerm, nil)
}

func (s *LogShipper) appendEntries(ctx LeaderContext, prevIndex LogIndex, prevTerm Term, entries []RaftLogEntry) Directed {
	return Directed{
		To: s.follower,
		Message: AppendEntriesRequest{
			From:         ctx.Myself,
			Term:         ctx.Term,
			PrevLogIndex: prevIndex,
			PrevLogTerm:  prevTerm,
			Entries:      entries,
			LeaderCommit: ctx.CommitIndex,
		},
	}
}

func (s *LogShipper) logCompaction(reason string, at LogIndex, info LogCompactionInfo) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("raft: shipper to %s emitting LogCompactionInfo (%s at index %d): prevIndex=%d prevTerm=%d",
		s.follower, reason, at, info.PrevIndex, info.PrevTerm)
}

func (s *LogShipper) compactionInfo(ctx LeaderContext) LogCompactionInfo {
	prevIndex := ctx.Log.PrevIndex()
	return LogCompactionInfo{
		From:      ctx.Myself,
		Term:      ctx.Term,
		PrevIndex: prevIndex,
		PrevTerm:  ctx.Log.ReadEntryTerm(prevIndex),
	}
}
