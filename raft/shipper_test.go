package raft

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

var discardLogger = log.New(io.Discard, "", 0)

func leaderCtx(t *testing.T, entries []RaftLogEntry, term Term, commit LogIndex) LeaderContext {
	t.Helper()
	l := NewRaftLog()
	for _, e := range entries {
		l.Append(e)
	}
	l.SetCommitHint(commit)
	return LeaderContext{Myself: 1, Term: term, Log: l, CommitIndex: commit}
}

func payload(s string) []byte { return []byte(s) }

// scenario 1: Start sends the single last entry.
func TestLogShipper_StartSendsLastEntry(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
		{Term: 1, Payload: payload("e1")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 3, 1000, discardLogger)
	d := s.Start(ctx)

	req := d.Message.(AppendEntriesRequest)
	require.Equal(t, LogIndex(0), req.PrevLogIndex)
	require.Len(t, req.Entries, 1)
	require.Equal(t, "e1", string(req.Entries[0].Payload))
	require.Equal(t, ShipperPipeline, s.State())
}

// scenario 2: repeated onMismatch(0) always re-emits [e0] once already
// backtracked to the very first entry.
func TestLogShipper_RepeatedMismatchAtFloorReemitsSameEntry(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 3, 1000, discardLogger)
	s.Start(ctx)

	for i := 0; i < 3; i++ {
		d, info := s.OnMismatch(0, ctx)
		require.Nil(t, info)
		require.NotNil(t, d)
		req := d.Message.(AppendEntriesRequest)
		require.Equal(t, NoIndex, req.PrevLogIndex)
		require.Len(t, req.Entries, 1)
		require.Equal(t, "e0", string(req.Entries[0].Payload))
		require.Equal(t, ShipperMismatch, s.State())
	}
}

// scenario 3: a partial match on a 4-entry log enters CATCHUP and sends
// everything after the match point.
func TestLogShipper_PartialMatchEntersCatchup(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
		{Term: 1, Payload: payload("e1")},
		{Term: 1, Payload: payload("e2")},
		{Term: 1, Payload: payload("e3")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	d, info := s.OnMatch(0, ctx)

	require.Nil(t, info)
	require.NotNil(t, d)
	require.Equal(t, ShipperCatchup, s.State())

	req := d.Message.(AppendEntriesRequest)
	require.Equal(t, LogIndex(0), req.PrevLogIndex)
	require.Len(t, req.Entries, 3)
	require.Equal(t, "e1", string(req.Entries[0].Payload))
	require.Equal(t, "e2", string(req.Entries[1].Payload))
	require.Equal(t, "e3", string(req.Entries[2].Payload))
}

// scenario 4: once PIPELINE and caught up, onNewEntries streams new
// entries that chain directly onto the last thing sent.
func TestLogShipper_PipelineStreamsChainedNewEntries(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	s.Start(ctx)
	_, info := s.OnMatch(0, ctx)
	require.Nil(t, info)
	require.Equal(t, ShipperPipeline, s.State())

	d := s.OnNewEntries(0, 1, []RaftLogEntry{{Term: 1, Payload: payload("e1")}}, ctx)
	require.NotNil(t, d)
	req := d.Message.(AppendEntriesRequest)
	require.Equal(t, LogIndex(0), req.PrevLogIndex)
	require.Len(t, req.Entries, 1)
	require.Equal(t, "e1", string(req.Entries[0].Payload))
}

// scenario 5: a shipper still in MISMATCH (no match reestablished yet)
// drops new entries instead of streaming them.
func TestLogShipper_NoStreamingBeforeMatch(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	s.Start(ctx)
	s.OnMismatch(0, ctx)
	require.Equal(t, ShipperMismatch, s.State())

	d := s.OnNewEntries(0, 1, []RaftLogEntry{{Term: 1, Payload: payload("e1")}}, ctx)
	require.Nil(t, d)
}

// scenario 6: pruning past the probed position yields a fallback to the
// most recently available entry rather than a broken request.
func TestLogShipper_PruningPastProbeFallsBackToAvailableEntry(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
		{Term: 1, Payload: payload("e1")},
		{Term: 1, Payload: payload("e2")},
		{Term: 1, Payload: payload("e3")},
	}, 1, 3)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	s.Start(ctx)
	s.OnMismatch(0, ctx)  // probe -> 1, ships e2
	s.OnMismatch(0, ctx)  // probe -> 0, ships e1

	ctx.Log.Prune(2) // everything up to and including e2 is gone

	d, info := s.OnMismatch(0, ctx)
	require.NotNil(t, info)
	require.NotNil(t, d)

	req := d.Message.(AppendEntriesRequest)
	require.Equal(t, "e3", string(req.Entries[0].Payload))
}

// scenario 7: a prune racing with onMatch surfaces a compaction signal
// instead of an AppendEntries built from entries that no longer exist.
func TestLogShipper_PruningRaceDuringOnMatchSignalsCompaction(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
		{Term: 1, Payload: payload("e1")},
		{Term: 1, Payload: payload("e2")},
	}, 1, 2)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	s.Start(ctx)

	ctx.Log.Prune(1) // matchIndex below is now in the pruned prefix

	d, info := s.OnMatch(0, ctx)
	require.Nil(t, d)
	require.NotNil(t, info)
	require.Equal(t, ShipperMismatch, s.State())
}

func TestLogShipper_FullMatchReturnsToPipelineWithNothingToSend(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	s.Start(ctx)

	d, info := s.OnMatch(0, ctx)
	require.Nil(t, d)
	require.Nil(t, info)
	require.Equal(t, ShipperPipeline, s.State())
}

func TestLogShipper_OnTimeoutHeartbeatsInPipeline(t *testing.T) {
	ctx := leaderCtx(t, nil, 1, NoIndex)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	s.Start(ctx)

	d := s.OnTimeout(ctx)
	req := d.Message.(AppendEntriesRequest)
	require.Empty(t, req.Entries)
}

func TestLogShipper_OnTimeoutResendsProbeInMismatch(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
		{Term: 1, Payload: payload("e1")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 10, 1000, discardLogger)
	s.Start(ctx)
	s.OnMismatch(1, ctx)

	d := s.OnTimeout(ctx)
	req := d.Message.(AppendEntriesRequest)
	require.Len(t, req.Entries, 1)
}

func TestLogShipper_BackPressureStopsStreamingBeyondLag(t *testing.T) {
	ctx := leaderCtx(t, []RaftLogEntry{
		{Term: 1, Payload: payload("e0")},
	}, 1, NoIndex)

	s := NewLogShipper(2, 10, 1, discardLogger) // maxAllowedShippingLag=1
	s.Start(ctx)
	s.OnMatch(0, ctx)

	bigBatch := make([]RaftLogEntry, 5)
	for i := range bigBatch {
		bigBatch[i] = RaftLogEntry{Term: 1}
	}
	ctx2 := ctx
	for _, e := range bigBatch {
		ctx2.Log.Append(e)
	}

	d := s.OnNewEntries(0, 1, bigBatch, ctx2)
	require.Nil(t, d, "a follower more than maxAllowedShippingLag behind must not receive a streamed batch")
}
