package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoteState_FirstVoteInTermIsAccepted(t *testing.T) {
	v := NewVoteState()
	changed := v.Update(MemberId(1), true, 5)
	require.True(t, changed)

	votedFor, voted := v.VotedFor()
	require.True(t, voted)
	require.Equal(t, MemberId(1), votedFor)
}

func TestVoteState_NewTermResetsRegardlessOfPriorVote(t *testing.T) {
	v := NewVoteState()
	v.Update(MemberId(1), true, 5)

	changed := v.Update(MemberId(2), true, 6)
	require.True(t, changed)

	votedFor, voted := v.VotedFor()
	require.True(t, voted)
	require.Equal(t, MemberId(2), votedFor)
}

func TestVoteState_SameCandidateSameTermIsIdempotent(t *testing.T) {
	v := NewVoteState()
	v.Update(MemberId(1), true, 5)

	changed := v.Update(MemberId(1), true, 5)
	require.False(t, changed, "re-affirming the same vote in the same term is not a new write")
}

func TestVoteState_SecondDistinctVoteInSameTermPanics(t *testing.T) {
	v := NewVoteState()
	v.Update(MemberId(1), true, 5)

	require.Panics(t, func() {
		v.Update(MemberId(2), true, 5)
	})
}

func TestVoteState_TermBumpWithoutVotingClearsPriorVote(t *testing.T) {
	v := NewVoteState()
	v.Update(MemberId(1), true, 5)

	changed := v.Update(MemberId(0), false, 6)
	require.True(t, changed)

	_, voted := v.VotedFor()
	require.False(t, voted)
}
