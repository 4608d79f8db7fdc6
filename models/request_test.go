package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsTerminalStatus(t *testing.T) {
	for _, status := range TerminalStatuses {
		require.True(t, IsTerminalStatus(status), status)
	}
	require.False(t, IsTerminalStatus(RequestStatusPending))
	require.False(t, IsTerminalStatus(RequestStatusProposing))
	require.False(t, IsTerminalStatus(RequestStatusAwaitingConfirmation))
}

func TestLatestRound(t *testing.T) {
	r := &SchedulingRequest{}
	require.Equal(t, 0, r.LatestRound())

	now := time.Now()
	r.ProposedTimes = []ProposedTime{
		{Start: now, End: now.Add(30 * time.Minute), Round: 1},
		{Start: now, End: now.Add(30 * time.Minute), Round: 3},
		{Start: now, End: now.Add(30 * time.Minute), Round: 2},
	}
	require.Equal(t, 3, r.LatestRound())
}

func TestMessageIsSendable(t *testing.T) {
	m := &Message{Direction: DirectionOutbound, SendState: SendStateScheduled}
	require.True(t, m.IsSendable())

	for _, state := range []string{SendStateDraft, SendStatePendingApproval, SendStateClaimed, SendStateSent} {
		m.SendState = state
		require.False(t, m.IsSendable(), state)
	}

	m = &Message{Direction: DirectionInbound, SendState: SendStateScheduled}
	require.False(t, m.IsSendable())
}

func TestConfirmationIsOpen(t *testing.T) {
	c := &Confirmation{}
	require.False(t, c.IsOpen())

	kind := AwaitingApproval
	c.AwaitingResponseType = &kind
	require.True(t, c.IsOpen())
}

func TestWorkingWeekdaysDefaultsToWeekdays(t *testing.T) {
	p := &SchedulingPreference{}
	set := p.WorkingWeekdays()

	for d := int(time.Monday); d <= int(time.Friday); d++ {
		require.True(t, set[d])
	}
	require.False(t, set[int(time.Saturday)])
	require.False(t, set[int(time.Sunday)])

	p.WorkingDays = []int{int(time.Tuesday), int(time.Saturday)}
	set = p.WorkingWeekdays()
	require.True(t, set[int(time.Saturday)])
	require.False(t, set[int(time.Monday)])
}
