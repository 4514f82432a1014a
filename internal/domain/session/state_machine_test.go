package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousRejectsTraffic(t *testing.T) {
	sm := NewStateMachine()
	for _, ev := range []Event{EventSendLocation, EventSendMessage} {
		_, err := sm.Transition(ev)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StateAnonymous, sm.State())
	}
}

func TestLoginThenTrafficThenClose(t *testing.T) {
	sm := NewStateMachine()

	prev, err := sm.Transition(EventLogin)
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, prev)
	sm.Bind("alice")
	assert.Equal(t, StateAuthenticated, sm.State())
	assert.Equal(t, "alice", sm.Username())

	for _, ev := range []Event{EventSendLocation, EventSendMessage, EventLogin} {
		_, err := sm.Transition(ev)
		require.NoError(t, err)
		assert.Equal(t, StateAuthenticated, sm.State())
	}

	prev, err = sm.Transition(EventDisconnect)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, prev)
	assert.Equal(t, StateClosed, sm.State())
}

func TestClosedIsTerminal(t *testing.T) {
	sm := NewStateMachine()
	_, err := sm.Transition(EventDisconnect)
	require.NoError(t, err)

	for _, ev := range []Event{EventLogin, EventSendMessage, EventDisconnect} {
		prev, err := sm.Transition(ev)
		assert.ErrorIs(t, err, ErrClosed)
		assert.Equal(t, StateClosed, prev)
	}
}

func TestNextTable(t *testing.T) {
	to, ok := Next(StateAnonymous, EventDisconnect)
	assert.True(t, ok)
	assert.Equal(t, StateClosed, to)

	_, ok = Next(StateClosed, EventLogin)
	assert.False(t, ok)
}
