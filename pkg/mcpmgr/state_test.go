package mcpmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	allowed := [][2]State{
		{StateAbsent, StateConnecting},
		{StateConnecting, StateConnected},
		{StateConnecting, StateFailed},
		{StateConnected, StateAbsent},
		{StateFailed, StateConnecting},
	}
	for _, tr := range allowed {
		assert.True(t, tr[0].CanTransition(tr[1]), "%s -> %s", tr[0], tr[1])
	}

	forbidden := [][2]State{
		{StateAbsent, StateConnected},
		{StateAbsent, StateFailed},
		{StateConnected, StateConnecting},
		{StateFailed, StateConnected},
	}
	for _, tr := range forbidden {
		assert.False(t, tr[0].CanTransition(tr[1]), "%s -> %s", tr[0], tr[1])
	}
	assert.Equal(t, "connected", StateConnected.String())
}

func TestEntryMoveTo(t *testing.T) {
	t.Parallel()

	e := &entry{id: "alpha", state: StateAbsent}
	e.moveTo(StateAbsent)
	assert.Equal(t, StateAbsent, e.state)

	e.moveTo(StateConnecting)
	e.moveTo(StateFailed)
	e.moveTo(StateConnecting)
	e.moveTo(StateConnected)
	assert.Equal(t, StateConnected, e.state)

	assert.Panics(t, func() { e.moveTo(StateFailed) })
	assert.Equal(t, StateConnected, e.state)
}
