package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	run := NewRun("tok-123")
	assert.Equal(t, "tok-123", run.Token())
	assert.Equal(t, StateUnknown, run.State())
	assert.Empty(t, run.ID())
	assert.False(t, run.Terminal())

	require.NoError(t, run.Discover("4242"))
	assert.Equal(t, StateDiscovered, run.State())
	assert.Equal(t, "4242", run.ID())

	require.NoError(t, run.Transition(StateRunning))
	require.NoError(t, run.Transition(StateRunning), "running may re-enter itself")

	run.ObserveStep("transcode")
	run.ObserveStep("")
	assert.Equal(t, "transcode", run.Step(), "empty step observations keep the last name")
	assert.Equal(t, 2, run.Polls())

	require.NoError(t, run.Transition(StateSucceeded))
	assert.True(t, run.Terminal())
}

func TestRunIDWriteOnce(t *testing.T) {
	run := NewRun("tok")
	require.NoError(t, run.Discover("1"))
	assert.Error(t, run.Discover("2"))
	assert.Equal(t, "1", run.ID())
}

func TestRunDiscoverEmptyID(t *testing.T) {
	run := NewRun("tok")
	assert.Error(t, run.Discover(""))
	assert.Equal(t, StateUnknown, run.State())
}

func TestRunTransitionsAreMonotonic(t *testing.T) {
	t.Run("no going back", func(t *testing.T) {
		run := NewRun("tok")
		require.NoError(t, run.Discover("1"))
		require.NoError(t, run.Transition(StateRunning))
		assert.Error(t, run.Transition(StateDiscovered))
		assert.Error(t, run.Transition(StateUnknown))
	})

	t.Run("terminal states are final", func(t *testing.T) {
		run := NewRun("tok")
		require.NoError(t, run.Discover("1"))
		require.NoError(t, run.Transition(StateFailed))
		assert.Error(t, run.Transition(StateSucceeded))
		assert.Error(t, run.Transition(StateRunning))
		assert.Equal(t, StateFailed, run.State())
	})

	t.Run("lost from running", func(t *testing.T) {
		run := NewRun("tok")
		require.NoError(t, run.Discover("1"))
		require.NoError(t, run.Transition(StateRunning))
		require.NoError(t, run.Transition(StateLost))
		assert.True(t, run.Terminal())
	})

	t.Run("unknown target state", func(t *testing.T) {
		run := NewRun("tok")
		assert.Error(t, run.Transition(RunState("paused")))
	})
}
