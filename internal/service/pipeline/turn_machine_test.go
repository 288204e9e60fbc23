package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnMachineFullCycle(t *testing.T) {
	ctx := context.Background()
	m := NewTurnMachine(nil)
	assert.Equal(t, StateIdle, m.State())

	steps := []struct {
		trigger TurnTrigger
		want    TurnState
	}{
		{TriggerAudioReceived, StateIngesting},
		{TriggerDecoded, StateTranscribing},
		{TriggerTranscribed, StateGeneratingReply},
		{TriggerReplied, StateSynthesizing},
		{TriggerSynthesized, StateEncoding},
		{TriggerDelivered, StateSent},
		{TriggerReset, StateIdle},
	}
	for _, step := range steps {
		require.NoError(t, m.Fire(ctx, step.trigger), step.trigger)
		assert.Equal(t, step.want, m.State())
	}
}

func TestTurnMachineRejectsOutOfOrderTrigger(t *testing.T) {
	m := NewTurnMachine(nil)
	assert.Error(t, m.Fire(context.Background(), TriggerSynthesized))
	assert.Equal(t, StateIdle, m.State())

	require.NoError(t, m.Fire(context.Background(), TriggerAudioReceived))
	assert.Error(t, m.Fire(context.Background(), TriggerDelivered))
}

func TestTurnMachineAbortFromAnyBusyState(t *testing.T) {
	path := []TurnTrigger{TriggerAudioReceived, TriggerDecoded, TriggerTranscribed, TriggerReplied, TriggerSynthesized}

	for depth := 1; depth <= len(path); depth++ {
		m := NewTurnMachine(nil)
		for _, trig := range path[:depth] {
			require.NoError(t, m.Fire(context.Background(), trig))
		}
		m.Abort(context.Background())
		assert.Equal(t, StateIdle, m.State(), "depth %d", depth)
	}
}

func TestTurnMachineAbortIgnoresIdleAndCancelledContext(t *testing.T) {
	m := NewTurnMachine(nil)
	m.Abort(context.Background())
	assert.Equal(t, StateIdle, m.State())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Fire(ctx, TriggerAudioReceived))
	cancel()
	m.Abort(ctx)
	assert.Equal(t, StateIdle, m.State())
}
