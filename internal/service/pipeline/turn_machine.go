package pipeline

import (
	"context"
	"fmt"

	"github.com/qmuntal/stateless"
	"go.uber.org/zap"
)

// TurnState is a position in the per-turn state machine.
type TurnState string

const (
	StateIdle            TurnState = "Idle"
	StateBusy            TurnState = "Busy"
	StateIngesting       TurnState = "Ingesting"
	StateTranscribing    TurnState = "Transcribing"
	StateGeneratingReply TurnState = "GeneratingReply"
	StateSynthesizing    TurnState = "Synthesizing"
	StateEncoding        TurnState = "Encoding"
	StateSent            TurnState = "Sent"
)

// TurnTrigger moves a turn between states.
type TurnTrigger string

const (
	TriggerAudioReceived TurnTrigger = "AudioReceived"
	TriggerDecoded       TurnTrigger = "Decoded"
	TriggerTranscribed   TurnTrigger = "Transcribed"
	TriggerReplied       TurnTrigger = "Replied"
	TriggerSynthesized   TurnTrigger = "Synthesized"
	TriggerDelivered     TurnTrigger = "Delivered"
	TriggerReset         TurnTrigger = "Reset"
	TriggerAbort         TurnTrigger = "Abort"
)

// TurnMachine tracks one turn through
// Idle → Ingesting → Transcribing → GeneratingReply → Synthesizing → Encoding → Sent → Idle.
// Every working state is a substate of Busy, so Abort returns to Idle from any of them.
type TurnMachine struct {
	sm *stateless.StateMachine
}

// NewTurnMachine builds a machine in the Idle state. Transitions are logged at debug level.
func NewTurnMachine(log *zap.Logger) *TurnMachine {
	if log == nil {
		log = zap.NewNop()
	}

	sm := stateless.NewStateMachine(StateIdle)

	sm.Configure(StateIdle).
		Permit(TriggerAudioReceived, StateIngesting)

	sm.Configure(StateBusy).
		Permit(TriggerAbort, StateIdle)

	sm.Configure(StateIngesting).
		SubstateOf(StateBusy).
		Permit(TriggerDecoded, StateTranscribing)

	sm.Configure(StateTranscribing).
		SubstateOf(StateBusy).
		Permit(TriggerTranscribed, StateGeneratingReply)

	// A failed generation still carries the fallback reply forward.
	sm.Configure(StateGeneratingReply).
		SubstateOf(StateBusy).
		Permit(TriggerReplied, StateSynthesizing)

	// A failed synthesis still carries the text-only reply forward.
	sm.Configure(StateSynthesizing).
		SubstateOf(StateBusy).
		Permit(TriggerSynthesized, StateEncoding)

	sm.Configure(StateEncoding).
		SubstateOf(StateBusy).
		Permit(TriggerDelivered, StateSent)

	sm.Configure(StateSent).
		Permit(TriggerReset, StateIdle)

	sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		log.Debug("turn transition",
			zap.Any("from", t.Source),
			zap.Any("to", t.Destination),
			zap.Any("trigger", t.Trigger),
		)
	})

	return &TurnMachine{sm: sm}
}

// State reports the current state.
func (m *TurnMachine) State() TurnState {
	return m.sm.MustState().(TurnState)
}

// Fire applies a trigger; firing one the current state does not permit is an error.
func (m *TurnMachine) Fire(ctx context.Context, trigger TurnTrigger) error {
	if err := m.sm.FireCtx(ctx, trigger); err != nil {
		return fmt.Errorf("turn state %s: %w", m.State(), err)
	}
	return nil
}

// Abort returns a busy turn to Idle. It is a no-op when the turn is not busy.
// It still fires when ctx is already cancelled.
func (m *TurnMachine) Abort(ctx context.Context) {
	if busy, _ := m.sm.IsInState(StateBusy); busy {
		_ = m.sm.FireCtx(context.WithoutCancel(ctx), TriggerAbort)
	}
}
