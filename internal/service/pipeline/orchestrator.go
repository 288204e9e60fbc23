package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	model "github.com/zhouzirui/spatial-agent/backend/internal/model/conversation"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/codec"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/conversation"
)

// FallbackReply stands in for the assistant reply when generation fails.
const FallbackReply = "Sorry, something went wrong."

var (
	ErrEmptyTranscript = errors.New("empty transcript")
	ErrEmptyReply      = errors.New("empty reply")
)

// Options configures an Orchestrator. Zero values are usable.
type Options struct {
	// Voice is passed to the Synthesizer on every turn.
	Voice string
	// StageTimeout bounds each adapter call. Zero means no bound beyond the session context.
	StageTimeout time.Duration
	Observer     Observer
	Logger       *zap.Logger
}

// Orchestrator runs one turn: decode, transcribe, generate, synthesize, encode.
type Orchestrator struct {
	transcriber  Transcriber
	generator    Generator
	synthesizer  Synthesizer
	voice        string
	stageTimeout time.Duration
	observer     Observer
	log          *zap.Logger
}

// NewOrchestrator wires the three adapters into a turn pipeline.
func NewOrchestrator(t Transcriber, g Generator, s Synthesizer, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NewLogObserver(log)
	}
	return &Orchestrator{
		transcriber:  t,
		generator:    g,
		synthesizer:  s,
		voice:        opts.Voice,
		stageTimeout: opts.StageTimeout,
		observer:     observer,
		log:          log.Named("pipeline"),
	}
}

// Result is the outcome of RunTurn.
//
// A Result with a Payload must be finished with Delivered once the payload is
// written, or Abort if it could not be. History is the updated conversation
// and is nil whenever the turn produced no reply.
type Result struct {
	SessionID string
	Text      string
	Payload   []byte
	History   *conversation.History
	Outcome   Outcome
	// Errs holds every stage error raised during the turn, in order.
	Errs []error

	machine  *TurnMachine
	observer Observer
	started  time.Time
	done     bool
}

// Sendable reports whether the turn produced a reply to write.
func (r *Result) Sendable() bool {
	return r != nil && r.Payload != nil
}

// Err returns the first stage error, or nil.
func (r *Result) Err() error {
	if r == nil || len(r.Errs) == 0 {
		return nil
	}
	return r.Errs[0]
}

// State reports where the turn's state machine currently is.
func (r *Result) State() TurnState {
	return r.machine.State()
}

// Delivered records that the payload reached the client and returns the turn to Idle.
func (r *Result) Delivered(ctx context.Context) error {
	if r.done {
		return nil
	}
	if err := r.machine.Fire(ctx, TriggerDelivered); err != nil {
		return err
	}
	if err := r.machine.Fire(ctx, TriggerReset); err != nil {
		return err
	}
	r.finish()
	return nil
}

// Abort drops an undelivered reply, discards its history and returns the turn to Idle.
func (r *Result) Abort(ctx context.Context) {
	if r.done {
		return
	}
	r.machine.Abort(ctx)
	r.History = nil
	r.Payload = nil
	r.Outcome = OutcomeCancelled
	r.finish()
}

func (r *Result) finish() {
	r.done = true
	r.observer.TurnFinished(r.SessionID, r.Outcome, time.Since(r.started))
}

// RunTurn processes one inbound frame against hist. hist itself is never
// modified; the updated copy is returned in Result.History. A cancelled ctx
// ends the turn without a reply.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID string, hist *conversation.History, frame []byte) *Result {
	res := &Result{
		SessionID: sessionID,
		Outcome:   OutcomeReplied,
		machine:   NewTurnMachine(o.log.With(zap.String("session_id", sessionID))),
		observer:  o.observer,
		started:   time.Now(),
	}
	if err := res.machine.Fire(ctx, TriggerAudioReceived); err != nil {
		return o.skip(ctx, res, StageDecode, &DecodeError{Err: err})
	}

	in, err := codec.DecodeInbound(frame)
	if err != nil {
		return o.skip(ctx, res, StageDecode, &DecodeError{Err: err})
	}
	defer in.Release()
	o.advance(ctx, res, TriggerDecoded)

	text, err := o.transcribe(ctx, in)
	if err != nil {
		return o.skip(ctx, res, StageTranscribe, &TranscriptionError{Err: err})
	}
	o.advance(ctx, res, TriggerTranscribed)

	working := hist.Clone()
	working.AppendUser(text)

	reply, err := o.generate(ctx, working.Snapshot())
	if err != nil {
		if ctx.Err() != nil {
			return o.skip(ctx, res, StageGenerate, &GenerationError{Err: err})
		}
		o.degrade(res, StageGenerate, &GenerationError{Err: err})
		reply = FallbackReply
	}
	working.AppendAssistant(reply)
	if evicted := working.EnforceCap(); evicted > 0 {
		o.log.Debug("history trimmed",
			zap.String("session_id", sessionID),
			zap.Int("evicted", evicted),
		)
	}
	o.advance(ctx, res, TriggerReplied)

	audio, err := o.synthesize(ctx, reply)
	if err != nil {
		if ctx.Err() != nil {
			return o.skip(ctx, res, StageSynthesize, &SynthesisError{Err: err})
		}
		o.degrade(res, StageSynthesize, &SynthesisError{Err: err})
		audio = nil
	}
	o.advance(ctx, res, TriggerSynthesized)

	out := codec.OutboundMessage{Text: reply, Audio: audio}
	payload, err := codec.EncodeOutbound(out)
	out.Release()
	if err != nil {
		return o.skip(ctx, res, StageEncode, &EncodeError{Err: err})
	}

	if ctx.Err() != nil {
		return o.skip(ctx, res, StageEncode, ctx.Err())
	}

	res.Text = reply
	res.Payload = payload
	res.History = working
	return res
}

func (o *Orchestrator) transcribe(ctx context.Context, in codec.InboundMessage) (string, error) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	text, err := o.transcriber.Transcribe(sctx, Audio{
		Data:       in.Audio,
		Format:     in.Format,
		SampleRate: in.SampleRate,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (o *Orchestrator) generate(ctx context.Context, history []model.Turn) (string, error) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	reply, err := o.generator.Generate(sctx, history)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, text string) ([]byte, error) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	audio, err := o.synthesizer.Synthesize(sctx, text, o.voice)
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.stageTimeout)
}

// advance fires a forward transition. The sequence is fixed, so a refusal
// means the machine was misconfigured; it is logged and the turn carries on.
func (o *Orchestrator) advance(ctx context.Context, res *Result, trigger TurnTrigger) {
	if err := res.machine.Fire(ctx, trigger); err != nil {
		o.log.Error("turn transition refused",
			zap.String("session_id", res.SessionID),
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) degrade(res *Result, stage Stage, err error) {
	res.Errs = append(res.Errs, err)
	res.Outcome = OutcomeDegraded
	o.observer.StageFailed(res.SessionID, stage, err)
}

// skip ends the turn without a reply.
func (o *Orchestrator) skip(ctx context.Context, res *Result, stage Stage, err error) *Result {
	res.Errs = append(res.Errs, err)
	res.Outcome = OutcomeSkipped
	if ctx.Err() != nil {
		res.Outcome = OutcomeCancelled
	}
	o.observer.StageFailed(res.SessionID, stage, err)

	res.machine.Abort(ctx)
	res.Payload = nil
	res.History = nil
	res.finish()
	return res
}
