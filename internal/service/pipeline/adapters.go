package pipeline

import (
	"context"

	"github.com/zhouzirui/spatial-agent/backend/internal/model/conversation"
)

// Audio is a decoded clip handed to a Transcriber. Data is only valid for the
// duration of Transcribe; the orchestrator zeroes it when the turn ends, so
// implementations that keep the bytes must copy them.
type Audio struct {
	Data       []byte
	Format     string
	SampleRate int
}

// Transcriber turns a clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Generator produces the assistant reply for the full ordered history.
type Generator interface {
	Generate(ctx context.Context, history []conversation.Turn) (string, error)
}

// Synthesizer renders reply text as audio in the given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, audio Audio) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, audio Audio) (string, error) {
	return f(ctx, audio)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, history []conversation.Turn) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, history []conversation.Turn) (string, error) {
	return f(ctx, history)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text, voice string) ([]byte, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return f(ctx, text, voice)
}
