// Package static provides fixed-output adapters for running the server
// without any AI provider.
package static

import (
	"context"
	"fmt"
	"os"

	"github.com/zhouzirui/spatial-agent/backend/internal/model/conversation"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/codec"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

const (
	DefaultTranscript = "Hello."
	DefaultReply      = "Hello, I am Spatial Agent."
	DefaultAudioFile  = "assets/response_sample.wav"
)

// Transcriber returns the same text for every clip.
type Transcriber struct{ Text string }

func (t Transcriber) Transcribe(_ context.Context, audio pipeline.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("static transcriber: empty audio")
	}
	if t.Text == "" {
		return DefaultTranscript, nil
	}
	return t.Text, nil
}

// Generator returns the same reply whatever the history.
type Generator struct{ Text string }

func (g Generator) Generate(context.Context, []conversation.Turn) (string, error) {
	if g.Text == "" {
		return DefaultReply, nil
	}
	return g.Text, nil
}

// Synthesizer returns a fixed clip regardless of text or voice.
type Synthesizer struct {
	audio []byte
}

// NewSynthesizer serves clip. An empty clip yields one second of 16 kHz silence.
func NewSynthesizer(clip []byte) *Synthesizer {
	if len(clip) == 0 {
		clip = codec.WrapPCM16(make([]byte, 2*16000), 16000, 1)
	}
	return &Synthesizer{audio: append([]byte(nil), clip...)}
}

// LoadSynthesizer reads the clip from path once.
func LoadSynthesizer(path string) (*Synthesizer, error) {
	if path == "" {
		path = DefaultAudioFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load static audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("load static audio: %s is empty", path)
	}
	return NewSynthesizer(data), nil
}

// Synthesize returns a copy; callers release reply buffers after encoding.
func (s *Synthesizer) Synthesize(ctx context.Context, _, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.audio...), nil
}

var (
	_ pipeline.Transcriber = Transcriber{}
	_ pipeline.Generator   = Generator{}
	_ pipeline.Synthesizer = (*Synthesizer)(nil)
)
