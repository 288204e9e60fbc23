package static

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

func TestTranscriberAndGeneratorDefaults(t *testing.T) {
	ctx := context.Background()

	text, err := Transcriber{}.Transcribe(ctx, pipeline.Audio{Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, DefaultTranscript, text)

	_, err = Transcriber{}.Transcribe(ctx, pipeline.Audio{})
	assert.Error(t, err)

	reply, err := Generator{}.Generate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, I am Spatial Agent.", reply)

	reply, err = Generator{Text: "custom"}.Generate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", reply)
}

func TestSynthesizerReturnsCopies(t *testing.T) {
	s := NewSynthesizer([]byte{1, 2, 3})

	first, err := s.Synthesize(context.Background(), "a", "b")
	require.NoError(t, err)
	first[0] = 0

	second, err := s.Synthesize(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, second)
}

func TestSynthesizerSilenceFallback(t *testing.T) {
	audio, err := NewSynthesizer(nil).Synthesize(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(audio[:4]))
	assert.Len(t, audio, 44+32000)
}

func TestLoadSynthesizer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o600))

	s, err := LoadSynthesizer(path)
	require.NoError(t, err)
	audio, err := s.Synthesize(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), audio)

	_, err = LoadSynthesizer(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestSynthesizerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSynthesizer([]byte{1}).Synthesize(ctx, "x", "")
	assert.ErrorIs(t, err, context.Canceled)
}
