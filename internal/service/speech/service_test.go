package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

type mockAudioClient struct {
	transcription openai.AudioResponse
	speech        []byte
	err           error

	gotAudio  []byte
	gotReq    openai.AudioRequest
	gotSpeech openai.CreateSpeechRequest
	closed    bool
}

func (m *mockAudioClient) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	m.gotReq = req
	if req.Reader != nil {
		m.gotAudio, _ = io.ReadAll(req.Reader)
	}
	if m.err != nil {
		return openai.AudioResponse{}, m.err
	}
	return m.transcription, nil
}

type trackingCloser struct {
	io.Reader
	onClose func()
}

func (c trackingCloser) Close() error {
	c.onClose()
	return nil
}

func (m *mockAudioClient) CreateSpeech(_ context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error) {
	m.gotSpeech = req
	if m.err != nil {
		return openai.RawResponse{}, m.err
	}
	return openai.RawResponse{ReadCloser: trackingCloser{
		Reader:  bytes.NewReader(m.speech),
		onClose: func() { m.closed = true },
	}}, nil
}

func TestTranscribeUsesFormatFileName(t *testing.T) {
	client := &mockAudioClient{transcription: openai.AudioResponse{Text: "hello world"}}
	svc := NewService(client, Config{Language: "en"}, nil)

	text, err := svc.Transcribe(context.Background(), pipeline.Audio{Data: []byte{1, 2, 3}, Format: "webm"})
	require.NoError(t, err)

	assert.Equal(t, "hello world", text)
	assert.Equal(t, openai.Whisper1, client.gotReq.Model)
	assert.Equal(t, "audio.webm", client.gotReq.FilePath)
	assert.Equal(t, "en", client.gotReq.Language)
	assert.Equal(t, []byte{1, 2, 3}, client.gotAudio)
}

func TestTranscribeErrors(t *testing.T) {
	svc := NewService(&mockAudioClient{}, Config{}, nil)
	_, err := svc.Transcribe(context.Background(), pipeline.Audio{})
	assert.Error(t, err)

	boom := errors.New("rate limited")
	svc = NewService(&mockAudioClient{err: boom}, Config{}, nil)
	_, err = svc.Transcribe(context.Background(), pipeline.Audio{Data: []byte{1}})
	assert.ErrorIs(t, err, boom)
}

func TestSynthesizeReadsWholeBody(t *testing.T) {
	audio := bytes.Repeat([]byte("RIFF"), 512)
	client := &mockAudioClient{speech: audio}
	svc := NewService(client, Config{SpeechModel: "tts-1-hd"}, nil)

	got, err := svc.Synthesize(context.Background(), "Hi there", "Nova")
	require.NoError(t, err)

	assert.Equal(t, audio, got)
	assert.True(t, client.closed)
	assert.Equal(t, openai.TTSModel1HD, client.gotSpeech.Model)
	assert.Equal(t, openai.VoiceNova, client.gotSpeech.Voice)
	assert.Equal(t, openai.SpeechResponseFormatWav, client.gotSpeech.ResponseFormat)
	assert.Equal(t, "Hi there", client.gotSpeech.Input)
}

func TestSynthesizeErrors(t *testing.T) {
	svc := NewService(&mockAudioClient{speech: []byte{1}}, Config{}, nil)
	_, err := svc.Synthesize(context.Background(), "  ", "")
	assert.Error(t, err)

	svc = NewService(&mockAudioClient{}, Config{}, nil)
	_, err = svc.Synthesize(context.Background(), "text", "")
	assert.Error(t, err, "empty body is a failure")

	boom := errors.New("quota")
	svc = NewService(&mockAudioClient{err: boom}, Config{}, nil)
	_, err = svc.Synthesize(context.Background(), "text", "")
	assert.ErrorIs(t, err, boom)
}

func TestResolveVoice(t *testing.T) {
	cases := map[string]openai.SpeechVoice{
		"":          DefaultVoice,
		"unknown":   DefaultVoice,
		" SHIMMER ": openai.VoiceShimmer,
		"female":    openai.VoiceNova,
		"echo":      openai.VoiceEcho,
	}
	for in, want := range cases {
		assert.Equal(t, want, ResolveVoice(in), in)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "  "})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: "http://localhost:9999/v1"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
