package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/codec"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

// AudioClient is the subset of *openai.Client used here; tests replace it.
type AudioClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Config selects models for the OpenAI speech endpoints.
type Config struct {
	APIKey  string
	BaseURL string
	// TranscriptionModel defaults to whisper-1.
	TranscriptionModel string
	// Language is an ISO-639-1 hint for transcription. Empty lets the model detect it.
	Language string
	// SpeechModel defaults to tts-1.
	SpeechModel string
	// Format is the synthesized audio container, wav by default.
	Format string
}

// NewClient builds an OpenAI client from cfg.
func NewClient(cfg Config) (*openai.Client, error) {
	key, err := resolveAPIKey(cfg.APIKey)
	if err != nil {
		return nil, err
	}
	clientCfg := openai.DefaultConfig(key)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// Service transcribes and synthesizes speech through the OpenAI audio API.
// It satisfies pipeline.Transcriber and pipeline.Synthesizer.
type Service struct {
	client             AudioClient
	transcriptionModel string
	language           string
	speechModel        openai.SpeechModel
	format             openai.SpeechResponseFormat
	log                *zap.Logger
}

var (
	_ pipeline.Transcriber = (*Service)(nil)
	_ pipeline.Synthesizer = (*Service)(nil)
)

// NewService wraps client with the models from cfg.
func NewService(client AudioClient, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		client:             client,
		transcriptionModel: cfg.TranscriptionModel,
		language:           strings.TrimSpace(cfg.Language),
		speechModel:        openai.SpeechModel(cfg.SpeechModel),
		format:             openai.SpeechResponseFormat(strings.ToLower(cfg.Format)),
		log:                log.Named("speech"),
	}
	if s.transcriptionModel == "" {
		s.transcriptionModel = openai.Whisper1
	}
	if s.speechModel == "" {
		s.speechModel = openai.TTSModel1
	}
	if s.format == "" {
		s.format = openai.SpeechResponseFormatWav
	}
	return s
}

// Transcribe uploads the clip as a file named after its container format.
func (s *Service) Transcribe(ctx context.Context, audio pipeline.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("transcribe: empty audio")
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.transcriptionModel,
		FilePath: codec.FileName(audio.Format),
		Reader:   bytes.NewReader(audio.Data),
		Language: s.language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	s.log.Debug("transcribed",
		zap.String("format", audio.Format),
		zap.Int("bytes", len(audio.Data)),
		zap.Int("chars", len(resp.Text)),
	)
	return resp.Text, nil
}

// Synthesize renders text and reads the whole audio body.
func (s *Service) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("synthesize: empty text")
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.speechModel,
		Input:          text,
		Voice:          ResolveVoice(voice),
		ResponseFormat: s.format,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesize: empty audio")
	}

	s.log.Debug("synthesized", zap.Int("chars", len(text)), zap.Int("bytes", len(audio)))
	return audio, nil
}

var _ AudioClient = (*openai.Client)(nil)
