// Package bootstrap turns configuration into the adapters a turn pipeline needs.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/config"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/ai"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/speech"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/static"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/volcengine"
)

// Adapters holds one implementation per stage.
type Adapters struct {
	Transcriber pipeline.Transcriber
	Generator   pipeline.Generator
	Synthesizer pipeline.Synthesizer
}

// BuildAdapters constructs the providers selected in cfg.
func BuildAdapters(ctx context.Context, cfg *config.Config, log *zap.Logger) (Adapters, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		out Adapters
		err error
	)

	if out.Transcriber, err = buildTranscriber(cfg, log); err != nil {
		return Adapters{}, err
	}
	if out.Generator, err = buildGenerator(ctx, cfg, log); err != nil {
		return Adapters{}, err
	}
	if out.Synthesizer, err = buildSynthesizer(cfg, log); err != nil {
		return Adapters{}, err
	}

	log.Info("adapters ready",
		zap.String("transcription", cfg.Transcription.Provider),
		zap.String("generation", cfg.Generation.Provider),
		zap.String("synthesis", cfg.Synthesis.Provider),
	)
	return out, nil
}

func buildTranscriber(cfg *config.Config, log *zap.Logger) (pipeline.Transcriber, error) {
	switch cfg.Transcription.Provider {
	case config.ProviderStatic:
		return static.Transcriber{Text: cfg.Transcription.StaticText}, nil
	case config.ProviderOpenAI:
		speechCfg := speech.Config{
			APIKey:             cfg.Transcription.APIKey,
			BaseURL:            cfg.Transcription.BaseURL,
			TranscriptionModel: cfg.Transcription.Model,
			Language:           cfg.Transcription.Language,
		}
		client, err := speech.NewClient(speechCfg)
		if err != nil {
			return nil, fmt.Errorf("transcription: %w", err)
		}
		return speech.NewService(client, speechCfg, log), nil
	case config.ProviderVolcengine:
		tc := cfg.Transcription
		asr, err := volcengine.NewASR(volcengine.ASRConfig{
			Credentials: volcengine.Credentials{AppID: tc.AppID, AccessToken: tc.AccessToken},
			Endpoint:    tc.BaseURL,
			ResourceID:  tc.ResourceID,
			Language:    tc.Language,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("transcription: %w", err)
		}
		return asr, nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Transcription.Provider)
	}
}

func buildGenerator(ctx context.Context, cfg *config.Config, log *zap.Logger) (pipeline.Generator, error) {
	gen := cfg.Generation
	switch gen.Provider {
	case config.ProviderStatic:
		return static.Generator{Text: gen.StaticText}, nil
	case config.ProviderArk:
		chatModel, err := gen.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("generation: %w", err)
		}
		return ai.NewChainGenerator(ctx, chatModel, log)
	case config.ProviderOpenAI:
		clientCfg := openai.DefaultConfig(gen.APIKey)
		if gen.BaseURL != "" {
			clientCfg.BaseURL = gen.BaseURL
		}
		return ai.NewOpenAIGenerator(openai.NewClientWithConfig(clientCfg), ai.OpenAIConfig{
			Model:       gen.Model,
			Temperature: gen.TemperatureOrZero(),
			MaxTokens:   gen.MaxTokensOrZero(),
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", gen.Provider)
	}
}

func buildSynthesizer(cfg *config.Config, log *zap.Logger) (pipeline.Synthesizer, error) {
	switch cfg.Synthesis.Provider {
	case config.ProviderStatic:
		syn, err := static.LoadSynthesizer(cfg.Synthesis.StaticFile)
		if err != nil {
			log.Warn("static audio unavailable, serving silence", zap.Error(err))
			return static.NewSynthesizer(nil), nil
		}
		return syn, nil
	case config.ProviderOpenAI:
		speechCfg := speech.Config{
			APIKey:      cfg.Synthesis.APIKey,
			BaseURL:     cfg.Synthesis.BaseURL,
			SpeechModel: cfg.Synthesis.Model,
			Format:      cfg.Synthesis.Format,
		}
		client, err := speech.NewClient(speechCfg)
		if err != nil {
			return nil, fmt.Errorf("synthesis: %w", err)
		}
		return speech.NewService(client, speechCfg, log), nil
	case config.ProviderVolcengine:
		sc := cfg.Synthesis
		tts, err := volcengine.NewTTS(volcengine.TTSConfig{
			Credentials: volcengine.Credentials{AppID: sc.AppID, AccessToken: sc.AccessToken},
			Endpoint:    sc.BaseURL,
			ResourceID:  sc.ResourceID,
			Speaker:     sc.Speaker,
			Format:      sc.Format,
			Language:    sc.Language,
			Speed:       float32(sc.Speed),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("synthesis: %w", err)
		}
		return tts, nil
	default:
		return nil, fmt.Errorf("unknown synthesis provider %q", cfg.Synthesis.Provider)
	}
}
