package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/spatial-agent/backend/internal/config"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/ai"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/speech"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/static"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/volcengine"
)

func staticConfig() *config.Config {
	return &config.Config{
		Transcription: config.TranscriptionConfig{Provider: config.ProviderStatic},
		Generation:    config.GenerationConfig{Provider: config.ProviderStatic},
		Synthesis:     config.SynthesisConfig{Provider: config.ProviderStatic, StaticFile: "does-not-exist.wav"},
	}
}

func TestBuildStaticAdapters(t *testing.T) {
	adapters, err := BuildAdapters(context.Background(), staticConfig(), nil)
	require.NoError(t, err)

	assert.IsType(t, static.Transcriber{}, adapters.Transcriber)
	assert.IsType(t, static.Generator{}, adapters.Generator)

	// A missing sample file falls back to silence instead of failing startup.
	audio, err := adapters.Synthesizer.Synthesize(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(audio[:4]))
}

func TestBuildOpenAIAdapters(t *testing.T) {
	cfg := staticConfig()
	cfg.Transcription = config.TranscriptionConfig{Provider: config.ProviderOpenAI, APIKey: "sk-test"}
	cfg.Generation = config.GenerationConfig{Provider: config.ProviderOpenAI, APIKey: "sk-test"}
	cfg.Synthesis = config.SynthesisConfig{Provider: config.ProviderOpenAI, APIKey: "sk-test"}

	adapters, err := BuildAdapters(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.IsType(t, &speech.Service{}, adapters.Transcriber)
	assert.IsType(t, &ai.OpenAIGenerator{}, adapters.Generator)
	assert.IsType(t, &speech.Service{}, adapters.Synthesizer)
}

func TestBuildVolcengineAdapters(t *testing.T) {
	auth := config.VolcengineAuth{AppID: "app", AccessToken: "token"}
	cfg := staticConfig()
	cfg.Transcription = config.TranscriptionConfig{Provider: config.ProviderVolcengine, VolcengineAuth: auth}
	cfg.Synthesis = config.SynthesisConfig{Provider: config.ProviderVolcengine, Format: "mp3", VolcengineAuth: auth}

	adapters, err := BuildAdapters(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.IsType(t, &volcengine.ASR{}, adapters.Transcriber)
	assert.IsType(t, &volcengine.TTS{}, adapters.Synthesizer)
}

func TestBuildAdaptersRejectsBadProviders(t *testing.T) {
	cases := map[string]func(*config.Config){
		"openai transcription without key": func(c *config.Config) { c.Transcription.Provider = config.ProviderOpenAI },
		"ark without model":                func(c *config.Config) { c.Generation.Provider = config.ProviderArk },
		"unknown synthesis":                func(c *config.Config) { c.Synthesis.Provider = "polly" },
		"volcengine without credentials":   func(c *config.Config) { c.Synthesis.Provider = config.ProviderVolcengine },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := staticConfig()
			mutate(cfg)
			_, err := BuildAdapters(context.Background(), cfg, nil)
			assert.Error(t, err)
		})
	}
}
