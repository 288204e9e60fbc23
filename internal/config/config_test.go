package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "OPENAI_API_KEY", "ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY",
		"SERVER_ADDR", "GENERATION_PROVIDER", "TRANSCRIPTION_PROVIDER", "SYNTHESIS_PROVIDER",
		"SESSION_HISTORY_CAP", "HISTORY_PIN_SYSTEM", "STAGE_TIMEOUT", "GENERATION_MODEL",
		"SPEECH_APP_ID", "SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY", "SPEECH_TTS_VOICE", "SPEECH_TTS_SPEED",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 54*time.Second, cfg.Server.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadDeadline)
	assert.Equal(t, "You are a helpful AI avatar.", cfg.Session.SystemPrompt)
	assert.Equal(t, 10, cfg.Session.HistoryCap)
	assert.False(t, cfg.Session.PinSystem)
	assert.Equal(t, ProviderStatic, cfg.Transcription.Provider)
	assert.Equal(t, ProviderStatic, cfg.Generation.Provider)
	assert.Equal(t, ProviderStatic, cfg.Synthesis.Provider)
	assert.Nil(t, cfg.Generation.Temperature)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_HISTORY_CAP", "6")
	t.Setenv("HISTORY_PIN_SYSTEM", "true")
	t.Setenv("STAGE_TIMEOUT", "15s")
	t.Setenv("GENERATION_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", " sk-test ")
	t.Setenv("ARK_TEMPERATURE", "0.4")

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 6, cfg.Session.HistoryCap)
	assert.True(t, cfg.Session.PinSystem)
	assert.Equal(t, 15*time.Second, cfg.Session.StageTimeout)
	assert.Equal(t, ProviderOpenAI, cfg.Generation.Provider)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	require.NotNil(t, cfg.Generation.Temperature)
	assert.InDelta(t, 0.4, *cfg.Generation.Temperature, 1e-9)
	assert.InDelta(t, 0.4, cfg.Generation.TemperatureOrZero(), 1e-6)
}

func TestLoadVolcengineFromSpeechEnv(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("TRANSCRIPTION_PROVIDER", "volcengine")
	t.Setenv("SYNTHESIS_PROVIDER", "volcengine")
	t.Setenv("SPEECH_APP_ID", "app-1")
	t.Setenv("SPEECH_API_KEY", "token-1")
	t.Setenv("SPEECH_TTS_VOICE", "zh_male_M392_conversation_wvae_bigtts")
	t.Setenv("SPEECH_TTS_SPEED", "1.2")

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "app-1", cfg.Transcription.AppID)
	assert.Equal(t, "token-1", cfg.Transcription.AccessToken)
	assert.Equal(t, "app-1", cfg.Synthesis.AppID)
	assert.Equal(t, "token-1", cfg.Synthesis.AccessToken)
	assert.Equal(t, "zh_male_M392_conversation_wvae_bigtts", cfg.Synthesis.Speaker)
	assert.InDelta(t, 1.2, cfg.Synthesis.Speed, 1e-9)
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "spatial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "127.0.0.1:7000"
session:
  system_prompt: "You are a museum guide."
  voice: nova
synthesis:
  provider: openai
  api_key: sk-file
log:
  format: console
`), 0o600))

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, "You are a museum guide.", cfg.Session.SystemPrompt)
	assert.Equal(t, "nova", cfg.Session.Voice)
	assert.Equal(t, ProviderOpenAI, cfg.Synthesis.Provider)
	assert.Equal(t, "sk-file", cfg.Synthesis.APIKey)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"cap below one":       func(c *Config) { c.Session.HistoryCap = 0 },
		"unknown provider":    func(c *Config) { c.Transcription.Provider = "azure" },
		"openai without key":  func(c *Config) { c.Synthesis.Provider = ProviderOpenAI },
		"ark without model":   func(c *Config) { c.Generation.Provider = ProviderArk; c.Generation.APIKey = "k" },
		"deadline under ping": func(c *Config) { c.Server.ReadDeadline = c.Server.PingInterval },
		"empty queue":         func(c *Config) { c.Session.QueueSize = 0 },
		"volcengine no token": func(c *Config) {
			c.Transcription.Provider = ProviderVolcengine
			c.Transcription.AppID = "app"
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			chdir(t, t.TempDir())
			cfg, err := load(viper.New(), "")
			require.NoError(t, err)

			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestArkEnabled(t *testing.T) {
	assert.False(t, GenerationConfig{APIKey: "k"}.ArkEnabled())
	assert.True(t, GenerationConfig{Model: "ep-1", APIKey: "k"}.ArkEnabled())
	assert.True(t, GenerationConfig{Model: "ep-1", AccessKey: "a", SecretKey: "s"}.ArkEnabled())
	assert.False(t, GenerationConfig{Model: "ep-1", AccessKey: "a"}.ArkEnabled())
}

func TestResolveAddr(t *testing.T) {
	addr, err := resolveAddr(":8000", "")
	require.NoError(t, err)
	assert.Equal(t, ":8000", addr)

	addr, err = resolveAddr(":8000", "0.0.0.0:80")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:80", addr)

	_, err = resolveAddr("", "80 80")
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
