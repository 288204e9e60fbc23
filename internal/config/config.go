package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Provider names accepted by the adapter sections.
const (
	ProviderStatic = "static"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
	// ProviderVolcengine selects the openspeech WebSocket adapters.
	ProviderVolcengine = "volcengine"
)

// Config aggregates every setting of the service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Session       SessionConfig       `mapstructure:"session"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Generation    GenerationConfig    `mapstructure:"generation"`
	Synthesis     SynthesisConfig     `mapstructure:"synthesis"`
	Log           LogConfig           `mapstructure:"log"`
}

// ServerConfig describes the HTTP listener and websocket keepalive.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadDeadline time.Duration `mapstructure:"read_deadline"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SessionConfig describes per-connection conversation behavior.
type SessionConfig struct {
	SystemPrompt string        `mapstructure:"system_prompt"`
	HistoryCap   int           `mapstructure:"history_cap"`
	PinSystem    bool          `mapstructure:"pin_system"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	Voice        string        `mapstructure:"voice"`
	QueueSize    int           `mapstructure:"queue_size"`
}

// VolcengineAuth carries openspeech credentials shared by ASR and TTS.
type VolcengineAuth struct {
	AppID       string `mapstructure:"app_id"`
	AccessToken string `mapstructure:"access_token"`
	ResourceID  string `mapstructure:"resource_id"`
}

func (a VolcengineAuth) complete() bool {
	return strings.TrimSpace(a.AppID) != "" && strings.TrimSpace(a.AccessToken) != ""
}

type TranscriptionConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	StaticText     string `mapstructure:"static_text"`
	VolcengineAuth `mapstructure:",squash"`
}

type GenerationConfig struct {
	Provider    string   `mapstructure:"provider"`
	APIKey      string   `mapstructure:"api_key"`
	AccessKey   string   `mapstructure:"access_key"`
	SecretKey   string   `mapstructure:"secret_key"`
	BaseURL     string   `mapstructure:"base_url"`
	Region      string   `mapstructure:"region"`
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
	StaticText  string   `mapstructure:"static_text"`
}

type SynthesisConfig struct {
	Provider       string  `mapstructure:"provider"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	Format         string  `mapstructure:"format"`
	StaticFile     string  `mapstructure:"static_file"`
	Speaker        string  `mapstructure:"speaker"`
	Language       string  `mapstructure:"language"`
	Speed          float64 `mapstructure:"speed"`
	VolcengineAuth `mapstructure:",squash"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"server.addr":          ":8000",
	"server.ping_interval": 54 * time.Second,
	"server.read_deadline": 60 * time.Second,
	"server.write_timeout": 10 * time.Second,

	"session.system_prompt": "You are a helpful AI avatar.",
	"session.history_cap":   10,
	"session.pin_system":    false,
	"session.stage_timeout": 60 * time.Second,
	"session.voice":         "alloy",
	"session.queue_size":    8,

	"transcription.provider":     ProviderStatic,
	"transcription.api_key":      "",
	"transcription.base_url":     "",
	"transcription.model":        "whisper-1",
	"transcription.language":     "",
	"transcription.static_text":  "",
	"transcription.app_id":       "",
	"transcription.access_token": "",
	"transcription.resource_id":  "",

	"generation.provider":    ProviderStatic,
	"generation.api_key":     "",
	"generation.access_key":  "",
	"generation.secret_key":  "",
	"generation.base_url":    "",
	"generation.region":      "cn-beijing",
	"generation.model":       "",
	"generation.static_text": "",

	"synthesis.provider":     ProviderStatic,
	"synthesis.api_key":      "",
	"synthesis.base_url":     "",
	"synthesis.model":        "tts-1",
	"synthesis.format":       "wav",
	"synthesis.static_file":  "assets/response_sample.wav",
	"synthesis.speaker":      "",
	"synthesis.language":     "",
	"synthesis.speed":        1.0,
	"synthesis.app_id":       "",
	"synthesis.access_token": "",
	"synthesis.resource_id":  "",

	"log.level":  "info",
	"log.format": "json",
}

// Extra environment names accepted for a key, tried in order after the
// derived one (for example SERVER_ADDR).
var envAliases = map[string][]string{
	"transcription.api_key":      {"OPENAI_API_KEY"},
	"synthesis.api_key":          {"OPENAI_API_KEY"},
	"generation.api_key":         {"ARK_API_KEY", "OPENAI_API_KEY"},
	"generation.access_key":      {"ARK_ACCESS_KEY"},
	"generation.secret_key":      {"ARK_SECRET_KEY"},
	"generation.base_url":        {"ARK_BASE_URL"},
	"generation.region":          {"ARK_REGION"},
	"generation.temperature":     {"ARK_TEMPERATURE"},
	"generation.max_tokens":      {"ARK_MAX_TOKENS"},
	"transcription.app_id":       {"SPEECH_APP_ID"},
	"transcription.access_token": {"SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY"},
	"transcription.language":     {"SPEECH_ASR_LANGUAGE"},
	"synthesis.app_id":           {"SPEECH_APP_ID"},
	"synthesis.access_token":     {"SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY"},
	"synthesis.speaker":          {"SPEECH_TTS_VOICE"},
	"synthesis.language":         {"SPEECH_TTS_LANGUAGE"},
	"synthesis.speed":            {"SPEECH_TTS_SPEED"},
	"session.pin_system":         {"HISTORY_PIN_SYSTEM"},
	"session.stage_timeout":      {"STAGE_TIMEOUT"},
}

// Load reads configuration from an optional YAML file (CONFIG_PATH, or
// ./config.yaml) overlaid by environment variables.
func Load() (*Config, error) {
	return load(viper.New(), strings.TrimSpace(os.Getenv("CONFIG_PATH")))
}

func load(v *viper.Viper, path string) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		derived := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, derived}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Addr, os.Getenv("PORT"))
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveAddr lets PORT override the listen address, accepting either
// "8000", ":8000" or "127.0.0.1:8000".
func resolveAddr(addr, port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = strings.TrimSpace(addr)
	}
	if port == "" {
		return ":8000", nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid listen address %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func (c *Config) normalize() {
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	c.Synthesis.Provider = strings.ToLower(strings.TrimSpace(c.Synthesis.Provider))
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	c.Synthesis.APIKey = strings.TrimSpace(c.Synthesis.APIKey)
}

// Validate rejects unknown providers, missing credentials of selected
// providers and out-of-range values.
func (c *Config) Validate() error {
	var errs []error

	if c.Session.HistoryCap < 1 {
		errs = append(errs, fmt.Errorf("session.history_cap must be at least 1, got %d", c.Session.HistoryCap))
	}
	if c.Session.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("session.queue_size must be at least 1, got %d", c.Session.QueueSize))
	}
	if c.Session.StageTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.stage_timeout must not be negative"))
	}
	if c.Server.PingInterval <= 0 || c.Server.ReadDeadline <= c.Server.PingInterval {
		errs = append(errs, fmt.Errorf("server.read_deadline (%s) must exceed server.ping_interval (%s)", c.Server.ReadDeadline, c.Server.PingInterval))
	}

	switch c.Transcription.Provider {
	case ProviderStatic:
	case ProviderOpenAI:
		if c.Transcription.APIKey == "" {
			errs = append(errs, errors.New("transcription.api_key is required for the openai provider"))
		}
	case ProviderVolcengine:
		if !c.Transcription.complete() {
			errs = append(errs, errors.New("transcription.app_id and transcription.access_token are required for the volcengine provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transcription.provider %q", c.Transcription.Provider))
	}

	switch c.Generation.Provider {
	case ProviderStatic:
	case ProviderOpenAI:
		if c.Generation.APIKey == "" {
			errs = append(errs, errors.New("generation.api_key is required for the openai provider"))
		}
	case ProviderArk:
		if !c.Generation.ArkEnabled() {
			errs = append(errs, errors.New("ark provider needs generation.model and an api key or access/secret key pair"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generation.provider %q", c.Generation.Provider))
	}

	switch c.Synthesis.Provider {
	case ProviderStatic:
	case ProviderOpenAI:
		if c.Synthesis.APIKey == "" {
			errs = append(errs, errors.New("synthesis.api_key is required for the openai provider"))
		}
	case ProviderVolcengine:
		if !c.Synthesis.complete() {
			errs = append(errs, errors.New("synthesis.app_id and synthesis.access_token are required for the volcengine provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown synthesis.provider %q", c.Synthesis.Provider))
	}

	return errors.Join(errs...)
}

// ArkEnabled reports whether the Ark credentials and model are present.
func (c GenerationConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the generation settings.
func (c GenerationConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials or model missing: need generation.model plus ARK_API_KEY or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	})
}

// TemperatureOrZero flattens the optional temperature for clients that take a value.
func (c GenerationConfig) TemperatureOrZero() float32 {
	if c.Temperature == nil {
		return 0
	}
	return float32(*c.Temperature)
}

// MaxTokensOrZero flattens the optional token limit.
func (c GenerationConfig) MaxTokensOrZero() int {
	if c.MaxTokens == nil {
		return 0
	}
	return *c.MaxTokens
}
