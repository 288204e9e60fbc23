package volcengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/codec"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

const (
	DefaultTTSEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
	DefaultSpeaker     = "zh_female_vv_uranus_bigtts"

	resourceStandard = "volc.service_type.10029"
	resourceMega     = "volc.megatts.default"
	resourceSeed     = "seed-tts-2.0"

	ttsSampleRate = 24000
	ttsOKCode     = 3000
)

// ErrEmptyAudio means the stream finished without any audio bytes.
var ErrEmptyAudio = errors.New("volcengine tts: no audio returned")

// speakerAliases maps the generic voice names used elsewhere in the service
// to Volcengine speakers.
var speakerAliases = map[string]string{
	"default":  DefaultSpeaker,
	"alloy":    DefaultSpeaker,
	"nova":     "zh_female_vv_uranus_bigtts",
	"shimmer":  "zh_female_vv_uranus_bigtts",
	"echo":     "zh_male_M392_conversation_wvae_bigtts",
	"onyx":     "zh_male_M392_conversation_wvae_bigtts",
	"en":       "en_female_amy_jupiter_bigtts",
	"english":  "en_female_amy_jupiter_bigtts",
	"narrator": "zh_male_M392_conversation_wvae_bigtts",
}

var seedHints = []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"}

// TTSConfig configures the unidirectional streaming synthesizer.
type TTSConfig struct {
	Credentials
	Endpoint string
	// ResourceID pins a resource; empty lets the speaker name pick.
	ResourceID string
	// Speaker is tried after the requested voice.
	Speaker string
	// Format is wav, mp3 or ogg_opus. wav is produced from raw PCM.
	Format   string
	Language string
	Speed    float32
}

// TTS is a pipeline.Synthesizer backed by one WebSocket per attempt.
type TTS struct {
	cfg    TTSConfig
	dialer *websocket.Dialer
	log    *zap.Logger
}

var _ pipeline.Synthesizer = (*TTS)(nil)

// NewTTS validates credentials and fills defaults.
func NewTTS(cfg TTSConfig, log *zap.Logger) (*TTS, error) {
	creds, err := cfg.Credentials.validate()
	if err != nil {
		return nil, err
	}
	cfg.Credentials = creds
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultTTSEndpoint
	}
	if cfg.Speaker == "" {
		cfg.Speaker = DefaultSpeaker
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format == "" {
		cfg.Format = codec.FormatWAV
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TTS{cfg: cfg, dialer: newDialer(), log: log}, nil
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	SpeedRatio float32 `json:"speed_ratio,omitempty"`
}

type ttsResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// wireFormat is the encoding requested from the service.
func (t *TTS) wireFormat() string {
	if t.cfg.Format == codec.FormatWAV {
		return "pcm"
	}
	return t.cfg.Format
}

// Synthesize tries each candidate speaker and, per speaker, each candidate
// resource until one is accepted. Only resource mismatches fall through.
func (t *TTS) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("volcengine tts: empty text")
	}

	var lastErr error
	for _, speaker := range speakerCandidates(voice, t.cfg.Speaker) {
		resources := resourceCandidates(speaker)
		if t.cfg.ResourceID != "" {
			resources = []string{t.cfg.ResourceID}
		}
		for _, resource := range resources {
			audio, err := t.synthesizeOnce(ctx, text, speaker, resource)
			if err == nil {
				return audio, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			t.log.Debug("volcengine tts: resource mismatch, trying next",
				zap.String("speaker", speaker), zap.String("resource", resource))
			lastErr = err
		}
	}
	return nil, lastErr
}

func (t *TTS) synthesizeOnce(ctx context.Context, text, speaker, resource string) ([]byte, error) {
	conn, release, err := dial(ctx, t.dialer, t.cfg.Endpoint, t.cfg.Credentials, resource, t.log)
	if err != nil {
		return nil, err
	}
	defer release()

	var req ttsRequest
	req.User.UID = "spatial-agent"
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.Language = t.cfg.Language
	req.ReqParams.AudioParams = ttsAudioParams{Format: t.wireFormat(), SampleRate: ttsSampleRate}
	if t.cfg.Speed > 0 && t.cfg.Speed != 1 {
		req.ReqParams.AudioParams.SpeedRatio = t.cfg.Speed
	}
	req.ReqParams.Additions = `{"disable_markdown_filter":false}`

	body, err := api.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("volcengine tts: encode request: %w", err)
	}
	if err := writeFrame(conn, &Frame{Type: FullClientRequest, Serialization: JSONPayload, Payload: body}); err != nil {
		return nil, fmt.Errorf("volcengine tts: send request: %w", err)
	}

	var audio bytes.Buffer
	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return nil, err
		}

		switch f.Type {
		case ErrorMessage:
			return nil, serverError(f)
		case AudioOnlyServerResponse:
			chunk, err := f.Body()
			if err != nil {
				return nil, fmt.Errorf("volcengine tts: %w", err)
			}
			audio.Write(chunk)
			if !f.IsLast() {
				continue
			}
		case FullServerResponse:
			body, err := f.Body()
			if err != nil {
				return nil, fmt.Errorf("volcengine tts: %w", err)
			}
			if len(body) > 0 {
				var resp ttsResponse
				if err := api.Unmarshal(body, &resp); err != nil {
					t.log.Debug("volcengine tts: skipping undecodable response", zap.Error(err))
				} else {
					if resp.Code != 0 && resp.Code != ttsOKCode {
						return nil, fmt.Errorf("volcengine tts: api error %d: %s", resp.Code, resp.Message)
					}
					if resp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(resp.Data)
						if err != nil {
							return nil, fmt.Errorf("volcengine tts: decode audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}
			finished := f.hasEvent() && f.Event == EventSessionFinished
			if !finished && !f.IsLast() {
				continue
			}
		default:
			continue
		}

		return t.finish(audio.Bytes())
	}
}

func (t *TTS) finish(audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if t.cfg.Format == codec.FormatWAV {
		return codec.WrapPCM16(audio, ttsSampleRate, 1), nil
	}
	return audio, nil
}

// resourceCandidates orders resource ids by how likely they serve speaker.
func resourceCandidates(speaker string) []string {
	speaker = strings.TrimSpace(speaker)
	if strings.HasPrefix(speaker, "S_") {
		return []string{resourceMega}
	}
	lower := strings.ToLower(speaker)
	for _, hint := range seedHints {
		if strings.Contains(lower, hint) {
			return []string{resourceSeed, resourceStandard}
		}
	}
	return []string{resourceStandard, resourceSeed}
}

// speakerCandidates resolves aliases and drops duplicates, requested first.
func speakerCandidates(requested, fallback string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := speakerAliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		out = append(out, s)
	}
	add(requested)
	add(fallback)
	if len(out) == 0 {
		out = append(out, DefaultSpeaker)
	}
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
