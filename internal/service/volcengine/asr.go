package volcengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/codec"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

const (
	DefaultASREndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	DefaultASRResource = "volc.bigasr.sauc.duration"

	asrChunkSize = 6400 // 200ms of 16 kHz mono 16-bit audio
	asrOKCode    = 20000000
)

// ErrUnsupportedContainer means the recognizer cannot take the clip's container.
// Browser webm recordings fall in this class.
var ErrUnsupportedContainer = errors.New("volcengine asr: unsupported audio container")

// asrFormats maps inbound formats to the service's format and codec fields.
var asrFormats = map[string][2]string{
	codec.FormatWAV: {"wav", "raw"},
	codec.FormatMP3: {"mp3", "raw"},
	codec.FormatOGG: {"ogg", "opus"},
	"pcm":           {"pcm", "raw"},
}

// ASRConfig configures the big-model streaming recognizer.
type ASRConfig struct {
	Credentials
	Endpoint   string
	ResourceID string
	Language   string
	// ChunkInterval paces audio packets; zero sends them back to back.
	ChunkInterval time.Duration
}

// ASR is a pipeline.Transcriber backed by one WebSocket per clip.
type ASR struct {
	cfg    ASRConfig
	dialer *websocket.Dialer
	log    *zap.Logger
}

var _ pipeline.Transcriber = (*ASR)(nil)

// NewASR validates credentials and fills endpoint defaults.
func NewASR(cfg ASRConfig, log *zap.Logger) (*ASR, error) {
	creds, err := cfg.Credentials.validate()
	if err != nil {
		return nil, err
	}
	cfg.Credentials = creds
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultASREndpoint
	}
	if cfg.ResourceID == "" {
		cfg.ResourceID = DefaultASRResource
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ASR{cfg: cfg, dialer: newDialer(), log: log}, nil
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Format   string `json:"format"`
		Language string `json:"language,omitempty"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn"`
		EnablePunc     bool   `json:"enable_punc"`
		ShowUtterances bool   `json:"show_utterances"`
		ResultType     string `json:"result_type"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances"`
	} `json:"result"`
}

func (r *asrResponse) text() string {
	if r.Result.Text != "" {
		return r.Result.Text
	}
	parts := make([]string, 0, len(r.Result.Utterances))
	for _, u := range r.Result.Utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

func (a *ASR) buildRequest(audio pipeline.Audio) (asrRequest, error) {
	var req asrRequest
	req.User.UID = "spatial-agent"

	format := audio.Format
	if format == "" {
		format = codec.FormatWAV
	}
	wire, ok := asrFormats[format]
	if !ok {
		return req, fmt.Errorf("%w: %q", ErrUnsupportedContainer, format)
	}
	req.Audio.Format = wire[0]
	req.Audio.Codec = wire[1]
	req.Audio.Language = a.cfg.Language
	req.Audio.Rate = 16000
	if audio.SampleRate > 0 {
		req.Audio.Rate = audio.SampleRate
	}
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req, nil
}

// Transcribe streams the clip and returns the final recognized text.
func (a *ASR) Transcribe(ctx context.Context, audio pipeline.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", errors.New("volcengine asr: empty audio")
	}
	request, err := a.buildRequest(audio)
	if err != nil {
		return "", err
	}

	conn, release, err := dial(ctx, a.dialer, a.cfg.Endpoint, a.cfg.Credentials, a.cfg.ResourceID, a.log)
	if err != nil {
		return "", err
	}
	defer release()

	body, err := api.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("volcengine asr: encode request: %w", err)
	}
	req, err := jsonRequest(body)
	if err != nil {
		return "", err
	}
	if err := writeFrame(conn, req); err != nil {
		return "", fmt.Errorf("volcengine asr: send request: %w", err)
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- a.sendAudio(ctx, conn, audio.Data) }()

	text, err := a.receive(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		// A send failure usually explains the read failure that followed.
		select {
		case sErr := <-sendErr:
			if sErr != nil {
				return "", fmt.Errorf("volcengine asr: send audio: %w", sErr)
			}
		default:
		}
		return "", err
	}
	return text, nil
}

// sendAudio writes the clip in fixed-size packets. The request frame takes
// sequence 1, so audio starts at 2.
func (a *ASR) sendAudio(ctx context.Context, conn *websocket.Conn, data []byte) error {
	seq := int32(2)
	for start := 0; start < len(data); start += asrChunkSize {
		end := min(start+asrChunkSize, len(data))
		last := end == len(data)

		f, err := audioChunk(data[start:end], seq, last)
		if err != nil {
			return err
		}
		if err := writeFrame(conn, f); err != nil {
			return err
		}
		seq++

		if last || a.cfg.ChunkInterval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.ChunkInterval):
		}
	}
	return nil
}

func (a *ASR) receive(ctx context.Context, conn *websocket.Conn) (string, error) {
	var text string
	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return "", err
		}

		switch f.Type {
		case ErrorMessage:
			return "", serverError(f)
		case FullServerResponse:
			body, err := f.Body()
			if err != nil {
				return "", fmt.Errorf("volcengine asr: %w", err)
			}
			var resp asrResponse
			if err := api.Unmarshal(body, &resp); err != nil {
				a.log.Debug("volcengine asr: skipping undecodable response", zap.Error(err))
				continue
			}
			if resp.Code != 0 && resp.Code != asrOKCode {
				return "", fmt.Errorf("volcengine asr: api error %d: %s", resp.Code, resp.Message)
			}
			if t := resp.text(); t != "" {
				text = t
			}
			if f.IsLast() || f.Sequence < 0 {
				return text, nil
			}
		}
	}
}
