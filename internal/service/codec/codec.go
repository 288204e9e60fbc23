// Package codec converts between session WebSocket frames and the in-memory
// inbound/outbound messages of a turn.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

var (
	// ErrMalformed means the frame is not a JSON object of the expected shape.
	ErrMalformed = errors.New("malformed message")
	// ErrNoAudio means the audio field is absent or empty.
	ErrNoAudio = errors.New("message has no audio")
	// ErrInvalidBase64 means the audio field is not valid base64.
	ErrInvalidBase64 = errors.New("audio is not valid base64")
	// ErrUnsupportedFormat means a format cannot be converted as requested.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

var api = sonic.ConfigStd

// InboundMessage is one client request. It only lives for the duration of a turn.
type InboundMessage struct {
	Audio      []byte
	Format     string
	SampleRate int
}

// Release zeroes and drops the decoded audio buffer.
func (m *InboundMessage) Release() {
	if m == nil {
		return
	}
	clear(m.Audio)
	m.Audio = nil
}

// OutboundMessage is the single reply produced by a turn. Audio is empty when
// synthesis was unavailable.
type OutboundMessage struct {
	Text  string
	Audio []byte
}

// Release zeroes and drops the synthesized audio buffer.
func (m *OutboundMessage) Release() {
	if m == nil {
		return
	}
	clear(m.Audio)
	m.Audio = nil
}

type inboundWire struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
}

type outboundWire struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audio_base64"`
}

// DecodeInbound parses a client frame and returns the binary audio ready for
// transcription. G.711 payloads are expanded to 16-bit PCM and framed as WAV.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var wire inboundWire
	if err := api.Unmarshal(data, &wire); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	encoded := stripDataURL(strings.TrimSpace(wire.AudioBase64))
	if encoded == "" {
		return InboundMessage{}, ErrNoAudio
	}

	audio, err := decodeBase64(encoded)
	if err != nil {
		return InboundMessage{}, err
	}
	if len(audio) == 0 {
		return InboundMessage{}, ErrNoAudio
	}

	msg := InboundMessage{
		Audio:      audio,
		Format:     normalizeFormat(wire.Format),
		SampleRate: clampSampleRate(wire.SampleRate),
	}
	if isG711(msg.Format) {
		expanded, err := expandG711(msg)
		clear(audio)
		if err != nil {
			return InboundMessage{}, err
		}
		msg = expanded
	}

	return msg, nil
}

// EncodeInbound builds a client frame. The speech tester uses it to drive a
// running server.
func EncodeInbound(msg InboundMessage) ([]byte, error) {
	wire := inboundWire{
		AudioBase64: base64.StdEncoding.EncodeToString(msg.Audio),
		Format:      msg.Format,
		SampleRate:  msg.SampleRate,
	}
	return api.Marshal(wire)
}

// EncodeOutbound packages a reply into its wire form.
func EncodeOutbound(msg OutboundMessage) ([]byte, error) {
	wire := outboundWire{Text: msg.Text}
	if len(msg.Audio) > 0 {
		wire.AudioBase64 = base64.StdEncoding.EncodeToString(msg.Audio)
	}

	data, err := api.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode outbound: %w", err)
	}
	return data, nil
}

// DecodeOutbound parses a server reply.
func DecodeOutbound(data []byte) (OutboundMessage, error) {
	var wire outboundWire
	if err := api.Unmarshal(data, &wire); err != nil {
		return OutboundMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := OutboundMessage{Text: wire.Text}
	if wire.AudioBase64 != "" {
		audio, err := decodeBase64(wire.AudioBase64)
		if err != nil {
			return OutboundMessage{}, err
		}
		msg.Audio = audio
	}
	return msg, nil
}

// stripDataURL drops a "data:<mime>;base64," prefix.
func stripDataURL(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		return s[idx+1:]
	}
	return ""
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(s string) ([]byte, error) {
	var lastErr error
	for _, enc := range base64Encodings {
		out, err := enc.DecodeString(s)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, lastErr)
}
