package codec

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zaf/g711"
)

// Audio formats accepted in the inbound "format" field.
const (
	FormatWebM = "webm"
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatOGG  = "ogg"
	FormatPCMU = "pcmu"
	FormatPCMA = "pcma"
)

// DefaultFormat is assumed when a client omits "format"; browsers record webm.
const DefaultFormat = FormatWebM

// G711SampleRate is the telephony rate assumed for pcmu/pcma payloads.
const G711SampleRate = 8000

// Bounds applied to the inbound "sample_rate" field.
const (
	MinSampleRate = 8000
	MaxSampleRate = 48000
)

var formatAliases = map[string]string{
	"":           DefaultFormat,
	"webm":       FormatWebM,
	"audio/webm": FormatWebM,
	"wav":        FormatWAV,
	"wave":       FormatWAV,
	"audio/wav":  FormatWAV,
	"mp3":        FormatMP3,
	"mpeg":       FormatMP3,
	"audio/mpeg": FormatMP3,
	"ogg":        FormatOGG,
	"audio/ogg":  FormatOGG,
	"pcmu":       FormatPCMU,
	"ulaw":       FormatPCMU,
	"mulaw":      FormatPCMU,
	"pcma":       FormatPCMA,
	"alaw":       FormatPCMA,
}

// normalizeFormat maps a declared format onto a known one. Unrecognized
// containers are passed on as DefaultFormat and left to the transcriber.
func normalizeFormat(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexByte(key, ';'); idx >= 0 {
		key = strings.TrimSpace(key[:idx])
	}
	if format, ok := formatAliases[key]; ok {
		return format
	}
	return DefaultFormat
}

// clampSampleRate keeps a client-declared rate within what a WAV header and the
// speech providers accept. Zero or negative means unset.
func clampSampleRate(rate int) int {
	if rate <= 0 {
		return 0
	}
	return min(max(rate, MinSampleRate), MaxSampleRate)
}

func isG711(format string) bool {
	return format == FormatPCMU || format == FormatPCMA
}

// expandG711 turns a companded payload into a mono 16-bit WAV file.
func expandG711(msg InboundMessage) (InboundMessage, error) {
	var pcm []byte
	switch msg.Format {
	case FormatPCMU:
		pcm = g711.DecodeUlaw(msg.Audio)
	case FormatPCMA:
		pcm = g711.DecodeAlaw(msg.Audio)
	default:
		return InboundMessage{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, msg.Format)
	}

	rate := msg.SampleRate
	if rate <= 0 {
		rate = G711SampleRate
	}

	wav := WrapPCM16(pcm, rate, 1)
	clear(pcm)

	return InboundMessage{Audio: wav, Format: FormatWAV, SampleRate: rate}, nil
}

// WrapPCM16 prefixes little-endian 16-bit PCM samples with a canonical 44-byte
// RIFF/WAVE header.
func WrapPCM16(pcm []byte, sampleRate, channels int) []byte {
	const (
		headerSize    = 44
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, headerSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[headerSize:], pcm)

	return out
}

// FileName returns a name whose extension tells transcription providers the
// container format.
func FileName(format string) string {
	if format == "" || isG711(format) {
		format = FormatWAV
	}
	return "audio." + format
}
