package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundSkippable(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{name: "empty object", raw: `{}`, want: ErrNoAudio},
		{name: "empty audio", raw: `{"audio_base64": ""}`, want: ErrNoAudio},
		{name: "whitespace audio", raw: `{"audio_base64": "   "}`, want: ErrNoAudio},
		{name: "null", raw: `null`, want: ErrNoAudio},
		{name: "not json", raw: `hello`, want: ErrMalformed},
		{name: "wrong type", raw: `{"audio_base64": 42}`, want: ErrMalformed},
		{name: "array", raw: `[1,2]`, want: ErrMalformed},
		{name: "bad base64", raw: `{"audio_base64": "***"}`, want: ErrInvalidBase64},
		{name: "bare data url", raw: `{"audio_base64": "data:audio/webm;base64"}`, want: ErrNoAudio},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tc.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeInboundDefaultsToWebM(t *testing.T) {
	clip := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0xff}
	raw := `{"audio_base64":"` + base64.StdEncoding.EncodeToString(clip) + `"}`

	msg, err := DecodeInbound([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, clip, msg.Audio)
	assert.Equal(t, FormatWebM, msg.Format)
}

func TestDecodeInboundUnknownFormatFallsBack(t *testing.T) {
	for _, format := range []string{"m4a", "audio/mp4", "flac"} {
		msg, err := DecodeInbound([]byte(`{"audio_base64":"AAEC","format":"` + format + `"}`))
		require.NoError(t, err, format)
		assert.Equal(t, DefaultFormat, msg.Format, format)
		assert.Equal(t, []byte{0x00, 0x01, 0x02}, msg.Audio, format)
	}
}

func TestDecodeInboundClampsSampleRate(t *testing.T) {
	cases := []struct {
		rate string
		want int
	}{
		{rate: "4294967297", want: MaxSampleRate},
		{rate: "96000", want: MaxSampleRate},
		{rate: "1", want: MinSampleRate},
		{rate: "-5", want: 0},
		{rate: "22050", want: 22050},
	}

	for _, tc := range cases {
		msg, err := DecodeInbound([]byte(`{"audio_base64":"AAEC","format":"wav","sample_rate":` + tc.rate + `}`))
		require.NoError(t, err, tc.rate)
		assert.Equal(t, tc.want, msg.SampleRate, tc.rate)
	}

	// The clamped rate is what lands in the expanded WAV header.
	ulaw := base64.StdEncoding.EncodeToString([]byte{0xff, 0x7f})
	msg, err := DecodeInbound([]byte(`{"audio_base64":"` + ulaw + `","format":"pcmu","sample_rate":4294967297}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxSampleRate), binary.LittleEndian.Uint32(msg.Audio[24:28]))
}

func TestDecodeInboundAcceptsDataURLAndRawAlphabet(t *testing.T) {
	clip := []byte("RIFF????WAVEfmt ")

	dataURL := `{"audio_base64":"data:audio/wav;base64,` + base64.StdEncoding.EncodeToString(clip) + `","format":"audio/wav"}`
	msg, err := DecodeInbound([]byte(dataURL))
	require.NoError(t, err)
	assert.Equal(t, clip, msg.Audio)
	assert.Equal(t, FormatWAV, msg.Format)

	raw := `{"audio_base64":"` + base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff, 0x01}) + `"}`
	msg, err = DecodeInbound([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0xff, 0x01}, msg.Audio)
}

func TestDecodeInboundExpandsG711(t *testing.T) {
	ulaw := []byte{0xff, 0x7f, 0x00, 0x80}
	raw := `{"audio_base64":"` + base64.StdEncoding.EncodeToString(ulaw) + `","format":"pcmu"}`

	msg, err := DecodeInbound([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, FormatWAV, msg.Format)
	assert.Equal(t, G711SampleRate, msg.SampleRate)
	require.Len(t, msg.Audio, 44+2*len(ulaw))
	assert.Equal(t, "RIFF", string(msg.Audio[0:4]))
	assert.Equal(t, "WAVE", string(msg.Audio[8:12]))
	assert.Equal(t, uint32(G711SampleRate), binary.LittleEndian.Uint32(msg.Audio[24:28]))
	assert.Equal(t, uint32(2*len(ulaw)), binary.LittleEndian.Uint32(msg.Audio[40:44]))
}

func TestDecodeInboundG711CustomRate(t *testing.T) {
	alaw := []byte{0xd5, 0x55}
	raw := `{"audio_base64":"` + base64.StdEncoding.EncodeToString(alaw) + `","format":"alaw","sample_rate":16000}`

	msg, err := DecodeInbound([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 16000, msg.SampleRate)
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(msg.Audio[24:28]))
}

func TestEncodeOutboundEmptyAudio(t *testing.T) {
	data, err := EncodeOutbound(OutboundMessage{Text: "only text"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"only text","audio_base64":""}`, string(data))
}

func TestEncodeOutboundWithAudio(t *testing.T) {
	audio := []byte{1, 2, 3, 4}
	data, err := EncodeOutbound(OutboundMessage{Text: "hi there", Audio: audio})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi there","audio_base64":"AQIDBA=="}`, string(data))
}

func TestAudioRoundTrip(t *testing.T) {
	clips := [][]byte{
		{0x00},
		{0xff, 0xfe, 0xfd},
		bytes.Repeat([]byte{0x52, 0x49, 0x46, 0x46}, 1024),
	}

	for _, clip := range clips {
		inbound, err := EncodeInbound(InboundMessage{Audio: clip, Format: FormatWAV})
		require.NoError(t, err)

		decoded, err := DecodeInbound(inbound)
		require.NoError(t, err)
		assert.Equal(t, clip, decoded.Audio)

		outbound, err := EncodeOutbound(OutboundMessage{Text: "t", Audio: decoded.Audio})
		require.NoError(t, err)

		reply, err := DecodeOutbound(outbound)
		require.NoError(t, err)
		assert.Equal(t, clip, reply.Audio)
	}
}

func TestReleaseZeroesBuffers(t *testing.T) {
	buf := []byte{9, 9, 9}
	in := InboundMessage{Audio: buf}
	in.Release()

	assert.Nil(t, in.Audio)
	assert.Equal(t, []byte{0, 0, 0}, buf)

	var nilMsg *OutboundMessage
	assert.NotPanics(t, func() { nilMsg.Release() })
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "audio.webm", FileName(FormatWebM))
	assert.Equal(t, "audio.wav", FileName(FormatPCMU))
	assert.Equal(t, "audio.wav", FileName(""))
}
