// Package volcengine implements transcription and synthesis adapters on top
// of the Volcengine binary WebSocket speech protocol.
package volcengine

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const protocolVersion = 0b0001

// MessageType is the high nibble of the second header byte.
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// Flags is the low nibble of the second header byte.
type Flags uint8

const (
	NoSequence       Flags = 0b0000
	PositiveSequence Flags = 0b0001
	LastNoSequence   Flags = 0b0010
	NegativeSequence Flags = 0b0011
	WithEvent        Flags = 0b0100

	sequenceMask Flags = 0b0011
)

// Serialization of the payload.
type Serialization uint8

const (
	RawPayload  Serialization = 0b0000
	JSONPayload Serialization = 0b0001
)

// Compression of the payload.
type Compression uint8

const (
	Uncompressed Compression = 0b0000
	Gzip         Compression = 0b0001
)

// Event identifies connection and session lifecycle frames.
type Event int32

const (
	EventNone               Event = 0
	EventStartConnection    Event = 1
	EventFinishConnection   Event = 2
	EventConnectionStarted  Event = 50
	EventConnectionFailed   Event = 51
	EventConnectionFinished Event = 52
	EventSessionStarted     Event = 150
	EventSessionFinished    Event = 152
	EventSessionFailed      Event = 153
)

// ErrShortFrame means the buffer ended before a declared field.
var ErrShortFrame = errors.New("volcengine: truncated frame")

// Frame is one protocol message. Sequence, Event, SessionID and ConnectID are
// only present on the wire when Flags and Event call for them.
type Frame struct {
	Type          MessageType
	Flags         Flags
	Serialization Serialization
	Compression   Compression

	Sequence  int32
	Event     Event
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *Frame) hasSequence() bool {
	s := f.Flags & sequenceMask
	return s == PositiveSequence || s == NegativeSequence
}

// IsLast reports whether the sender marked this as its final packet.
func (f *Frame) IsLast() bool {
	s := f.Flags & sequenceMask
	return s == LastNoSequence || s == NegativeSequence
}

func (f *Frame) hasEvent() bool { return f.Flags&WithEvent != 0 }

func carriesSessionID(e Event) bool {
	switch e {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return false
	}
	return true
}

func carriesConnectID(e Event) bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

// MarshalBinary encodes the frame with a 4-byte header. The payload is written
// as is; compress it first if Compression says so.
func (f *Frame) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(16 + len(f.Payload))

	buf.WriteByte(protocolVersion<<4 | 0b0001)
	buf.WriteByte(byte(f.Type)<<4 | byte(f.Flags))
	buf.WriteByte(byte(f.Serialization)<<4 | byte(f.Compression))
	buf.WriteByte(0)

	putU32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	putString := func(s string) {
		putU32(uint32(len(s)))
		buf.WriteString(s)
	}

	if f.hasSequence() {
		putU32(uint32(f.Sequence))
	}
	if f.hasEvent() {
		putU32(uint32(f.Event))
		if carriesSessionID(f.Event) {
			putString(f.SessionID)
		}
		if carriesConnectID(f.Event) {
			putString(f.ConnectID)
		}
	}
	if f.Type == ErrorMessage {
		putU32(f.ErrorCode)
	}
	putU32(uint32(len(f.Payload)))
	buf.Write(f.Payload)

	return buf.Bytes(), nil
}

// ParseFrame decodes one binary WebSocket message.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < 4 {
		return nil, ErrShortFrame
	}
	if v := data[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("volcengine: unsupported protocol version %d", v)
	}
	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || len(data) < headerSize {
		return nil, ErrShortFrame
	}

	f := &Frame{
		Type:          MessageType(data[1] >> 4),
		Flags:         Flags(data[1] & 0x0F),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0F),
	}

	r := bytes.NewReader(data[headerSize:])
	readU32 := func() (uint32, error) {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, ErrShortFrame
		}
		return binary.BigEndian.Uint32(b[:]), nil
	}
	readBytes := func() ([]byte, error) {
		n, err := readU32()
		if err != nil {
			return nil, err
		}
		if int64(n) > int64(r.Len()) {
			return nil, ErrShortFrame
		}
		out := make([]byte, n)
		_, _ = io.ReadFull(r, out)
		return out, nil
	}

	if f.hasSequence() {
		seq, err := readU32()
		if err != nil {
			return nil, err
		}
		f.Sequence = int32(seq)
	}
	if f.hasEvent() {
		ev, err := readU32()
		if err != nil {
			return nil, err
		}
		f.Event = Event(int32(ev))
		if carriesSessionID(f.Event) {
			id, err := readBytes()
			if err != nil {
				return nil, err
			}
			f.SessionID = string(id)
		}
		if carriesConnectID(f.Event) {
			id, err := readBytes()
			if err != nil {
				return nil, err
			}
			f.ConnectID = string(id)
		}
	}
	if f.Type == ErrorMessage {
		code, err := readU32()
		if err != nil {
			return nil, err
		}
		f.ErrorCode = code
	}

	payload, err := readBytes()
	if err != nil {
		return nil, err
	}
	f.Payload = payload
	return f, nil
}

// Body returns the payload with compression undone.
func (f *Frame) Body() ([]byte, error) {
	switch f.Compression {
	case Uncompressed:
		return f.Payload, nil
	case Gzip:
		if len(f.Payload) == 0 {
			return nil, nil
		}
		return gunzip(f.Payload)
	default:
		return nil, fmt.Errorf("volcengine: unsupported compression %d", f.Compression)
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// jsonRequest builds a gzip-compressed full client request.
func jsonRequest(body []byte) (*Frame, error) {
	payload, err := gzipBytes(body)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:          FullClientRequest,
		Serialization: JSONPayload,
		Compression:   Gzip,
		Payload:       payload,
	}, nil
}

// audioChunk builds an audio-only request. The last chunk carries a negated
// sequence number.
func audioChunk(chunk []byte, seq int32, last bool) (*Frame, error) {
	payload, err := gzipBytes(chunk)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Type:        AudioOnlyRequest,
		Flags:       PositiveSequence,
		Compression: Gzip,
		Sequence:    seq,
		Payload:     payload,
	}
	if last {
		f.Flags = NegativeSequence
		f.Sequence = -seq
	}
	return f, nil
}
