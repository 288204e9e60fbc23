package pipeline

import "fmt"

// Stage names one step of a turn.
type Stage string

const (
	StageDecode     Stage = "decode"
	StageTranscribe Stage = "transcribe"
	StageGenerate   Stage = "generate"
	StageSynthesize Stage = "synthesize"
	StageEncode     Stage = "encode"
)

// DecodeError: the inbound frame had no usable audio. The turn is skipped.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("decode inbound: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// TranscriptionError: the transcription adapter failed. The turn is skipped.
type TranscriptionError struct{ Err error }

func (e *TranscriptionError) Error() string { return fmt.Sprintf("transcription failed: %v", e.Err) }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// GenerationError: the reply adapter failed. The turn continues with FallbackReply.
type GenerationError struct{ Err error }

func (e *GenerationError) Error() string { return fmt.Sprintf("generation failed: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError: the speech adapter failed. The reply is sent without audio.
type SynthesisError struct{ Err error }

func (e *SynthesisError) Error() string { return fmt.Sprintf("synthesis failed: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }

// EncodeError: the reply could not be serialized. The turn is skipped.
type EncodeError struct{ Err error }

func (e *EncodeError) Error() string { return fmt.Sprintf("encode outbound: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }
