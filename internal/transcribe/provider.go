package transcribe

import (
	"context"
	"fmt"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	// Transcribe submits a materialized audio artifact and returns its
	// plain-text transcript.
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Name() string  // "deepgram"
	Model() string // model identifier for logs
}

// Error reports a failed remote transcription call, wrapping its cause.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s transcription failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
