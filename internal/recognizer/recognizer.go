package recognizer

import (
	"context"
	"fmt"

	"github.com/ambiware-labs/dictate/internal/config"
	"github.com/ambiware-labs/dictate/internal/transcript"
)

// State is the recognizer's current view of the utterance. Confirmed
// segments only grow; the unconfirmed tail is replaced wholesale on every
// decode.
type State struct {
	Confirmed   []transcript.Segment
	Unconfirmed []transcript.Segment
}

// StateHandler receives each state change during streaming. It is called
// from the streaming goroutine, never concurrently.
type StateHandler func(State)

// Recognizer abstracts speech-to-text backends. Samples are mono float32 at
// the given rate.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]transcript.Segment, error)
}

// New builds the configured backend.
func New(cfg config.RecognizerConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown recognizer mode %q", cfg.Mode)
	}
}
