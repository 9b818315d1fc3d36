package recognizer

import (
	"context"
	"fmt"
	"time"

	"github.com/ambiware-labs/dictate/internal/transcript"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a backend that reports the audio duration
// instead of decoding it. Useful for wiring checks without a model.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32, sampleRate int) ([]transcript.Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	dur := time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))
	return []transcript.Segment{{
		Text:        fmt.Sprintf("mock transcript covering %s", dur.Round(10*time.Millisecond)),
		Start:       0,
		End:         dur,
		Probability: 1,
	}}, nil
}
