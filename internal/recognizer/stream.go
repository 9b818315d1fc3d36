package recognizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/ambiware-labs/dictate/internal/config"
	"github.com/ambiware-labs/dictate/internal/transcript"
)

// Streamer drives a Recognizer over a live sample stream by periodically
// re-decoding the whole accumulated buffer. Each decode replaces the
// unconfirmed tail; a segment is promoted to confirmed once the decoder has
// produced it verbatim in ConfirmationThreshold consecutive passes. The
// trailing segment is never promoted mid-stream because the decoder is still
// revising it.
type Streamer struct {
	rec        Recognizer
	interval   time.Duration
	threshold  int
	sampleRate int
	log        *slog.Logger
}

func NewStreamer(rec Recognizer, cfg config.RecognizerConfig, sampleRate int, log *slog.Logger) *Streamer {
	threshold := cfg.ConfirmationThreshold
	if threshold < 1 {
		threshold = 1
	}
	return &Streamer{
		rec:        rec,
		interval:   time.Duration(cfg.PartialEveryMS) * time.Millisecond,
		threshold:  threshold,
		sampleRate: sampleRate,
		log:        log.With(slog.String("component", "recognizer")),
	}
}

// Stream consumes source until it closes or ctx is cancelled, invoking
// onChange after each decode that alters the state. Decode failures are
// logged and skipped; the next interval retries over the grown buffer.
// The final catch-up decode over the complete capture is the caller's
// responsibility, after Stream returns.
func (s *Streamer) Stream(ctx context.Context, source <-chan []float32, onChange StateHandler) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var buf []float32
	decoded := 0
	tr := newTracker(s.threshold)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-source:
			if !ok {
				return nil
			}
			buf = append(buf, chunk...)
		case <-ticker.C:
			if len(buf) == decoded {
				continue
			}
			segs, err := s.rec.Transcribe(ctx, buf, s.sampleRate)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warn("partial decode failed", slog.String("error", err.Error()))
				continue
			}
			decoded = len(buf)
			if state, changed := tr.observe(segs); changed {
				onChange(state)
			}
		}
	}
}

// tracker promotes decoder segments to confirmed once they repeat verbatim
// across consecutive decodes. Confirmed segments are frozen: a later decode
// that disagrees with them is ignored for that prefix.
type tracker struct {
	threshold int
	confirmed []transcript.Segment
	tail      []transcript.Segment
	streaks   []int
}

func newTracker(threshold int) *tracker {
	return &tracker{threshold: threshold}
}

func (t *tracker) observe(segs []transcript.Segment) (State, bool) {
	var tail []transcript.Segment
	if len(segs) > len(t.confirmed) {
		tail = segs[len(t.confirmed):]
	}

	streaks := make([]int, len(tail))
	for i, seg := range tail {
		if i < len(t.tail) && t.tail[i].Text == seg.Text {
			streaks[i] = t.streaks[i] + 1
		} else {
			streaks[i] = 1
		}
	}

	promote := 0
	for promote < len(tail)-1 && streaks[promote] >= t.threshold {
		promote++
	}

	changed := promote > 0 || !sameSegments(t.tail, tail[promote:])
	t.confirmed = append(t.confirmed, tail[:promote]...)
	t.tail = append([]transcript.Segment(nil), tail[promote:]...)
	t.streaks = append([]int(nil), streaks[promote:]...)

	return t.state(), changed
}

func (t *tracker) state() State {
	return State{
		Confirmed:   append([]transcript.Segment(nil), t.confirmed...),
		Unconfirmed: append([]transcript.Segment(nil), t.tail...),
	}
}

func sameSegments(a, b []transcript.Segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Text != b[i].Text {
			return false
		}
	}
	return true
}
