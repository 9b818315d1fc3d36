package recognizer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ambiware-labs/dictate/internal/config"
	"github.com/ambiware-labs/dictate/internal/transcript"
)

func segs(texts ...string) []transcript.Segment {
	out := make([]transcript.Segment, len(texts))
	for i, t := range texts {
		out[i] = transcript.Segment{Text: t}
	}
	return out
}

func texts(in []transcript.Segment) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s.Text
	}
	return out
}

func equal(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTrackerConfirmsAfterRepeatedDecodes(t *testing.T) {
	tr := newTracker(2)

	state, changed := tr.observe(segs("hello world"))
	if !changed || len(state.Confirmed) != 0 || len(state.Unconfirmed) != 1 {
		t.Fatalf("first decode: %+v changed=%v", state, changed)
	}

	// Same segment repeated, but it is the trailing one: never promoted.
	state, _ = tr.observe(segs("hello world"))
	if len(state.Confirmed) != 0 {
		t.Fatalf("trailing segment promoted: %+v", state)
	}

	// A second segment appears; "hello world" has now been seen twice.
	state, changed = tr.observe(segs("hello world", "this is"))
	if !changed {
		t.Fatalf("expected change when new segment appears")
	}
	if !equal(texts(state.Confirmed), "hello world") {
		t.Fatalf("confirmed = %v", texts(state.Confirmed))
	}
	if !equal(texts(state.Unconfirmed), "this is") {
		t.Fatalf("unconfirmed = %v", texts(state.Unconfirmed))
	}
}

func TestTrackerRevisionResetsStreak(t *testing.T) {
	tr := newTracker(2)

	tr.observe(segs("hello wor"))
	tr.observe(segs("hello world", "this"))
	// The revised first segment has streak 1; nothing confirms yet.
	state, _ := tr.observe(segs("hello world", "this is"))
	if !equal(texts(state.Confirmed), "hello world") {
		t.Fatalf("confirmed = %v (streak should hit 2 only on the repeat)", texts(state.Confirmed))
	}
}

func TestTrackerConfirmedIsFrozen(t *testing.T) {
	tr := newTracker(1)

	tr.observe(segs("one", "two"))
	// Threshold 1 promotes "one" immediately. A later decode disagreeing on
	// it must not rewrite the confirmed prefix.
	state, _ := tr.observe(segs("ONE REVISED", "two", "three"))
	if !equal(texts(state.Confirmed), "one", "two") {
		t.Fatalf("confirmed = %v", texts(state.Confirmed))
	}
	if !equal(texts(state.Unconfirmed), "three") {
		t.Fatalf("unconfirmed = %v", texts(state.Unconfirmed))
	}
}

func TestTrackerUnchangedDecodeReportsNoChange(t *testing.T) {
	tr := newTracker(3)

	tr.observe(segs("alpha"))
	if _, changed := tr.observe(segs("alpha")); changed {
		t.Fatalf("identical decode reported a change")
	}
}

// scriptedRecognizer returns the next scripted decode each call.
type scriptedRecognizer struct {
	mu      sync.Mutex
	script  [][]transcript.Segment
	calls   int
	samples []int
}

func (r *scriptedRecognizer) Transcribe(_ context.Context, samples []float32, _ int) ([]transcript.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, len(samples))
	idx := r.calls
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	r.calls++
	return r.script[idx], nil
}

func testStreamer(rec Recognizer, intervalMS, threshold int) *Streamer {
	cfg := config.RecognizerConfig{PartialEveryMS: intervalMS, ConfirmationThreshold: threshold}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStreamer(rec, cfg, 16000, log)
}

func TestStreamerDecodesGrowingBuffer(t *testing.T) {
	rec := &scriptedRecognizer{script: [][]transcript.Segment{
		segs("hello"),
		segs("hello world", "how"),
		segs("hello world", "how are"),
	}}
	s := testStreamer(rec, 10, 2)

	source := make(chan []float32, 8)
	var states []State
	done := make(chan error, 1)
	go func() {
		done <- s.Stream(context.Background(), source, func(st State) {
			states = append(states, st)
		})
	}()

	for i := 0; i < 3; i++ {
		source <- make([]float32, 160)
		time.Sleep(30 * time.Millisecond)
	}
	close(source)
	if err := <-done; err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(states) < 3 {
		t.Fatalf("expected at least 3 state changes, got %d", len(states))
	}
	last := states[len(states)-1]
	if !equal(texts(last.Confirmed), "hello world") {
		t.Fatalf("confirmed = %v", texts(last.Confirmed))
	}
	if !equal(texts(last.Unconfirmed), "how are") {
		t.Fatalf("unconfirmed = %v", texts(last.Unconfirmed))
	}

	// Each decode covers the whole accumulated buffer, so lengths grow.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := 1; i < len(rec.samples); i++ {
		if rec.samples[i] < rec.samples[i-1] {
			t.Fatalf("decode window shrank: %v", rec.samples)
		}
	}
}

func TestStreamerSkipsDecodeWithoutNewSamples(t *testing.T) {
	rec := &scriptedRecognizer{script: [][]transcript.Segment{segs("hi")}}
	s := testStreamer(rec, 10, 2)

	source := make(chan []float32, 1)
	source <- make([]float32, 160)
	done := make(chan error, 1)
	go func() {
		done <- s.Stream(context.Background(), source, func(State) {})
	}()

	time.Sleep(80 * time.Millisecond)
	close(source)
	if err := <-done; err != nil {
		t.Fatalf("Stream: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.calls != 1 {
		t.Fatalf("expected exactly one decode for one chunk, got %d", rec.calls)
	}
}

func TestStreamerStopsOnContextCancel(t *testing.T) {
	rec := &scriptedRecognizer{script: [][]transcript.Segment{segs("hi")}}
	s := testStreamer(rec, 10, 2)

	ctx, cancel := context.WithCancel(context.Background())
	source := make(chan []float32)
	done := make(chan error, 1)
	go func() {
		done <- s.Stream(ctx, source, func(State) {})
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Stream did not return after cancel")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	if _, err := New(config.RecognizerConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := New(config.RecognizerConfig{Mode: "exec", Command: "whisper-cli --threads 4"}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if _, err := New(config.RecognizerConfig{Mode: "exec", Command: ""}); err == nil {
		t.Fatalf("expected error for empty exec command")
	}
	if _, err := New(config.RecognizerConfig{Mode: "grpc"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestMockRecognizerReportsDuration(t *testing.T) {
	rec := NewMockRecognizer()
	segs, err := rec.Transcribe(context.Background(), make([]float32, 16000), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segs) != 1 || segs[0].End != time.Second {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	empty, err := rec.Transcribe(context.Background(), nil, 16000)
	if err != nil || empty != nil {
		t.Fatalf("empty input: %v %v", empty, err)
	}
}
