package audio

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
)

type fakeGraph struct {
	started int
	stopped int
	paused  int
	resumed int
	closed  int
	tap     func([]float32)
}

func (g *fakeGraph) Start() error  { g.started++; return nil }
func (g *fakeGraph) Stop() error   { g.stopped++; return nil }
func (g *fakeGraph) Pause() error  { g.paused++; return nil }
func (g *fakeGraph) Resume() error { g.resumed++; return nil }
func (g *fakeGraph) Close() error  { g.closed++; return nil }

func (g *fakeGraph) SetTap(tap func([]float32)) { g.tap = tap }

type fakeBuilder struct {
	graphs []*fakeGraph
	err    error
}

func (b *fakeBuilder) Build(dev Device, format Format) (Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := &fakeGraph{}
	b.graphs = append(b.graphs, g)
	return g, nil
}

func testEngine(t *testing.T) (*Engine, *fakeBuilder) {
	t.Helper()
	b := &fakeBuilder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(b, Format{SampleRate: 16000, Channels: 1}, 20, log), b
}

func TestEngineReusesGraphAcrossSessions(t *testing.T) {
	e, b := testEngine(t)
	dev := Device{UID: "core/USB Mic"}

	for i := 0; i < 3; i++ {
		if err := e.Start(dev, nil); err != nil {
			t.Fatalf("Start: %v", err)
		}
		e.Stop()
	}

	if e.Rebuilds() != 1 {
		t.Fatalf("expected one graph build across sessions, got %d", e.Rebuilds())
	}
	if len(b.graphs) != 1 || b.graphs[0].closed != 0 {
		t.Fatalf("cached graph was torn down: %+v", b.graphs)
	}
}

func TestEngineRebuildsOnDeviceChange(t *testing.T) {
	e, b := testEngine(t)

	if err := e.Start(Device{UID: "core/USB Mic"}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()
	if err := e.Start(Device{UID: "core/Headset"}, nil); err != nil {
		t.Fatalf("Start after device change: %v", err)
	}

	if e.Rebuilds() != 2 {
		t.Fatalf("expected rebuild on device change, got %d builds", e.Rebuilds())
	}
	old := b.graphs[0]
	if old.closed != 1 {
		t.Fatalf("old graph not closed before rebuild")
	}
	if old.tap != nil {
		t.Fatalf("old graph tap not detached before teardown")
	}
}

func TestEngineRebuildsMidRun(t *testing.T) {
	e, b := testEngine(t)

	if err := e.Start(Device{UID: "core/USB Mic"}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Device switch while running must stop the old graph before closing it.
	if err := e.Start(Device{UID: "core/Headset"}, nil); err != nil {
		t.Fatalf("Start on new device: %v", err)
	}

	old := b.graphs[0]
	if old.stopped != 1 || old.closed != 1 {
		t.Fatalf("old graph not stopped+closed: stopped=%d closed=%d", old.stopped, old.closed)
	}
	if b.graphs[1].started != 1 {
		t.Fatalf("new graph not started")
	}
}

func TestEngineInvalidateIsIdempotent(t *testing.T) {
	e, b := testEngine(t)

	if err := e.Start(Device{UID: "core/USB Mic"}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Invalidate()
	e.Invalidate()
	e.Invalidate()

	if b.graphs[0].closed != 1 {
		t.Fatalf("graph closed %d times, want 1", b.graphs[0].closed)
	}

	if err := e.Start(Device{UID: "core/USB Mic"}, nil); err != nil {
		t.Fatalf("Start after invalidate: %v", err)
	}
	if e.Rebuilds() != 2 {
		t.Fatalf("expected rebuild after invalidate, got %d builds", e.Rebuilds())
	}
}

func TestEnginePauseResume(t *testing.T) {
	e, b := testEngine(t)
	dev := Device{UID: "core/USB Mic"}

	// Pause before any graph exists is a no-op.
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause without graph: %v", err)
	}

	if err := e.Start(dev, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	g := b.graphs[0]

	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := e.Pause(); err != nil {
		t.Fatalf("second Pause: %v", err)
	}
	if g.paused != 1 {
		t.Fatalf("pause forwarded %d times, want 1", g.paused)
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := e.Resume(); err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	if g.resumed != 1 {
		t.Fatalf("resume forwarded %d times, want 1", g.resumed)
	}

	// The tap stays installed across the whole pause cycle.
	if g.tap == nil {
		t.Fatalf("pause/resume must not remove the tap")
	}

	// Pause is only valid while running.
	e.Stop()
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause after Stop: %v", err)
	}
	if g.paused != 1 {
		t.Fatalf("pause forwarded while stopped")
	}

	// Start on the same device clears a stale paused flag without a rebuild.
	if err := e.Start(dev, nil); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause after restart: %v", err)
	}
	if g.paused != 2 || e.Rebuilds() != 1 {
		t.Fatalf("pause after restart: paused=%d rebuilds=%d", g.paused, e.Rebuilds())
	}
}

func TestEngineWarmUpStartsAndStopsOnce(t *testing.T) {
	e, b := testEngine(t)

	if err := e.WarmUp(Device{UID: "core/USB Mic"}); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	g := b.graphs[0]
	if g.started != 1 || g.stopped != 1 {
		t.Fatalf("warm-up cycle wrong: started=%d stopped=%d", g.started, g.stopped)
	}
	if g.tap != nil {
		t.Fatalf("warm-up must not install a tap")
	}

	if err := e.Start(Device{UID: "core/USB Mic"}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.Rebuilds() != 1 {
		t.Fatalf("warmed graph rebuilt on start")
	}
}

func TestEngineTapDeliversBuffersAndAccumulates(t *testing.T) {
	e, b := testEngine(t)

	var got [][]float32
	err := e.Start(Device{UID: "core/USB Mic"}, func(samples []float32, rel float64) {
		got = append(got, samples)
		if rel < 0 || rel > 1 {
			t.Fatalf("relative energy %v out of range", rel)
		}
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.graphs[0].tap([]float32{0.1, 0.2})
	b.graphs[0].tap([]float32{0.3})

	if len(got) != 2 {
		t.Fatalf("expected 2 buffers delivered, got %d", len(got))
	}
	all := e.Samples()
	if len(all) != 3 || all[2] != 0.3 {
		t.Fatalf("accumulated samples wrong: %v", all)
	}

	e.TrimSamples(2)
	all = e.Samples()
	if len(all) != 2 || all[0] != 0.2 {
		t.Fatalf("trim kept wrong tail: %v", all)
	}
	e.TrimSamples(0)
	if len(e.Samples()) != 0 {
		t.Fatalf("TrimSamples(0) should clear the accumulator")
	}
}

func TestEngineStopDetachesTap(t *testing.T) {
	e, b := testEngine(t)

	calls := 0
	if err := e.Start(Device{UID: "core/USB Mic"}, func([]float32, float64) { calls++ }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()

	if b.graphs[0].tap != nil {
		t.Fatalf("tap still installed after Stop")
	}
	if b.graphs[0].stopped != 1 {
		t.Fatalf("graph not stopped")
	}
	if calls != 0 {
		t.Fatalf("unexpected buffer delivery")
	}
}

func TestMeterScoresLoudOverQuiet(t *testing.T) {
	m := NewMeter(20)

	quiet := make([]float32, 256)
	for i := range quiet {
		quiet[i] = 0.01 * float32(math.Sin(float64(i)/4))
	}
	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = 0.5 * float32(math.Sin(float64(i)/4))
	}

	for i := 0; i < 5; i++ {
		m.Update(quiet)
	}
	low := m.Update(quiet)
	high := m.Update(loud)

	if high <= low {
		t.Fatalf("loud buffer scored %v, quiet %v", high, low)
	}
	if high < 0.5 {
		t.Fatalf("loud-over-quiet score too small: %v", high)
	}
}

func TestMeterEmptyBuffer(t *testing.T) {
	if got := NewMeter(20).Update(nil); got != 0 {
		t.Fatalf("empty buffer scored %v", got)
	}
}

func TestResamplerIdentity(t *testing.T) {
	r, err := NewResampler(16000, 16000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	in := []float32{1, 2, 3}
	out := r.Process(in)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("identity resample changed data: %v", out)
	}
}

func TestResamplerDownsamplesContinuously(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}

	// Feed a ramp in two chunks; output must stay monotonic across the
	// chunk boundary if the carry state is right.
	var out []float32
	chunk := make([]float32, 480)
	for i := range chunk {
		chunk[i] = float32(i)
	}
	out = append(out, r.Process(chunk)...)
	for i := range chunk {
		chunk[i] = float32(480 + i)
	}
	out = append(out, r.Process(chunk)...)

	if len(out) < 300 {
		t.Fatalf("too few output samples: %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i] <= out[i-1] {
			t.Fatalf("output not monotonic at %d: %v <= %v", i, out[i], out[i-1])
		}
	}
	// 3:1 ratio, so total output should be roughly a third of the input.
	if len(out) < 315 || len(out) > 321 {
		t.Fatalf("unexpected output length %d for 960 input samples", len(out))
	}
}

func TestResamplerRejectsBadRates(t *testing.T) {
	if _, err := NewResampler(0, 16000); err == nil {
		t.Fatalf("expected error for zero source rate")
	}
	var engErr *EngineError
	_, err := NewResampler(-1, 16000)
	if !errors.As(err, &engErr) || engErr.Reason != FailureConverterCreation {
		t.Fatalf("expected converter creation failure, got %v", err)
	}
}
