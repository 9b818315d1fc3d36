package audio

import (
	"log/slog"
	"sync"
)

// Format is the fixed target capture format delivered to consumers.
type Format struct {
	SampleRate int
	Channels   int
}

// BufferFunc receives one resampled chunk plus its relative energy score.
// It runs on the capture callback and must not block.
type BufferFunc func(samples []float32, relativeEnergy float64)

// Graph is one configured hardware capture graph: microphone, format
// converter and tap.
type Graph interface {
	Start() error
	Stop() error
	Pause() error
	Resume() error
	Close() error
	SetTap(func([]float32))
}

// GraphBuilder constructs a graph for a device in the target format. Setup
// failures are reported as *EngineError.
type GraphBuilder interface {
	Build(dev Device, format Format) (Graph, error)
}

// Engine owns the process-wide capture graph and reuses it across sessions
// so start/stop cycles skip hardware reconfiguration latency and the
// glitch-on-start. The graph is destroyed only on device change, explicit
// invalidation (system sleep) or process exit.
type Engine struct {
	builder GraphBuilder
	format  Format
	log     *slog.Logger

	mu       sync.Mutex
	graph    Graph
	graphUID string
	running  bool
	paused   bool
	rebuilds int
	meter    *Meter
	samples  []float32
	onBuffer BufferFunc
}

func NewEngine(builder GraphBuilder, format Format, energyWindow int, log *slog.Logger) *Engine {
	return &Engine{
		builder: builder,
		format:  format,
		log:     log.With(slog.String("component", "capture")),
		meter:   NewMeter(energyWindow),
	}
}

// WarmUp builds the graph for dev (or reuses a matching cached one), starts
// it and immediately stops it, forcing one-time hardware routing setup. No
// data reaches any consumer. Failures are non-fatal: callers log and proceed,
// a later Start is unaffected.
func (e *Engine) WarmUp(dev Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureGraph(dev); err != nil {
		return err
	}
	if e.running {
		return nil
	}
	if err := e.graph.Start(); err != nil {
		return err
	}
	if err := e.graph.Stop(); err != nil {
		return err
	}
	e.log.Debug("capture graph warmed up", slog.String("device", dev.UID))
	return nil
}

// Start ensures a graph exists for dev (rebuilding on device change, tearing
// the old tap down first), installs the tap and starts the graph.
func (e *Engine) Start(dev Device, onBuffer BufferFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureGraph(dev); err != nil {
		return err
	}
	e.onBuffer = onBuffer
	e.graph.SetTap(e.tap)
	if !e.running {
		if err := e.graph.Start(); err != nil {
			return err
		}
		e.running = true
	}
	e.paused = false
	return nil
}

// Stop removes the tap and stops the graph but keeps it cached for instant
// restart.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil {
		return
	}
	e.graph.SetTap(nil)
	e.onBuffer = nil
	if e.running {
		if err := e.graph.Stop(); err != nil {
			e.log.Warn("failed to stop capture graph", slog.String("error", err.Error()))
		}
		e.running = false
	}
	e.paused = false
}

// Pause suspends delivery without removing the tap.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil || !e.running || e.paused {
		return nil
	}
	if err := e.graph.Pause(); err != nil {
		return err
	}
	e.paused = true
	return nil
}

// Resume continues a paused graph.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil || !e.paused {
		return nil
	}
	if err := e.graph.Resume(); err != nil {
		return err
	}
	e.paused = false
	return nil
}

// Invalidate tears the graph down unconditionally. Hardware routing does not
// survive system sleep, so the sleep notification calls this. Idempotent.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil {
		return
	}
	e.teardownLocked()
	e.log.Info("capture graph invalidated")
}

// Samples returns a copy of the accumulated raw samples in target format.
func (e *Engine) Samples() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float32, len(e.samples))
	copy(out, e.samples)
	return out
}

// TrimSamples drops all but the last keep accumulated samples.
func (e *Engine) TrimSamples(keep int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if keep <= 0 {
		e.samples = nil
		return
	}
	if len(e.samples) > keep {
		e.samples = append([]float32(nil), e.samples[len(e.samples)-keep:]...)
	}
}

// Rebuilds reports how many times a graph has been constructed.
func (e *Engine) Rebuilds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rebuilds
}

func (e *Engine) ensureGraph(dev Device) error {
	if e.graph != nil && e.graphUID == dev.UID {
		return nil
	}
	if e.graph != nil {
		e.log.Info("capture device changed, rebuilding graph",
			slog.String("from", e.graphUID), slog.String("to", dev.UID))
		e.teardownLocked()
	}
	g, err := e.builder.Build(dev, e.format)
	if err != nil {
		return err
	}
	e.graph = g
	e.graphUID = dev.UID
	e.rebuilds++
	return nil
}

func (e *Engine) teardownLocked() {
	e.graph.SetTap(nil)
	if e.running {
		_ = e.graph.Stop()
	}
	if err := e.graph.Close(); err != nil {
		e.log.Warn("failed to close capture graph", slog.String("error", err.Error()))
	}
	e.graph = nil
	e.graphUID = ""
	e.running = false
	e.paused = false
	e.onBuffer = nil
}

// tap runs on the capture callback. Work is bounded: one energy pass, one
// append, one consumer call.
func (e *Engine) tap(samples []float32) {
	e.mu.Lock()
	rel := e.meter.Update(samples)
	e.samples = append(e.samples, samples...)
	onBuffer := e.onBuffer
	e.mu.Unlock()

	if onBuffer != nil {
		onBuffer(samples, rel)
	}
}
