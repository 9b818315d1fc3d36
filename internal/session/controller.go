package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/ambiware-labs/dictate/internal/audio"
	"github.com/ambiware-labs/dictate/internal/config"
	"github.com/ambiware-labs/dictate/internal/delivery"
	"github.com/ambiware-labs/dictate/internal/protocol"
	"github.com/ambiware-labs/dictate/internal/recognizer"
	"github.com/ambiware-labs/dictate/internal/reconcile"
	"github.com/ambiware-labs/dictate/internal/transcript"
)

// Phase is the controller lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseStreaming
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseStreaming:
		return "streaming"
	case PhaseStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// ErrNoSession is returned by Stop when no session is streaming.
var ErrNoSession = errors.New("no active session")

// Publisher broadcasts session state. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier surfaces user-visible failures.
type Notifier interface {
	Notify(title, body string) error
}

// Store persists completed session transcripts.
type Store interface {
	SaveSession(ctx context.Context, rec Record) error
}

// Record is one completed session.
type Record struct {
	SessionID string
	DeviceUID string
	Text      string
	StartedAt time.Time
	EndedAt   time.Time
}

// voiceHangover keeps forwarding audio briefly after energy drops so trailing
// soft syllables reach the recognizer.
const voiceHangover = time.Second

// sourceBuffer absorbs decode latency; the forwarder drops rather than block
// the capture callback.
const sourceBuffer = 64

// Controller owns the single active dictation session: device resolution,
// capture, streaming recognition, aggregation and delivery. At most one
// session runs at a time; Start while active is a no-op.
type Controller struct {
	cfg      config.Config
	enum     audio.Enumerator
	capture  *audio.Engine
	rec      recognizer.Recognizer
	streamer *recognizer.Streamer
	agg      *transcript.Aggregator
	engine   *reconcile.Engine
	target   delivery.TextTarget
	clip     delivery.Clipboard
	pub      Publisher
	store    Store
	notify   Notifier
	log      *slog.Logger

	sessionsStarted  metric.Int64Counter
	updatesDelivered metric.Int64Counter

	mu           sync.Mutex
	phase        Phase
	sessionID    string
	deviceUID    string
	startedAt    time.Time
	source       chan []float32
	done         chan struct{}
	cancelStream context.CancelFunc
	priorClip    string
	hadClip      bool
	lastVoice    time.Time
}

type Deps struct {
	Enumerator audio.Enumerator
	Capture    *audio.Engine
	Recognizer recognizer.Recognizer
	Streamer   *recognizer.Streamer
	Aggregator *transcript.Aggregator
	Engine     *reconcile.Engine
	Target     delivery.TextTarget
	Clipboard  delivery.Clipboard
	Publisher  Publisher
	Store      Store
	Notifier   Notifier
}

func NewController(cfg config.Config, deps Deps, log *slog.Logger) *Controller {
	meter := otel.Meter("github.com/ambiware-labs/dictate/internal/session")
	sessionsStarted, _ := meter.Int64Counter("dictate.sessions.started",
		metric.WithDescription("Dictation sessions started"))
	updatesDelivered, _ := meter.Int64Counter("dictate.updates.delivered",
		metric.WithDescription("Incremental text updates handed to the delivery engine"))

	return &Controller{
		cfg:      cfg,
		enum:     deps.Enumerator,
		capture:  deps.Capture,
		rec:      deps.Recognizer,
		streamer: deps.Streamer,
		agg:      deps.Aggregator,
		engine:   deps.Engine,
		target:   deps.Target,
		clip:     deps.Clipboard,
		pub:      deps.Publisher,
		store:    deps.Store,
		notify:   deps.Notifier,
		log:      log.With(slog.String("component", "session")),

		sessionsStarted:  sessionsStarted,
		updatesDelivered: updatesDelivered,
	}
}

// Start begins a dictation session. Already-active sessions make it a no-op.
// Failures leave the controller idle with capture stopped and nothing
// delivered, and raise a user notification.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseStarting
	c.mu.Unlock()

	err := c.start(ctx)
	if err != nil {
		c.log.Error("session start failed", slog.String("error", err.Error()))
		c.notifyFailure("Dictation failed to start", err)
		c.mu.Lock()
		c.phase = PhaseIdle
		c.mu.Unlock()
	}
	return err
}

func (c *Controller) start(ctx context.Context) error {
	dev, err := audio.Resolve(c.enum, c.cfg.Audio.PreferredDeviceUID)
	if err != nil {
		return fmt.Errorf("resolve input device: %w", err)
	}

	if err := c.capture.WarmUp(dev); err != nil {
		// Warm-up is an optimization; a failure here does not gate start.
		c.log.Warn("capture warm-up failed", slog.String("error", err.Error()))
	}

	prior, clipErr := c.clip.Contents()

	anchor := 0
	if pos, err := c.target.InsertionPoint(); err == nil {
		anchor = pos
	}
	c.agg.Reset()
	c.engine.Begin(anchor)
	c.capture.TrimSamples(0)

	id := uuid.NewString()
	source := make(chan []float32, sourceBuffer)
	done := make(chan struct{})
	// The streamer outlives the start request: its context is detached from
	// the caller's (which net/http cancels as soon as the handler returns)
	// and lives until Stop.
	streamCtx, cancelStream := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.sessionID = id
	c.deviceUID = dev.UID
	c.startedAt = time.Now().UTC()
	c.source = source
	c.done = done
	c.cancelStream = cancelStream
	c.priorClip = prior
	c.hadClip = clipErr == nil
	c.lastVoice = time.Time{}
	c.mu.Unlock()

	if err := c.capture.Start(dev, c.onBuffer); err != nil {
		cancelStream()
		return fmt.Errorf("start capture: %w", err)
	}

	go func() {
		defer close(done)
		if err := c.streamer.Stream(streamCtx, source, c.onRecognizerChange); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("recognizer stream failed", slog.String("error", err.Error()))
		}
	}()

	c.mu.Lock()
	c.phase = PhaseStreaming
	c.mu.Unlock()

	c.sessionsStarted.Add(context.WithoutCancel(ctx), 1)
	c.publish(protocol.SubjectSessionStarted, protocol.SessionEvent{
		SessionID: id,
		DeviceUID: dev.UID,
		Timestamp: time.Now().UTC(),
	})
	c.log.Info("session started",
		slog.String("session_id", id),
		slog.String("device", dev.UID))
	return nil
}

// onBuffer runs on the capture callback. It gates chunks on the relative
// energy score with a hangover, and never blocks: when the recognizer falls
// behind, chunks are dropped here rather than stalling capture.
func (c *Controller) onBuffer(samples []float32, relativeEnergy float64) {
	c.mu.Lock()
	if c.phase != PhaseStreaming {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	if relativeEnergy >= c.cfg.Audio.VADThreshold {
		c.lastVoice = now
	}
	voiced := !c.lastVoice.IsZero() && now.Sub(c.lastVoice) <= voiceHangover
	if voiced {
		// Send under the lock so Stop cannot close the channel between the
		// phase check and the send. The buffered send never blocks.
		chunk := make([]float32, len(samples))
		copy(chunk, samples)
		select {
		case c.source <- chunk:
		default:
		}
	}
	c.mu.Unlock()
}

func (c *Controller) onRecognizerChange(st recognizer.State) {
	text, changed := c.agg.Fold(st.Confirmed, st.Unconfirmed)
	if !changed {
		return
	}

	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()

	c.publish(protocol.SubjectTextCurrent, protocol.TextUpdate{
		SessionID: id,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if err := c.engine.Apply(text, false); err != nil {
		c.log.Error("failed to deliver update", slog.String("error", err.Error()))
		return
	}
	c.updatesDelivered.Add(context.Background(), 1)
}

// Stop ends the active session: capture stops, the recognizer drains and is
// awaited, one final decode over the full accumulated capture is delivered as
// a forced update, the transcript is persisted and the clipboard restored.
// Cleanup runs on every exit path.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseStreaming {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.phase = PhaseStopping
	id := c.sessionID
	devUID := c.deviceUID
	startedAt := c.startedAt
	source := c.source
	done := c.done
	cancelStream := c.cancelStream
	priorClip := c.priorClip
	hadClip := c.hadClip
	c.mu.Unlock()

	defer func() {
		// Clipboard restore happens after the final update so a fallback
		// paste never clobbers it again.
		if hadClip {
			if err := c.clip.SetContents(priorClip); err != nil {
				c.log.Warn("failed to restore clipboard", slog.String("error", err.Error()))
			}
		}
		c.agg.Reset()
		c.mu.Lock()
		c.phase = PhaseIdle
		c.sessionID = ""
		c.source = nil
		c.done = nil
		c.cancelStream = nil
		c.mu.Unlock()
	}()

	c.capture.Stop()
	c.mu.Lock()
	close(source)
	c.mu.Unlock()
	// The recognizer loop must fully exit before any cleanup runs: a loop
	// still emitting would race the clipboard restore and the final update.
	// Closing the source ends the loop promptly, so this wait is bounded
	// and does not honor caller cancellation.
	<-done
	cancelStream()

	finalText := c.finalText(ctx)
	if err := c.engine.Apply(finalText, true); err != nil {
		c.log.Error("failed to deliver final text", slog.String("error", err.Error()))
	}

	endedAt := time.Now().UTC()
	if c.store != nil && finalText != "" {
		err := c.store.SaveSession(ctx, Record{
			SessionID: id,
			DeviceUID: devUID,
			Text:      finalText,
			StartedAt: startedAt,
			EndedAt:   endedAt,
		})
		if err != nil {
			c.log.Error("failed to persist session transcript", slog.String("error", err.Error()))
		}
	}

	c.publish(protocol.SubjectTextCurrent, protocol.TextUpdate{
		SessionID: id,
		Text:      finalText,
		Final:     true,
		Timestamp: endedAt,
	})
	c.publish(protocol.SubjectSessionStopped, protocol.SessionEvent{
		SessionID: id,
		DeviceUID: devUID,
		Timestamp: endedAt,
	})
	c.log.Info("session stopped",
		slog.String("session_id", id),
		slog.Int("chars", len(finalText)))
	return nil
}

// finalText runs the catch-up decode over the complete capture. On decode
// failure the last streamed text stands.
func (c *Controller) finalText(ctx context.Context) string {
	samples := c.capture.Samples()
	if len(samples) == 0 {
		return c.agg.Current()
	}

	decodeCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	segs, err := c.rec.Transcribe(decodeCtx, samples, c.cfg.Audio.SampleRate)
	if err != nil {
		c.log.Warn("final decode failed, keeping streamed text", slog.String("error", err.Error()))
		return c.agg.Current()
	}
	text, _ := c.agg.Fold(segs, nil)
	return text
}

// Pause suspends capture for the active session without tearing anything
// down; the recognizer loop stays attached and simply stops receiving audio.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseStreaming {
		return ErrNoSession
	}
	return c.capture.Pause()
}

// Resume continues a paused session.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseStreaming {
		return ErrNoSession
	}
	return c.capture.Resume()
}

// Invalidate tears down capture state after a system sleep. Active sessions
// are stopped first.
func (c *Controller) Invalidate(ctx context.Context) {
	if c.Active() {
		if err := c.Stop(ctx); err != nil {
			c.log.Warn("failed to stop session on invalidate", slog.String("error", err.Error()))
		}
	}
	c.capture.Invalidate()
}

// Active reports whether a session is streaming.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseStreaming
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// CurrentText returns the latest aggregated text.
func (c *Controller) CurrentText() string {
	return c.agg.Current()
}

// SessionID returns the active session id, empty when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) publish(subject string, payload any) {
	if c.pub == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("failed to marshal bus payload", slog.String("error", err.Error()))
		return
	}
	if err := c.pub.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish to bus",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func (c *Controller) notifyFailure(title string, err error) {
	if c.notify == nil {
		return
	}
	if nerr := c.notify.Notify(title, err.Error()); nerr != nil {
		c.log.Warn("failed to send notification", slog.String("error", nerr.Error()))
	}
}
