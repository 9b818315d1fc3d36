package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambiware-labs/dictate/internal/audio"
	"github.com/ambiware-labs/dictate/internal/bus"
	"github.com/ambiware-labs/dictate/internal/config"
	"github.com/ambiware-labs/dictate/internal/delivery"
	"github.com/ambiware-labs/dictate/internal/natsserver"
	"github.com/ambiware-labs/dictate/internal/notify"
	"github.com/ambiware-labs/dictate/internal/recognizer"
	"github.com/ambiware-labs/dictate/internal/reconcile"
	"github.com/ambiware-labs/dictate/internal/session"
	"github.com/ambiware-labs/dictate/internal/transcript"
	"github.com/ambiware-labs/dictate/internal/transcriptstore"
)

// Runtime assembles the daemon: capture, recognition, delivery, persistence,
// bus and the HTTP control surface.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	controller *session.Controller
	portaudio  *audio.PortAudio
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the daemon up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
	}

	store, err := transcriptstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer store.Close()

	r.portaudio = audio.NewPortAudio()
	capture := audio.NewEngine(r.portaudio,
		audio.Format{SampleRate: r.cfg.Audio.SampleRate, Channels: 1},
		r.cfg.Audio.EnergyWindow, r.logger)

	rec, err := recognizer.New(r.cfg.Recognizer)
	if err != nil {
		return fmt.Errorf("failed to build recognizer: %w", err)
	}

	keys := delivery.NewSystemKeystroker(time.Duration(r.cfg.Delivery.KeystrokeDelayMS) * time.Millisecond)
	clip := delivery.SystemClipboard{}
	// No accessibility bridge is wired in-process; delivery runs on the
	// keystroke fallback from the first update.
	target := delivery.UnsupportedTarget{}
	engine := reconcile.NewEngine(r.cfg.Delivery, target, keys, clip, r.logger)

	var publisher session.Publisher
	if busClient != nil {
		publisher = busClient.Conn()
	}

	r.controller = session.NewController(r.cfg, session.Deps{
		Enumerator: r.portaudio,
		Capture:    capture,
		Recognizer: rec,
		Streamer:   recognizer.NewStreamer(rec, r.cfg.Recognizer, r.cfg.Audio.SampleRate, r.logger),
		Aggregator: transcript.NewAggregator(),
		Engine:     engine,
		Target:     target,
		Clipboard:  clip,
		Publisher:  publisher,
		Store:      store,
		Notifier:   notify.New(r.cfg.Notify.Enabled, r.logger),
	}, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}
	mux.HandleFunc("POST /session/start", r.handleSessionStart)
	mux.HandleFunc("POST /session/stop", r.handleSessionStop)
	mux.HandleFunc("POST /session/pause", r.handleSessionPause)
	mux.HandleFunc("POST /session/resume", r.handleSessionResume)
	mux.HandleFunc("GET /session", r.handleSessionStatus)
	mux.HandleFunc("GET /sessions", r.handleSessionHistory(store))
	mux.HandleFunc("GET /devices", r.handleDevices)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if r.controller.Active() {
		if err := r.controller.Stop(shutdownCtx); err != nil {
			r.logger.Error("failed to stop session on shutdown", slog.String("error", err.Error()))
		}
	}
	capture.Invalidate()
	if err := r.portaudio.Terminate(); err != nil {
		r.logger.Warn("portaudio terminate failed", slog.String("error", err.Error()))
	}

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleSessionStart(w http.ResponseWriter, req *http.Request) {
	if err := r.controller.Start(req.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": r.controller.SessionID(),
		"phase":      r.controller.Phase().String(),
	})
}

func (r *Runtime) handleSessionStop(w http.ResponseWriter, req *http.Request) {
	if err := r.controller.Stop(req.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"phase": r.controller.Phase().String(),
		"text":  r.controller.CurrentText(),
	})
}

func (r *Runtime) handleSessionPause(w http.ResponseWriter, _ *http.Request) {
	if err := r.controller.Pause(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": r.controller.Phase().String()})
}

func (r *Runtime) handleSessionResume(w http.ResponseWriter, _ *http.Request) {
	if err := r.controller.Resume(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": r.controller.Phase().String()})
}

func (r *Runtime) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":     r.controller.Active(),
		"phase":      r.controller.Phase().String(),
		"session_id": r.controller.SessionID(),
		"text":       r.controller.CurrentText(),
	})
}

func (r *Runtime) handleSessionHistory(store *transcriptstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		records, err := store.ListSessions(req.Context(), 50)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (r *Runtime) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := r.portaudio.InputDevices()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
