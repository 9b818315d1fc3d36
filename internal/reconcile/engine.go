package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ambiware-labs/dictate/internal/config"
	"github.com/ambiware-labs/dictate/internal/delivery"
)

// Strategy selects how edits reach the focused application.
type Strategy int

const (
	// StrategyDirect issues atomic range replacements against the target.
	StrategyDirect Strategy = iota
	// StrategyFallback deletes with keystrokes and inserts via clipboard
	// paste. Once entered it is sticky for the rest of the session.
	StrategyFallback
)

func (s Strategy) String() string {
	if s == StrategyFallback {
		return "fallback"
	}
	return "direct"
}

const (
	clipboardSettle = 80 * time.Millisecond
	pasteSettle     = 120 * time.Millisecond
)

// Engine applies target-text updates to the focused application, holding the
// exact text last delivered so each update reduces to a suffix edit. All
// mutations are serialized through one mutex: an update, including every
// pacing delay of the fallback path, completes fully before the next one is
// accepted, so only one clipboard write+restore cycle is ever in flight.
type Engine struct {
	log         *slog.Logger
	target      delivery.TextTarget
	keys        delivery.Keystroker
	clip        delivery.Clipboard
	minInterval time.Duration
	keyDelay    time.Duration

	clock func() time.Time
	sleep func(time.Duration)

	mu          sync.Mutex
	strategy    Strategy
	anchor      int
	delivered   string
	lastApplied time.Time
}

func NewEngine(cfg config.DeliveryConfig, target delivery.TextTarget, keys delivery.Keystroker, clip delivery.Clipboard, log *slog.Logger) *Engine {
	return &Engine{
		log:         log.With(slog.String("component", "reconcile")),
		target:      target,
		keys:        keys,
		clip:        clip,
		minInterval: time.Duration(cfg.MinUpdateIntervalMS) * time.Millisecond,
		keyDelay:    time.Duration(cfg.KeystrokeDelayMS) * time.Millisecond,
		clock:       time.Now,
		sleep:       time.Sleep,
	}
}

// Begin resets per-session delivery state. The anchor is the caret position
// in the target at session start; delivered positions are anchored there.
func (e *Engine) Begin(anchor int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = StrategyDirect
	e.anchor = anchor
	e.delivered = ""
	e.lastApplied = time.Time{}
}

// Apply reconciles the delivered text toward target and performs the edit.
// Non-forced updates are dropped while the minimum interval since the last
// applied update has not elapsed; forced updates always go through.
func (e *Engine) Apply(target string, forced bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	edit := Diff(e.delivered, target)
	if edit.DeleteCount == 0 && edit.InsertSuffix == "" {
		return nil
	}

	if !forced && e.minInterval > 0 && !e.lastApplied.IsZero() {
		if e.clock().Sub(e.lastApplied) < e.minInterval {
			return nil
		}
	}

	if e.strategy == StrategyDirect {
		start := e.anchor + utf8.RuneCountInString(e.delivered) - edit.DeleteCount
		err := e.target.ReplaceRange(start, edit.DeleteCount, edit.InsertSuffix)
		switch {
		case err == nil:
			e.delivered = target
			e.lastApplied = e.clock()
			return nil
		case errors.Is(err, delivery.ErrUnsupported):
			// One failure is final: never retry direct replacement
			// within this session.
			e.log.Info("direct replacement unsupported, switching to keystroke fallback")
			e.strategy = StrategyFallback
		default:
			return fmt.Errorf("replace range: %w", err)
		}
	}

	if err := e.applyFallback(edit); err != nil {
		return err
	}
	e.delivered = target
	e.lastApplied = e.clock()
	return nil
}

func (e *Engine) applyFallback(edit Edit) error {
	if edit.DeleteCount > 0 {
		if err := e.keys.SendDeleteKeystrokes(edit.DeleteCount); err != nil {
			return fmt.Errorf("delete keystrokes: %w", err)
		}
		e.sleep(time.Duration(edit.DeleteCount) * e.keyDelay)
	}
	if edit.InsertSuffix == "" {
		return nil
	}

	prior, err := e.clip.Contents()
	hadPrior := err == nil
	if err := e.clip.SetContents(edit.InsertSuffix); err != nil {
		return fmt.Errorf("stage clipboard: %w", err)
	}
	e.sleep(clipboardSettle)
	if err := e.keys.PasteKeystroke(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	e.sleep(pasteSettle)
	if hadPrior {
		if err := e.clip.SetContents(prior); err != nil {
			e.log.Warn("failed to restore clipboard after paste", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Delivered returns the text last applied to the target.
func (e *Engine) Delivered() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delivered
}

// Strategy returns the active delivery strategy.
func (e *Engine) Strategy() Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}
