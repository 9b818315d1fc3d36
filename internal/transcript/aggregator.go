package transcript

import (
	"strings"
	"sync"
)

// Aggregator folds the recognizer's confirmed and unconfirmed segment lists
// into one current full text, filtering each segment through the repair
// pipeline. Emissions are deduplicated: Fold reports a change only when the
// folded text differs from the previous result.
//
// With a lock window of N, confirmed segments older than the trailing N are
// frozen into an immutable prefix and never re-filtered. Output is identical
// to the unbounded variant; only the per-update work shrinks.
type Aggregator struct {
	mu          sync.Mutex
	lockWindow  int
	locked      []string
	lockedCount int
	lastText    string
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// NewLockingAggregator keeps a trailing window of revisable confirmed
// segments and freezes everything older.
func NewLockingAggregator(window int) *Aggregator {
	if window < 1 {
		window = 1
	}
	return &Aggregator{lockWindow: window}
}

// Fold recomputes the full text from the current segment lists. The returned
// bool is false when the text is unchanged since the last call.
func (a *Aggregator) Fold(confirmed, unconfirmed []Segment) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var parts []string
	if a.lockWindow > 0 {
		if freeze := len(confirmed) - a.lockWindow; freeze > a.lockedCount {
			for _, seg := range confirmed[a.lockedCount:freeze] {
				if t := CleanSegmentText(seg.Text); t != "" {
					a.locked = append(a.locked, t)
				}
			}
			a.lockedCount = freeze
		}
		parts = append(parts, a.locked...)
		confirmed = confirmed[min(a.lockedCount, len(confirmed)):]
	}

	for _, seg := range confirmed {
		if t := CleanSegmentText(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	for _, seg := range unconfirmed {
		if t := CleanSegmentText(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == a.lastText {
		return a.lastText, false
	}
	a.lastText = text
	return text, true
}

// Current returns the last folded text.
func (a *Aggregator) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastText
}

// Reset clears all per-session state.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.locked = nil
	a.lockedCount = 0
	a.lastText = ""
}
