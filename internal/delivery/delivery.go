package delivery

import "errors"

// ErrUnsupported signals that the focused target cannot perform programmatic
// text replacement; callers switch to the keystroke fallback for the rest of
// the session.
var ErrUnsupported = errors.New("target does not support range replacement")

// TextTarget is the focused text element accepting atomic edits.
type TextTarget interface {
	// InsertionPoint reports the caret position in the target at session
	// start, used as the delivery anchor.
	InsertionPoint() (int, error)
	// ReplaceRange atomically replaces deleteCount characters starting at
	// start with insert. Returns ErrUnsupported when the target cannot do
	// this.
	ReplaceRange(start, deleteCount int, insert string) error
}

// Keystroker synthesizes keystrokes into the focused application.
type Keystroker interface {
	SendDeleteKeystrokes(count int) error
	PasteKeystroke() error
}

// Clipboard is the shared system clipboard.
type Clipboard interface {
	Contents() (string, error)
	SetContents(text string) error
}

// UnsupportedTarget stands in when no platform accessibility bridge is wired
// up; sessions then run entirely on the keystroke fallback.
type UnsupportedTarget struct{}

func (UnsupportedTarget) InsertionPoint() (int, error) { return 0, ErrUnsupported }

func (UnsupportedTarget) ReplaceRange(int, int, string) error { return ErrUnsupported }
