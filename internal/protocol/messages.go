package protocol

import "time"

// TextUpdate carries the aggregator's current full text for a live session.
type TextUpdate struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEvent announces session lifecycle transitions on the bus.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	DeviceUID string    `json:"device_uid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSessionStarted = "dictate.session.started"
	SubjectSessionStopped = "dictate.session.stopped"
	SubjectTextCurrent    = "dictate.text.current"
)
