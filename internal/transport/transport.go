// SPDX-License-Identifier: MIT
// Package transport carries frames, spectrum columns and status updates
// off the host: a websocket broadcaster, a UDP column publisher and a
// logging sink for headless runs.
package transport

import (
	"time"

	"spectro/internal/display"
)

// Transport sends processed data or events. Implementations are safe for
// concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}

// StatusMessage is the JSON form of a display.Status.
type StatusMessage struct {
	Type     string  `json:"type"` // always "status"
	State    string  `json:"state"`
	Source   string  `json:"source,omitempty"`
	Session  uint64  `json:"session"`
	Pitch    string  `json:"pitch"`
	PitchHz  float64 `json:"pitch_hz,omitempty"`
	HasPitch bool    `json:"has_pitch"`
	Elapsed  float64 `json:"elapsed_s,omitempty"`
	Duration float64 `json:"duration_s,omitempty"`
}

// NewStatusMessage converts s, measuring elapsed time against now.
func NewStatusMessage(s display.Status, now time.Time) StatusMessage {
	m := StatusMessage{
		Type:     "status",
		State:    s.State.String(),
		Source:   s.Source,
		Session:  s.Session,
		Pitch:    s.Pitch,
		PitchHz:  s.PitchHz,
		HasPitch: s.HasPitch,
		Duration: s.Duration.Seconds(),
	}
	if !s.Started.IsZero() {
		m.Elapsed = now.Sub(s.Started).Seconds()
	}
	return m
}
