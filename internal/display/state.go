// SPDX-License-Identifier: MIT
package display

import "time"

// PlayState is what the controls show.
type PlayState int

const (
	Stopped PlayState = iota
	LoadingMic
	PlayingMic
	Paused
	PlayingMicAgain
	LoadingFile
	PlayingFile
)

func (s PlayState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case LoadingMic:
		return "loading-mic"
	case PlayingMic:
		return "playing-from-mic"
	case Paused:
		return "paused"
	case PlayingMicAgain:
		return "playing-from-mic-again"
	case LoadingFile:
		return "loading-file"
	case PlayingFile:
		return "playing-from-file"
	default:
		return "unknown"
	}
}

// Capturing reports whether the microphone is live.
func (s PlayState) Capturing() bool {
	return s == PlayingMic || s == PlayingMicAgain
}

// afterStop is the state Stop leads to. Stopping the microphone pauses,
// which keeps the picture so capture can resume onto it.
func (s PlayState) afterStop() PlayState {
	if s.Capturing() {
		return Paused
	}
	return Stopped
}

// resumes reports whether starting the microphone from s continues the
// existing picture instead of clearing it.
func (s PlayState) resumes() bool {
	return s == Paused
}

// Status is published to the StatusSink whenever the state, the source or
// the pitch label changes.
type Status struct {
	State   PlayState
	Source  string // file name, "microphone" or empty
	Session uint64

	Pitch    string // label text
	PitchHz  float64
	HasPitch bool

	Started  time.Time
	Duration time.Duration // zero for the microphone
}

// StatusSink receives status updates on the display goroutine. It must not
// block.
type StatusSink interface {
	PublishStatus(Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(Status)

func (f StatusFunc) PublishStatus(s Status) { f(s) }
