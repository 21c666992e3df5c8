// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync"

	"spectro/internal/display"
	"spectro/internal/log"
)

// LoggingTransport writes whatever it is sent to the log. Headless runs
// use it as their status sink.
type LoggingTransport struct {
	log log.Logger

	mu   sync.Mutex
	last display.Status
	seen bool
}

var (
	_ Transport          = (*LoggingTransport)(nil)
	_ display.StatusSink = (*LoggingTransport)(nil)
)

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{log: log.For("Transport")}
}

// Send logs data as JSON at debug level.
func (lt *LoggingTransport) Send(data any) error {
	if !log.Enabled(log.LevelDebug) {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		lt.log.Debugf("%T: %+v", data, data)
		return nil
	}
	lt.log.Debugf("%s", b)
	return nil
}

// PublishStatus logs state and source changes at info and pitch changes at
// debug.
func (lt *LoggingTransport) PublishStatus(s display.Status) {
	lt.mu.Lock()
	changed := !lt.seen || s.State != lt.last.State || s.Source != lt.last.Source
	lt.last, lt.seen = s, true
	lt.mu.Unlock()

	switch {
	case !changed:
		lt.log.Debugf("pitch %s", s.Pitch)
	case s.Source != "":
		lt.log.Infof("%s (%s)", s.State, s.Source)
	default:
		lt.log.Infof("%s", s.State)
	}
}

// Close is a no-op.
func (lt *LoggingTransport) Close() error { return nil }
