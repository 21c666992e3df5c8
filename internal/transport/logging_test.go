// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"spectro/internal/display"
	"spectro/internal/log"
)

func TestLoggingTransportStatus(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	prev := log.GetLevel()
	log.SetLevel(log.LevelInfo)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(prev)
	})

	lt := NewLoggingTransport()
	lt.PublishStatus(display.Status{State: display.PlayingFile, Source: "tone.wav"})
	lt.PublishStatus(display.Status{State: display.PlayingFile, Source: "tone.wav", Pitch: "220 Hz", HasPitch: true})
	lt.PublishStatus(display.Status{State: display.Stopped})

	out := buf.String()
	if !strings.Contains(out, "Transport: playing-from-file (tone.wav)") {
		t.Errorf("missing state line:\n%s", out)
	}
	if strings.Contains(out, "220 Hz") {
		t.Errorf("pitch logged above debug:\n%s", out)
	}
	if !strings.Contains(out, "Transport: stopped") {
		t.Errorf("missing stop line:\n%s", out)
	}

	buf.Reset()
	log.SetLevel(log.LevelDebug)
	lt.PublishStatus(display.Status{State: display.Stopped, Pitch: "221 Hz", HasPitch: true})
	lt.Send(map[string]int{"columns": 3})
	out = buf.String()
	if !strings.Contains(out, "pitch 221 Hz") || !strings.Contains(out, `{"columns":3}`) {
		t.Errorf("debug output:\n%s", out)
	}
}
