// SPDX-License-Identifier: MIT
package pitch

import (
	"math"
	"testing"
	"time"

	"spectro/internal/segment"
	"spectro/pkg/utils"
)

func window(session uint64, offset int64, freq float64) Window {
	return Window{
		Session: session,
		AudioWindow: segment.AudioWindow{
			Samples:     utils.GenerateSineWave(testWindow, testRate, freq, 0.5),
			StartOffset: offset,
			Length:      testWindow,
			SampleRate:  testRate,
		},
	}
}

func TestTrackerEstimates(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	defer tr.Close()

	tr.Submit(window(7, 1024, 220))
	select {
	case est := <-tr.Estimates():
		if est.Session != 7 || est.StartOffset != 1024 {
			t.Errorf("estimate tagged %d/%d, want 7/1024", est.Session, est.StartOffset)
		}
		if !est.OK || math.Abs(est.Hz-220) > 2 {
			t.Errorf("estimate = %.2f, %v", est.Hz, est.OK)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no estimate")
	}
}

func TestTrackerLatestWins(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	defer tr.Close()

	// Nobody reads while these go in, so Submit must not block.
	const n = 50
	for i := range n {
		tr.Submit(window(1, int64(i)*1024, 440))
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case est := <-tr.Estimates():
			if est.StartOffset == (n-1)*1024 {
				return
			}
		case <-deadline:
			t.Fatal("the newest window was never estimated")
		}
	}
}

func TestTrackerClose(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	tr.Close()
	tr.Close()
	tr.Submit(window(1, 0, 220))
}
