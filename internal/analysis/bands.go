// SPDX-License-Identifier: MIT
/*
Package analysis derives coarse features from spectrum columns: the energy
in a handful of frequency bands and bass onsets. A BandMeter is a column
sink; it reports to a Sender such as the websocket transport.
*/
package analysis

import (
	"errors"
	"math"
	"time"

	"spectro/internal/log"
	"spectro/internal/spectral"
)

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands split the audible range the way mixing desks do. The last
// band ends at the Nyquist frequency.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// Sender is where measurements go.
type Sender interface {
	Send(data any) error
}

// BandsMessage is one measurement. Levels are in [0, 1], one per band in
// the meter's order.
type BandsMessage struct {
	Type   string    `json:"type"` // always "bands"
	Names  []string  `json:"names"`
	Levels []float64 `json:"levels"`
	Beat   bool      `json:"beat"`
}

// binRange is the half-open bin interval of a band.
type binRange struct{ lo, hi int }

// BandMeter measures band levels on every column and sends them at most
// once per interval, or at once when a beat is detected. It is used from
// a single goroutine.
type BandMeter struct {
	out      Sender
	log      log.Logger
	names    []string
	ranges   []binRange
	bass     int // index of the band feeding the beat detector, -1 for none
	norm     float64
	interval time.Duration
	now      func() time.Time

	beat   *BeatDetector
	levels []float64
	last   time.Time
}

// NewBandMeter lays bands over the bins of a windowSize transform at
// sampleRate. A band named "bass" drives beat detection.
func NewBandMeter(out Sender, bands []FrequencyBand, windowSize int, sampleRate float64, interval time.Duration) (*BandMeter, error) {
	if out == nil {
		return nil, errors.New("analysis: nil sender")
	}
	if windowSize < 2 || sampleRate <= 0 {
		return nil, errors.New("analysis: window size and sample rate must be positive")
	}
	if len(bands) == 0 {
		bands = DefaultBands
	}

	bins := windowSize / 2
	binHz := spectral.BinFrequency(1, windowSize, sampleRate)
	m := &BandMeter{
		out:      out,
		log:      log.For("Analysis"),
		bass:     -1,
		norm:     4 / float64(windowSize),
		interval: interval,
		now:      time.Now,
		beat:     NewBeatDetector(0.05, 1.6, 4),
		levels:   make([]float64, len(bands)),
	}
	for i, b := range bands {
		lo := min(int(math.Ceil(b.LowHz/binHz)), bins)
		hi := bins
		if !math.IsInf(b.HighHz, 1) {
			hi = min(int(math.Ceil(b.HighHz/binHz)), bins)
		}
		m.names = append(m.names, b.Name)
		m.ranges = append(m.ranges, binRange{lo: max(lo, 0), hi: max(hi, lo)})
		if b.Name == "bass" {
			m.bass = i
		}
	}
	m.log.Debugf("%d bands over %d bins of %.2f Hz", len(bands), bins, binHz)
	return m, nil
}

// Levels returns the levels of the last column.
func (m *BandMeter) Levels() []float64 { return m.levels }

// Send measures column and reports it when due.
func (m *BandMeter) Send(column []float32) error {
	for i, r := range m.ranges {
		m.levels[i] = m.level(column, r)
	}
	beat := m.bass >= 0 && m.beat.Observe(m.levels[m.bass])

	now := m.now()
	if !beat && now.Sub(m.last) < m.interval {
		return nil
	}
	m.last = now
	return m.out.Send(BandsMessage{
		Type:   "bands",
		Names:  m.names,
		Levels: append([]float64(nil), m.levels...),
		Beat:   beat,
	})
}

// level is the RMS magnitude of the band, scaled so a full scale sine
// reads 1.
func (m *BandMeter) level(column []float32, r binRange) float64 {
	hi := min(r.hi, len(column))
	if r.lo >= hi {
		return 0
	}
	var sum float64
	for _, v := range column[r.lo:hi] {
		sum += float64(v) * float64(v)
	}
	return math.Min(1, math.Sqrt(sum/float64(hi-r.lo))*m.norm)
}
