// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes mono float samples to a PCM WAV file.
type Recorder struct {
	path   string
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	scale  float64
	frames int
}

// NewRecorder creates path and writes a WAV header for bitDepth (16 or 24)
// mono samples at sampleRate.
func NewRecorder(path string, sampleRate, bitDepth int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		path:  path,
		file:  file,
		enc:   wav.NewEncoder(file, sampleRate, bitDepth, 1, 1),
		scale: float64(int(1)<<(bitDepth-1) - 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Write appends samples, clipped to [-1, 1].
func (r *Recorder) Write(samples []float32) error {
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		r.buf.Data[i] = int(math.Round(v * r.scale))
	}
	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("writing %s: %w", r.path, err)
	}
	r.frames += len(samples)
	return nil
}

// Close finalises the header and closes the file.
func (r *Recorder) Close() error {
	if err := r.enc.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("finalising %s: %w", r.path, err)
	}
	return r.file.Close()
}

// Path is the file being written.
func (r *Recorder) Path() string { return r.path }

// Frames counts the samples written so far.
func (r *Recorder) Frames() int { return r.frames }

// recordingPath names a session recording after its start time.
func recordingPath(dir string, t time.Time) string {
	return filepath.Join(dir, "mic-"+t.Format("20060102-150405")+".wav")
}
