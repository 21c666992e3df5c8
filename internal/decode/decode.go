// SPDX-License-Identifier: MIT
// Package decode turns encoded audio files into mono sample tracks.
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"spectro/internal/log"
)

// ErrUnsupportedFormat is returned for data that is neither WAV nor MP3,
// and for WAV encodings other than integer PCM and 32 bit float.
var ErrUnsupportedFormat = errors.New("decode: unsupported format")

// Track is a decoded file mixed down to one channel.
type Track struct {
	Name       string
	Samples    []float32
	SampleRate float64
	Channels   int // channels in the source before mixing
	Duration   time.Duration
}

type format int

// WAV fmt chunk audio formats.
const (
	wavPCM   = 1
	wavFloat = 3
)

const (
	formatUnknown format = iota
	formatWAV
	formatMP3
)

func (f format) String() string {
	switch f {
	case formatWAV:
		return "wav"
	case formatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

func sniff(data []byte) format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return formatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return formatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return formatMP3
	default:
		return formatUnknown
	}
}

// Decode decodes a WAV or MP3 file held in memory. Multi-channel audio is
// summed into a single channel.
func Decode(data []byte) (*Track, error) {
	f := sniff(data)
	var (
		t   *Track
		err error
	)
	switch f {
	case formatWAV:
		t, err = decodeWAV(data)
	case formatMP3:
		t, err = decodeMP3(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}

	if t.SampleRate <= 0 {
		return nil, fmt.Errorf("decode %s: invalid sample rate %v", f, t.SampleRate)
	}
	t.Duration = time.Duration(float64(len(t.Samples)) / t.SampleRate * float64(time.Second))
	log.Debugf("Decode: %s, %d channels at %.0f Hz, %v", f, t.Channels, t.SampleRate, t.Duration)
	return t, nil
}

// DecodeFile reads and decodes path. The track is named after the file.
func DecodeFile(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, err
	}
	t.Name = filepath.Base(path)
	return t, nil
}

func decodeWAV(data []byte) (*Track, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	channels := buf.Format.NumChannels
	depth := int(d.BitDepth)
	if channels < 1 || depth < 8 || depth > 32 {
		return nil, fmt.Errorf("%w: %d channels at %d bits", ErrUnsupportedFormat, channels, depth)
	}

	var sample func(v int) float32
	switch d.WavAudioFormat {
	case wavPCM:
		scale := 1 / float32(int64(1)<<(depth-1))
		var bias int
		if depth == 8 {
			// 8 bit WAV is unsigned.
			bias = 128
		}
		sample = func(v int) float32 { return float32(v-bias) * scale }
	case wavFloat:
		if depth != 32 {
			return nil, fmt.Errorf("%w: %d bit float WAV", ErrUnsupportedFormat, depth)
		}
		// The decoder reads 32 bit samples as int32, which keeps the bits.
		sample = func(v int) float32 { return math.Float32frombits(uint32(int32(v))) }
	default:
		return nil, fmt.Errorf("%w: WAV audio format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += sample(buf.Data[i*channels+c])
		}
		samples[i] = sum
	}

	return &Track{
		Samples:    samples,
		SampleRate: float64(buf.Format.SampleRate),
		Channels:   channels,
	}, nil
}

// decodeMP3 reads the stream go-mp3 produces: 16 bit little endian stereo.
func decodeMP3(data []byte) (*Track, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}

	const channels, frameBytes = 2, 4
	frames := len(pcm) / frameBytes
	samples := make([]float32, frames)
	for i := range frames {
		l := int16(binary.LittleEndian.Uint16(pcm[i*frameBytes:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*frameBytes+2:]))
		samples[i] = (float32(l) + float32(r)) / 32768
	}

	return &Track{
		Samples:    samples,
		SampleRate: float64(d.SampleRate()),
		Channels:   channels,
	}, nil
}
