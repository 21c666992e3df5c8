// SPDX-License-Identifier: MIT
//
// Package utils holds the synthetic signals and small search helpers shared
// by the analysis tests and benchmarks.
package utils

import "math"

// ColumnSink records spectrum columns instead of transmitting them. It
// stands in for a publisher in tests.
type ColumnSink struct {
	Last  []float32
	Count int
}

// Send stores a copy of column for later inspection.
func (s *ColumnSink) Send(column []float32) error {
	s.Last = make([]float32, len(column))
	copy(s.Last, column)
	s.Count++
	return nil
}

// GenerateSineWave returns size samples of a unit-less sine at frequency
// with amplitude amp.
func GenerateSineWave(size int, sampleRate, frequency, amp float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amp * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with its second and third
// harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateRamp returns 0, 1, 2 ... size-1 starting at offset. Handy for
// checking that windows land on the expected sample positions.
func GenerateRamp(size int, offset int) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(offset + i)
	}
	return buffer
}

// Chunk splits samples into consecutive slices of at most n samples. The
// returned slices alias samples.
func Chunk(samples []float32, n int) [][]float32 {
	if n <= 0 {
		return nil
	}
	chunks := make([][]float32, 0, (len(samples)+n-1)/n)
	for len(samples) > 0 {
		k := min(n, len(samples))
		chunks = append(chunks, samples[:k])
		samples = samples[k:]
	}
	return chunks
}

// FindPeakBin returns the index of the largest magnitude within
// [startBin, endBin], clamping the range to the slice.
func FindPeakBin(magnitudes []float32, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
