// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"os"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	testFrequency  = 440.0 // A4 note
)

var testMagnitudes []float32

func TestMain(m *testing.M) {
	testMagnitudes = make([]float32, testSize)

	// Creates a "hill" with peak at position testSize/4.
	for i := range testMagnitudes {
		testMagnitudes[i] = float32(math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2)))
	}

	os.Exit(m.Run())
}

func TestColumnSink(t *testing.T) {
	tests := []struct {
		name   string
		column []float32
	}{
		{"Empty Column", []float32{}},
		{"Single Value", []float32{0.5}},
		{"Multiple Values", []float32{0.1, 0.2, 0.3, 0.4, 0.5}},
		{"Large Column", make([]float32, 2048)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ColumnSink{}

			if err := s.Send(tt.column); err != nil {
				t.Errorf("ColumnSink.Send() error = %v", err)
			}

			if len(s.Last) != len(tt.column) {
				t.Errorf("ColumnSink.Send() stored length = %d, want %d", len(s.Last), len(tt.column))
			}

			if len(tt.column) > 0 {
				original := tt.column[0]
				tt.column[0] = 999.999

				if s.Last[0] == 999.999 {
					t.Errorf("ColumnSink.Send() stored reference instead of copy")
				}

				tt.column[0] = original
			}

			if s.Count != 1 {
				t.Errorf("ColumnSink.Count = %d, want 1", s.Count)
			}
		})
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Note", 1024, 44100, 440.0},
		{"Middle C", 1024, 44100, 261.63},
		{"High Sample Rate", 1024, 192000, 440.0},
		{"Low Sample Rate", 1024, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency, 0.5)

			if len(result) != tt.size {
				t.Fatalf("GenerateSineWave() buffer size = %d, want %d", len(result), tt.size)
			}

			for i, v := range result {
				if v > 0.5 || v < -0.5 {
					t.Fatalf("sample %d = %f exceeds amplitude 0.5", i, v)
				}
			}

			samplesPerCycle := tt.sampleRate / tt.frequency
			crossCount := 0
			for i := 1; i < tt.size; i++ {
				if (result[i-1] < 0 && result[i] >= 0) || (result[i-1] >= 0 && result[i] < 0) {
					crossCount++
				}
			}

			// Two crossings per cycle, 20% margin for phase alignment.
			expected := float64(tt.size) / (samplesPerCycle / 2)
			tolerance := 0.2 * expected
			if math.Abs(float64(crossCount)-expected) > tolerance {
				t.Errorf("zero crossings = %d, expected approximately %.1f±%.1f", crossCount, expected, tolerance)
			}
		})
	}
}

func TestGenerateComplexWave(t *testing.T) {
	result := GenerateComplexWave(testSize, testSampleRate)
	if len(result) != testSize {
		t.Fatalf("GenerateComplexWave() buffer size = %d, want %d", len(result), testSize)
	}

	hasNonZero := false
	for _, v := range result {
		if v != 0 {
			hasNonZero = true
			break
		}
	}
	if !hasNonZero {
		t.Errorf("GenerateComplexWave() produced all zeros")
	}
}

func TestGenerateRampAndChunk(t *testing.T) {
	ramp := GenerateRamp(10, 5)
	if ramp[0] != 5 || ramp[9] != 14 {
		t.Fatalf("GenerateRamp() = %v", ramp)
	}

	chunks := Chunk(ramp, 4)
	if len(chunks) != 3 {
		t.Fatalf("Chunk() produced %d chunks, want 3", len(chunks))
	}
	if len(chunks[2]) != 2 || chunks[2][1] != 14 {
		t.Errorf("last chunk = %v, want [13 14]", chunks[2])
	}
	if Chunk(ramp, 0) != nil {
		t.Errorf("Chunk(n=0) should return nil")
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		mags     []float32
		start    int
		end      int
		expected int
	}{
		{"Full Range", testMagnitudes, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", testMagnitudes, testSize / 8, testSize - 1, testSize / 4},
		{"Partial Range End", testMagnitudes, 0, testSize / 3, testSize / 4},
		{"Negative Start", testMagnitudes, -10, testSize - 1, testSize / 4},
		{"Out of Range End", testMagnitudes, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float32{}, 0, 10, 0},
		{"Single Value", []float32{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FindPeakBin(tt.mags, tt.start, tt.end); result != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", result, tt.expected)
			}
		})
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(testMagnitudes, 0, len(testMagnitudes)-1)
	})
	if allocs > 0 {
		t.Errorf("FindPeakBin allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkGenerateSineWave(b *testing.B) {
	benchmarks := []struct {
		name string
		size int
	}{
		{"Small", 64},
		{"Standard", 1024},
		{"Large", 8192},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				GenerateSineWave(bm.size, testSampleRate, testFrequency, 1)
			}
		})
	}
}

func BenchmarkFindPeakBin(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		FindPeakBin(testMagnitudes, 0, testSize-1)
	}
}
