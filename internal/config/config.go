// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults for every section. The analysis defaults follow the live
// spectrogram's established look: a 4096 sample window stepping by 1024,
// sensitivity 0.4, contrast 0.35, zoom 3 and a 10Hz to 4.5kHz range.
const (
	DefaultLogLevel = "info"

	DefaultInputDevice     = MinDeviceID
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 1024
	DefaultInputChannels   = 1

	DefaultWindowSize       = 4096
	DefaultStepSize         = 1024
	DefaultWindowFunction   = "hann"
	DefaultHistoryWidth     = 0 // 0 follows the canvas width
	DefaultMaxBatchWindows  = 32
	DefaultTransformTimeout = 2 * time.Second

	DefaultCanvasWidth    = 160
	DefaultCanvasHeight   = 96
	DefaultFrameRate      = 30
	DefaultResizeDebounce = 250 * time.Millisecond
	DefaultSensitivity    = 0.4
	DefaultContrast       = 0.35
	DefaultZoom           = 3.0
	DefaultMinFrequency   = 10.0
	DefaultMaxFrequency   = 4500.0
	DefaultScale          = "linear"
	DefaultGradient       = "Black to White"

	DefaultPitchMinFrequency = 50.0
	DefaultPitchMaxFrequency = 2000.0
	DefaultPitchThreshold    = 0.15
	DefaultPitchSilenceRMS   = 0.01

	DefaultRecordingDir = "./recordings"
	DefaultBitDepth     = 16

	DefaultWebSocketAddress = "127.0.0.1:8080"
	DefaultFrameInterval    = 100 * time.Millisecond
	DefaultUDPTarget        = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond

	DefaultMetricsAddress = "127.0.0.1:9464"
)

// Hardware and processing limits.
const (
	MinDeviceID     = -1 // system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192
	MaxWindowSize   = 1 << 15
	MaxFrameRate    = 240
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultInputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
		},
		Spectrogram: SpectrogramConfig{
			WindowSize:       DefaultWindowSize,
			StepSize:         DefaultStepSize,
			WindowFunction:   DefaultWindowFunction,
			HistoryWidth:     DefaultHistoryWidth,
			MaxBatchWindows:  DefaultMaxBatchWindows,
			TransformTimeout: DefaultTransformTimeout,
		},
		Render: RenderConfig{
			Width:          DefaultCanvasWidth,
			Height:         DefaultCanvasHeight,
			FrameRate:      DefaultFrameRate,
			ResizeDebounce: DefaultResizeDebounce,
			Sensitivity:    DefaultSensitivity,
			Contrast:       DefaultContrast,
			Zoom:           DefaultZoom,
			MinFrequency:   DefaultMinFrequency,
			MaxFrequency:   DefaultMaxFrequency,
			Scale:          DefaultScale,
			Gradient:       DefaultGradient,
		},
		Pitch: PitchConfig{
			Enabled:      true,
			MinFrequency: DefaultPitchMinFrequency,
			MaxFrequency: DefaultPitchMaxFrequency,
			Threshold:    DefaultPitchThreshold,
			SilenceRMS:   DefaultPitchSilenceRMS,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			FrameInterval:    DefaultFrameInterval,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}
