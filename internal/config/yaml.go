// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spectro/internal/log"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug       bool              `yaml:"debug"`     // Forces the debug log level.
	LogLevel    string            `yaml:"log_level"` // debug, info, warn, error.
	LogFile     string            `yaml:"log_file"`  // Optional, used while the TUI owns the terminal.
	Audio       AudioConfig       `yaml:"audio"`
	Spectrogram SpectrogramConfig `yaml:"spectrogram"`
	Render      RenderConfig      `yaml:"render"`
	Pitch       PitchConfig       `yaml:"pitch"`
	Recording   RecordingConfig   `yaml:"recording"`
	Transport   TransportConfig   `yaml:"transport"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// AudioConfig holds settings related to the capture device.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Capture rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Samples per capture chunk.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low latency settings.
	InputChannels   int     `yaml:"input_channels"`    // Captured channels, mixed down to mono.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Peak below which a chunk is silenced, 0 disables.
}

// SpectrogramConfig controls windowing and the transform request pipeline.
type SpectrogramConfig struct {
	WindowSize       int           `yaml:"window_size"`       // Samples per analysis window, power of two.
	StepSize         int           `yaml:"step_size"`         // Hop between window starts.
	WindowFunction   string        `yaml:"window_function"`   // hann, hamming, blackman, rectangular.
	HistoryWidth     int           `yaml:"history_width"`     // Stored columns, 0 follows the canvas width.
	MaxBatchWindows  int           `yaml:"max_batch_windows"` // Windows per transform request before the oldest are dropped.
	TransformTimeout time.Duration `yaml:"transform_timeout"` // A request older than this is abandoned.
}

// RenderConfig holds the canvas and the initial rendering parameters.
type RenderConfig struct {
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	FrameRate      int           `yaml:"frame_rate"`
	ResizeDebounce time.Duration `yaml:"resize_debounce"`
	Workers        int           `yaml:"workers"` // Raster stripes, 0 for GOMAXPROCS.
	Sensitivity    float64       `yaml:"sensitivity"`
	Contrast       float64       `yaml:"contrast"`
	Zoom           float64       `yaml:"zoom"`
	MinFrequency   float64       `yaml:"min_frequency"`
	MaxFrequency   float64       `yaml:"max_frequency"`
	Scale          string        `yaml:"scale"`    // linear or log.
	Gradient       string        `yaml:"gradient"` // Preset name.
}

// PitchConfig tunes the fundamental frequency estimator.
type PitchConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MinFrequency float64 `yaml:"min_frequency"`
	MaxFrequency float64 `yaml:"max_frequency"`
	Threshold    float64 `yaml:"threshold"`   // YIN absolute threshold.
	SilenceRMS   float64 `yaml:"silence_rms"` // Windows quieter than this have no pitch.
}

// RecordingConfig holds settings for saving the microphone session.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"` // 16 or 24.
}

// TransportConfig holds settings for streaming frames and columns off the host.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddress string        `yaml:"websocket_address"`
	FrameInterval    time.Duration `yaml:"frame_interval"` // Minimum gap between broadcast frames.
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it looks for "config.yaml" in the working directory and falls back to the built-in
// defaults. Environment overrides are applied last and the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Level returns the effective log level name.
func (c *Config) Level() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, v ...any) {
		errs = append(errs, fmt.Errorf(format, v...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not a known level", c.LogLevel)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID {
		add("audio.input_device must be >= %d", MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		add("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		add("audio.frames_per_buffer %d outside (0, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 {
		add("audio.input_channels must be positive")
	}
	if a.GateThreshold < 0 || a.GateThreshold >= 1 {
		add("audio.gate_threshold %.3f outside [0, 1)", a.GateThreshold)
	}

	s := c.Spectrogram
	if s.WindowSize <= 0 || bits.OnesCount(uint(s.WindowSize)) != 1 || s.WindowSize > MaxWindowSize {
		add("spectrogram.window_size %d must be a power of two <= %d", s.WindowSize, MaxWindowSize)
	}
	if s.StepSize <= 0 || s.StepSize > s.WindowSize || (s.WindowSize > 0 && s.WindowSize%s.StepSize != 0) {
		add("spectrogram.step_size %d must divide window_size %d", s.StepSize, s.WindowSize)
	}
	switch strings.ToLower(s.WindowFunction) {
	case "hann", "hamming", "blackman", "rectangular":
	default:
		add("spectrogram.window_function %q is not supported", s.WindowFunction)
	}
	if s.HistoryWidth < 0 {
		add("spectrogram.history_width must not be negative")
	}
	if s.MaxBatchWindows < 1 {
		add("spectrogram.max_batch_windows must be at least 1")
	}
	if s.TransformTimeout <= 0 {
		add("spectrogram.transform_timeout must be positive")
	}

	r := c.Render
	if r.Width <= 0 || r.Height <= 0 {
		add("render.width and render.height must be positive")
	}
	if r.FrameRate <= 0 || r.FrameRate > MaxFrameRate {
		add("render.frame_rate %d outside (0, %d]", r.FrameRate, MaxFrameRate)
	}
	if r.ResizeDebounce < 0 {
		add("render.resize_debounce must not be negative")
	}
	if r.Workers < 0 {
		add("render.workers must not be negative")
	}
	if r.Sensitivity < 0 || r.Sensitivity > 1 {
		add("render.sensitivity %.2f outside [0, 1]", r.Sensitivity)
	}
	if r.Contrast < 0 || r.Contrast > 1 {
		add("render.contrast %.2f outside [0, 1]", r.Contrast)
	}
	if r.Zoom < 1 {
		add("render.zoom %.2f must be >= 1", r.Zoom)
	}
	if r.MinFrequency < 0 || r.MinFrequency >= r.MaxFrequency {
		add("render.min_frequency must be >= 0 and below max_frequency")
	}
	if r.Scale != "linear" && r.Scale != "log" {
		add("render.scale %q must be linear or log", r.Scale)
	}
	if r.Scale == "log" && r.MinFrequency <= 0 {
		add("render.min_frequency must be positive for the log scale")
	}
	if r.Gradient == "" {
		add("render.gradient must name a preset")
	}

	p := c.Pitch
	if p.Enabled {
		if p.MinFrequency <= 0 || p.MinFrequency >= p.MaxFrequency {
			add("pitch.min_frequency must be positive and below max_frequency")
		}
		if p.MaxFrequency >= a.SampleRate/2 {
			add("pitch.max_frequency must be below the Nyquist frequency")
		}
		if p.Threshold <= 0 || p.Threshold >= 1 {
			add("pitch.threshold %.2f outside (0, 1)", p.Threshold)
		}
		if p.SilenceRMS < 0 {
			add("pitch.silence_rms must not be negative")
		}
	}

	if c.Recording.Enabled {
		if c.Recording.OutputDir == "" {
			add("recording.output_dir must be set when recording is enabled")
		}
		if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
			add("recording.bit_depth %d must be 16 or 24", c.Recording.BitDepth)
		}
	}

	t := c.Transport
	if t.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(t.WebSocketAddress); err != nil {
			add("transport.websocket_address %q: %v", t.WebSocketAddress, err)
		}
		if t.FrameInterval <= 0 {
			add("transport.frame_interval must be positive")
		}
	}
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			add("transport.udp_target_address %q: %v", t.UDPTargetAddress, err)
		}
		if t.UDPSendInterval <= 0 {
			add("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			add("metrics.address %q: %v", c.Metrics.Address, err)
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies the ENV_* variables on top of the file values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			log.Debugf("Config: overriding debug from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Debugf("Config: overriding log_level from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		c.Transport.WebSocketEnabled = val != ""
		log.Debugf("Config: overriding transport.websocket_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			log.Debugf("Config: overriding transport.udp_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Debugf("Config: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
			log.Debugf("Config: overriding transport.udp_send_interval from env: %s", d)
		}
	}
	if val, ok := os.LookupEnv("ENV_METRICS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Metrics.Enabled = b
			log.Debugf("Config: overriding metrics.enabled from env: %v", b)
		}
	}
}
