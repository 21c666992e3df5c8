// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"spectro/internal/audio"
	"spectro/internal/config"
	"spectro/internal/tui"
	"spectro/pkg/build"
)

// flags holds the command line overrides. Only flags the user set are
// applied on top of the loaded configuration.
type flags struct {
	configPath string

	device          int
	sampleRate      float64
	channels        int
	framesPerBuffer int
	lowLatency      bool
	gate            float64

	record    bool
	outputDir string

	verbose bool
	logFile string

	websocket string
	udp       string
	metrics   string

	headless bool
	snapshot string
}

// Execute runs the command line until ctx is cancelled or the chosen
// command finishes.
func Execute(ctx context.Context, args []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	info := build.Get()
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "spectro",
		Short:         "Live spectrogram and pitch display for the microphone and audio files",
		Version:       info.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, source{headless: f.headless})
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Microphone
	micCmd := &cobra.Command{
		Use:   "mic",
		Short: "Show the microphone spectrogram (the default)",
		Args:  cobra.NoArgs,
		RunE:  rootCmd.RunE,
	}

	// File playback
	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Render a WAV or MP3 file in real time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, source{
				path:     args[0],
				headless: f.headless,
				snapshot: f.snapshot,
			})
		},
	}
	fileCmd.Flags().StringVar(&f.snapshot, "snapshot", "",
		"Write the last frame to this PNG file on exit")

	// Device listing
	var interactive bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return pickDevice(cmd.OutOrStdout())
			}
			devices, err := audio.GetDevices()
			if err != nil {
				return err
			}
			audio.ListDevices(cmd.OutOrStdout(), devices)
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"Pick a device and print its configuration")

	// Version
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.Get())
		},
	}

	rootCmd.AddCommand(micCmd, fileCmd, listCmd, versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "f", "",
		"Configuration file (default ./config.yaml when present)")

	// Audio Device Configuration
	pf.IntVarP(&f.device, "device", "d", config.DefaultInputDevice,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&f.channels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to capture, mixed down to mono")
	pf.IntVarP(&f.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&f.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.Float64Var(&f.gate, "gate", 0,
		"Silence chunks whose peak is below this level (0 disables)")

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", false,
		"Record the microphone session to a WAV file")
	pf.StringVarP(&f.outputDir, "output-dir", "o", config.DefaultRecordingDir,
		"Directory for recordings")

	// Outputs
	pf.StringVar(&f.websocket, "websocket", "",
		"Serve frames and status on this address (host:port)")
	pf.StringVar(&f.udp, "udp", "",
		"Publish the latest spectrum column to this address (host:port)")
	pf.StringVar(&f.metrics, "metrics", "",
		"Serve Prometheus metrics on this address (host:port)")
	pf.BoolVar(&f.headless, "headless", false,
		"Run without the terminal view and log status changes instead")

	// Debug Configuration
	pf.BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVar(&f.logFile, "log-file", "",
		"Write the log to this file")

	return rootCmd
}

// load reads the configuration and applies the flags that were set.
func (f *flags) load(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	f.apply(cfg, fs.Changed)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func (f *flags) apply(cfg *config.Config, changed func(string) bool) {
	if changed("device") {
		cfg.Audio.InputDevice = f.device
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("gate") {
		cfg.Audio.GateThreshold = f.gate
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output-dir") {
		cfg.Recording.OutputDir = f.outputDir
	}
	if changed("websocket") {
		cfg.Transport.WebSocketAddress = f.websocket
		cfg.Transport.WebSocketEnabled = f.websocket != ""
	}
	if changed("udp") {
		cfg.Transport.UDPTargetAddress = f.udp
		cfg.Transport.UDPEnabled = f.udp != ""
	}
	if changed("metrics") {
		cfg.Metrics.Address = f.metrics
		cfg.Metrics.Enabled = f.metrics != ""
	}
	if changed("verbose") {
		cfg.Debug = f.verbose
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
}

// pickDevice runs the interactive picker and prints the audio section for
// the chosen device.
func pickDevice(w io.Writer) error {
	sel, err := tui.PickDevice()
	if err != nil {
		return err
	}
	if sel == nil {
		return nil
	}
	return writeAudioSection(w, sel)
}

func writeAudioSection(w io.Writer, sel *tui.Selection) error {
	a := config.Default().Audio
	a.InputDevice = sel.DeviceID
	a.SampleRate = sel.SampleRate
	a.InputChannels = max(sel.Channels, 1)

	fmt.Fprintf(w, "# %s\n", sel.Name)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Audio config.AudioConfig `yaml:"audio"`
	}{a}); err != nil {
		return err
	}
	return enc.Close()
}
