// SPDX-License-Identifier: MIT

// Package cmd parses the command line into a validated configuration.
package cmd

import (
	"fmt"

	"musicviz/internal/config"
	"musicviz/pkg/build"

	"github.com/spf13/cobra"
)

// Command names.
const (
	CommandRun  = "run"
	CommandList = "list"
)

// Invocation is what the user asked for. A nil Invocation from ParseArgs
// means cobra already handled the request (help or version).
type Invocation struct {
	Command string
	Plain   bool // list: print instead of opening the picker
	Pick    bool // run: choose the device interactively first
	Config  *config.Config
}

type flagValues struct {
	configPath string
	device     int
	file       string
	loop       bool
	mode       string
	fftSize    int
	fps        int
	wsAddr     string
	udp        bool
	udpTarget  string
	record     bool
	output     string
	state      string
	verbose    bool
	pick       bool
	plain      bool
}

// ParseArgs runs the cobra command tree over args.
func ParseArgs(args []string) (*Invocation, error) {
	info := build.Get()
	var (
		opts flagValues
		inv  *Invocation
	)

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
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
			cfg, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}
			inv = &Invocation{Command: CommandRun, Pick: opts.pick, Config: cfg}
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}
			inv = &Invocation{Command: CommandList, Plain: opts.plain, Config: cfg}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&opts.plain, "plain", false, "Print the device list instead of opening the picker")
	rootCmd.AddCommand(listCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "",
		"YAML configuration file (default: ./config.yaml or ./musicviz.yaml if present)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show debug output")

	run := rootCmd.Flags()
	// Input
	run.IntVarP(&opts.device, "device", "d", config.DefaultDeviceID,
		"Input device ID (-1 for system default). Use 'list' to see available devices.")
	run.BoolVarP(&opts.pick, "pick", "p", false, "Choose the input device interactively")
	run.StringVarP(&opts.file, "file", "f", "", "Play an audio file (.wav, .mp3, .ogg) instead of capturing")
	run.BoolVar(&opts.loop, "loop", false, "Loop the audio file")

	// Analysis and render
	run.StringVarP(&opts.mode, "mode", "m", config.DefaultMode, "Start in 'frequency' or 'wave' mode")
	run.IntVar(&opts.fftSize, "fft-size", config.DefaultFFTSize, "Transform size (power of 2)")
	run.IntVar(&opts.fps, "fps", config.DefaultFPS, "Render ticks per second")
	run.StringVar(&opts.state, "state", "", "Analyzer state file restored at start and saved on exit")

	// Transports
	run.StringVar(&opts.wsAddr, "ws-addr", config.DefaultWebSocketAddr, "WebSocket listen address ('' disables)")
	run.BoolVar(&opts.udp, "udp", false, "Publish frames over UDP")
	run.StringVar(&opts.udpTarget, "udp-target", config.DefaultUDPTargetAddress, "UDP target address")

	// Recording
	run.BoolVarP(&opts.record, "record", "r", config.DefaultRecordInputStream, "Record the captured input to WAV")
	run.StringVarP(&opts.output, "output", "o", config.DefaultOutputFile,
		"Recording file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return inv, nil
}

// resolveConfig loads the file layer, then applies flags the user set
// explicitly so that file values survive unset flags.
func resolveConfig(cmd *cobra.Command, opts *flagValues) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	if changed("device") {
		cfg.Audio.InputDevice = opts.device
	}
	if changed("file") {
		cfg.Source.File = opts.file
	}
	if changed("loop") {
		cfg.Source.Loop = opts.loop
	}
	if changed("mode") {
		cfg.Analysis.Mode = opts.mode
	}
	if changed("fft-size") {
		cfg.Analysis.FFTSize = opts.fftSize
	}
	if changed("fps") {
		cfg.Render.FPS = opts.fps
	}
	if changed("state") {
		cfg.StateFile = opts.state
	}
	if changed("ws-addr") {
		cfg.Transport.WebSocketAddr = opts.wsAddr
		cfg.Transport.WebSocketEnabled = opts.wsAddr != ""
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = opts.udp
	}
	if changed("udp-target") {
		cfg.Transport.UDPTargetAddress = opts.udpTarget
	}
	if changed("record") {
		cfg.Recording.Enabled = opts.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = opts.output
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
