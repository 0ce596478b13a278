// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"musicviz/internal/analysis"
	"musicviz/internal/framebuf"
	"musicviz/internal/log"
	"musicviz/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"`  // Logging level (e.g., "debug", "info", "warn", "error").
	StateFile string          `yaml:"state_file"` // Analyzer state restored at start and saved on exit ("" disables).
	Audio     AudioConfig     `yaml:"audio"`      // Audio capture settings.
	Buffer    BufferConfig    `yaml:"buffer"`     // Frame buffer settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`   // Spectrum and waveform settings.
	Render    RenderConfig    `yaml:"render"`     // Render loop settings.
	Transport TransportConfig `yaml:"transport"`  // Output transports.
	Recording RecordingConfig `yaml:"recording"`  // Audio recording settings.
	Source    SourceConfig    `yaml:"source"`     // File playback instead of live capture.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback (affects latency).
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	GateEnabled     bool    `yaml:"gate_enabled"`      // Silence callbacks whose peak is below the threshold.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Gate threshold as a fraction of full scale (0-1).
}

// BufferConfig sizes the frame buffer between the audio and render threads.
type BufferConfig struct {
	Capacity int    `yaml:"capacity"`  // Frames retained.
	ReadMode string `yaml:"read_mode"` // "copy" keeps frames between ticks, "drain" empties the buffer.
}

// AnalysisConfig holds the spectrum and waveform parameters.
type AnalysisConfig struct {
	Mode             string  `yaml:"mode"`               // "frequency" or "wave".
	FFTSize          int     `yaml:"fft_size"`           // Transform size (power of 2).
	StartBin         int     `yaml:"start_bin"`          // First bin of the lowest bucket.
	Buckets          int     `yaml:"buckets"`            // Bar capacity.
	SmoothFactor     float32 `yaml:"smooth_factor"`      // Bar smoothing rate per second.
	ShadowFactor     float32 `yaml:"shadow_factor"`      // Shadow trace rate per second.
	Window           string  `yaml:"window"`             // Window function name (e.g., "hann", "hamming").
	WaveStride       int     `yaml:"wave_stride"`        // Frames between waveform points.
	WavePoints       int     `yaml:"wave_points"`        // Waveform point capacity.
	WaveSmoothFactor float32 `yaml:"wave_smooth_factor"` // Waveform smoothing rate per second.
}

// RenderConfig drives the consumer loop.
type RenderConfig struct {
	FPS int `yaml:"fps"` // Ticks per second.
}

// TransportConfig holds settings related to sending rendered frames.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames on ws://addr/ws.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address for the WebSocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending bars over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
	LogFrames        bool          `yaml:"log_frames"`         // Log a summary of every frame at debug level.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Enable audio recording to file.
	OutputFile string `yaml:"output_file"` // Output path; generated when empty.
	BitDepth   int    `yaml:"bit_depth"`   // Bit depth for recorded audio (16, 24 or 32).
}

// SourceConfig selects file playback.
type SourceConfig struct {
	File        string `yaml:"file"`         // Audio file (.wav, .mp3, .ogg); empty for live capture.
	Loop        bool   `yaml:"loop"`         // Restart at end of file.
	ChunkFrames int    `yaml:"chunk_frames"` // Frames per simulated callback.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			GateEnabled:     DefaultGateEnabled,
			GateThreshold:   DefaultGateThreshold,
		},
		Buffer: BufferConfig{
			Capacity: DefaultBufferCapacity,
			ReadMode: DefaultReadMode,
		},
		Analysis: AnalysisConfig{
			Mode:             DefaultMode,
			FFTSize:          DefaultFFTSize,
			StartBin:         DefaultStartBin,
			Buckets:          DefaultBuckets,
			SmoothFactor:     DefaultSmoothFactor,
			ShadowFactor:     DefaultShadowFactor,
			Window:           DefaultWindow,
			WaveStride:       DefaultWaveStride,
			WavePoints:       DefaultWavePoints,
			WaveSmoothFactor: DefaultWaveSmoothFactor,
		},
		Render: RenderConfig{
			FPS: DefaultFPS,
		},
		Transport: TransportConfig{
			WebSocketEnabled: DefaultWebSocketEnabled,
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Recording: RecordingConfig{
			Enabled:    DefaultRecordInputStream,
			OutputFile: DefaultOutputFile,
			BitDepth:   DefaultBitDepth,
		},
		Source: SourceConfig{
			ChunkFrames: DefaultSourceChunkFrames,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "musicviz.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
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
		log.Debugf("Config: Loaded %s", path)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, ok := log.ParseLevel(c.LogLevel)
	check(ok, "log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel)

	// Audio
	check(c.Audio.InputDevice >= MinDeviceID, "audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice)
	check(c.Audio.SampleRate >= MinSampleRate && c.Audio.SampleRate <= MaxSampleRate,
		"audio.sample_rate must be in [%d, %d], got %g", MinSampleRate, MaxSampleRate, c.Audio.SampleRate)
	check(c.Audio.FramesPerBuffer >= 1 && c.Audio.FramesPerBuffer <= MaxBufferFrames,
		"audio.frames_per_buffer must be in [1, %d], got %d", MaxBufferFrames, c.Audio.FramesPerBuffer)
	check(c.Audio.GateThreshold >= 0 && c.Audio.GateThreshold <= 1,
		"audio.gate_threshold must be in [0, 1], got %g", c.Audio.GateThreshold)

	// Buffer
	check(c.Buffer.Capacity >= 1, "buffer.capacity must be >= 1, got %d", c.Buffer.Capacity)
	if _, err := framebuf.ParseReadMode(c.Buffer.ReadMode); err != nil {
		errs = append(errs, fmt.Errorf("buffer.read_mode: %w", err))
	}

	// Analysis
	a := c.Analysis
	if _, err := analysis.ParseMode(a.Mode); err != nil {
		errs = append(errs, fmt.Errorf("analysis.mode: %w", err))
	}
	if _, err := analysis.ParseWindowFunc(a.Window); err != nil {
		errs = append(errs, fmt.Errorf("analysis.window: %w", err))
	}
	fftOK := bitint.IsPowerOfTwo(a.FFTSize) && a.FFTSize <= MaxFFTSize
	check(fftOK, "analysis.fft_size must be a power of 2 up to %d, got %d", MaxFFTSize, a.FFTSize)
	if fftOK {
		if _, err := analysis.Buckets(a.StartBin, a.FFTSize, a.Buckets); err != nil {
			errs = append(errs, fmt.Errorf("analysis buckets: %w", err))
		}
	}
	check(a.SmoothFactor > 0, "analysis.smooth_factor must be positive, got %g", a.SmoothFactor)
	check(a.ShadowFactor > 0, "analysis.shadow_factor must be positive, got %g", a.ShadowFactor)
	check(a.WaveStride >= 1, "analysis.wave_stride must be >= 1, got %d", a.WaveStride)
	check(a.WavePoints >= 1, "analysis.wave_points must be >= 1, got %d", a.WavePoints)
	check(a.WaveSmoothFactor > 0, "analysis.wave_smooth_factor must be positive, got %g", a.WaveSmoothFactor)

	// Render
	check(c.Render.FPS >= 1 && c.Render.FPS <= MaxFPS, "render.fps must be in [1, %d], got %d", MaxFPS, c.Render.FPS)

	// Transport
	if c.Transport.WebSocketEnabled {
		check(c.Transport.WebSocketAddr != "", "transport.websocket_addr must be set when the WebSocket server is enabled")
	}
	if c.Transport.UDPEnabled {
		_, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress)
		check(err == nil, "transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		check(c.Transport.UDPSendInterval > 0, "transport.udp_send_interval must be positive when UDP is enabled")
	}

	// Recording
	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth))
	}

	// Source
	check(c.Source.ChunkFrames >= 1 && c.Source.ChunkFrames <= MaxBufferFrames,
		"source.chunk_frames must be in [1, %d], got %d", MaxBufferFrames, c.Source.ChunkFrames)

	return errors.Join(errs...)
}

// applyEnvOverrides lets ENV_* variables override values from the file.
// Unparseable values are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Infof("Config: Overriding log_level from env: %s", val)
	}
	// ENV_DEVICE
	envInt("ENV_DEVICE", "audio.input_device", &cfg.Audio.InputDevice)
	// ENV_SOURCE_FILE
	if val, ok := os.LookupEnv("ENV_SOURCE_FILE"); ok {
		cfg.Source.File = val
		log.Infof("Config: Overriding source.file from env: %s", val)
	}

	// ENV_ANALYSIS_{...}

	// ENV_MODE
	if val, ok := os.LookupEnv("ENV_MODE"); ok {
		cfg.Analysis.Mode = val
		log.Infof("Config: Overriding analysis.mode from env: %s", val)
	}
	// ENV_FFT_SIZE
	envInt("ENV_FFT_SIZE", "analysis.fft_size", &cfg.Analysis.FFTSize)
	// ENV_FPS
	envInt("ENV_FPS", "render.fps", &cfg.Render.FPS)

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		cfg.Transport.WebSocketAddr = val
		log.Infof("Config: Overriding transport.websocket_addr from env: %s", val)
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Infof("Config: Overriding transport.udp_enabled from env: %v", bVal)
		} else {
			log.Warnf("Config: Ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Infof("Config: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			log.Infof("Config: Overriding transport.udp_send_interval from env: %s", dur)
		} else {
			log.Warnf("Config: Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
}

func envInt(name, field string, dst *int) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Warnf("Config: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = n
	log.Infof("Config: Overriding %s from env: %d", field, n)
}
