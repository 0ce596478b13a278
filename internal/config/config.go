// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the visualizer.
const (
	// Audio capture
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false       // Standard latency mode
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultGateEnabled     = false       // Pass everything through
	DefaultGateThreshold   = 0.001       // ~-60 dBFS

	// Frame buffer
	DefaultBufferCapacity = 2 << 13 // 16384 frames
	DefaultReadMode       = "copy"  // Overlapping windows between ticks

	// Analysis
	DefaultMode             = "frequency"
	DefaultFFTSize          = 2 * DefaultBufferCapacity
	DefaultStartBin         = 20 // Skips near-DC content
	DefaultBuckets          = 800
	DefaultSmoothFactor     = 10.0
	DefaultShadowFactor     = 0.7
	DefaultWindow           = "hann"
	DefaultWaveStride       = 2
	DefaultWavePoints       = 400
	DefaultWaveSmoothFactor = 1.2

	// Render and transport
	DefaultFPS              = 60
	DefaultWebSocketEnabled = true
	DefaultWebSocketAddr    = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	// Recording
	DefaultRecordInputStream = false
	DefaultOutputFile        = "" // Auto-generated filename
	DefaultBitDepth          = 16

	// File source
	DefaultSourceChunkFrames = 1024

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MaxFPS          = 240
	MaxFFTSize      = 1 << 20

	// Error handling configuration
	DefaultMaxConsecutiveWriteFailures = 5 // Max failures before stopping
)
