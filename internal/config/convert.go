// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"time"

	"musicviz/internal/analysis"
	"musicviz/internal/framebuf"
	"musicviz/internal/pipeline"
)

// Pipeline translates the analysis and buffer sections into a pipeline
// configuration. Validate must have passed.
func (c *Config) Pipeline() (pipeline.Config, error) {
	readMode, err := framebuf.ParseReadMode(c.Buffer.ReadMode)
	if err != nil {
		return pipeline.Config{}, err
	}
	mode, err := analysis.ParseMode(c.Analysis.Mode)
	if err != nil {
		return pipeline.Config{}, err
	}
	window, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return pipeline.Config{}, err
	}

	return pipeline.Config{
		BufferCapacity: c.Buffer.Capacity,
		ReadMode:       readMode,
		Mode:           mode,
		Spectrum: analysis.SpectrumConfig{
			FFTSize:      c.Analysis.FFTSize,
			StartBin:     c.Analysis.StartBin,
			Capacity:     c.Analysis.Buckets,
			SmoothFactor: c.Analysis.SmoothFactor,
			ShadowFactor: c.Analysis.ShadowFactor,
			Window:       window,
		},
		Waveform: analysis.WaveformConfig{
			Stride:       c.Analysis.WaveStride,
			Capacity:     c.Analysis.WavePoints,
			SmoothFactor: c.Analysis.WaveSmoothFactor,
		},
	}, nil
}

// RecordingPath returns the configured output file or a timestamped name.
func (c *Config) RecordingPath(now time.Time) string {
	if c.Recording.OutputFile != "" {
		return c.Recording.OutputFile
	}
	return fmt.Sprintf("recording-%s.wav", now.UTC().Format("02-01-2006-150405"))
}
