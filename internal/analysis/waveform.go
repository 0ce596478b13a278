// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"musicviz/internal/framebuf"
	"musicviz/internal/log"
)

// WaveformConfig sizes a WaveformSmoother.
type WaveformConfig struct {
	Stride       int     // frames skipped between points
	Capacity     int     // maximum number of points
	SmoothFactor float32 // per second rate of each point
}

func DefaultWaveformConfig() WaveformConfig {
	return WaveformConfig{
		Stride:       2,
		Capacity:     400,
		SmoothFactor: 1.2,
	}
}

// Point is one normalized waveform sample. Index 0 is the newest frame.
type Point struct {
	Index int     `json:"i"`
	Value float32 `json:"v"`
}

// WaveformSmoother implements the wave mode: it smooths raw left channel
// amplitudes directly, without a transform.
type WaveformSmoother struct {
	cfg      WaveformConfig
	peak     *Peak
	smoothed []float32
	points   []Point
}

func NewWaveformSmoother(cfg WaveformConfig, peak *Peak) (*WaveformSmoother, error) {
	if cfg.Stride < 1 {
		return nil, fmt.Errorf("wave stride must be at least 1, got %d", cfg.Stride)
	}
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("wave capacity must be at least 1, got %d", cfg.Capacity)
	}
	if cfg.SmoothFactor <= 0 {
		return nil, fmt.Errorf("wave smooth factor must be positive, got %g", cfg.SmoothFactor)
	}
	if peak == nil {
		peak = NewPeak()
	}

	log.Infof("Analysis: Initializing WaveformSmoother (Stride: %d, Points: %d)", cfg.Stride, cfg.Capacity)

	return &WaveformSmoother{
		cfg:      cfg,
		peak:     peak,
		smoothed: make([]float32, cfg.Capacity),
		points:   make([]Point, cfg.Capacity),
	}, nil
}

// Process walks frames backward from the newest one, Stride frames at a
// time, and returns at most Capacity points. Points are normalized by the
// running peak, so an older loud sample does not rescale newer points. The returned slice is reused
// by the next call. Empty input returns nil.
func (w *WaveformSmoother) Process(frames []framebuf.Frame, dt float32) []Point {
	if len(frames) == 0 {
		return nil
	}

	k := step(w.cfg.SmoothFactor, dt)
	n := 0
	for i := len(frames) - 1; i >= 0 && n < w.cfg.Capacity; i -= w.cfg.Stride {
		s := w.smoothed[n] + (frames[i].Left-w.smoothed[n])*k
		w.smoothed[n] = s
		// Each point uses the peak as it stands after its own sample.
		w.peak.Observe(s)
		w.points[n] = Point{Index: n, Value: clamp(s/w.peak.Value(), -1, 1)}
		n++
	}
	return w.points[:n]
}

func (w *WaveformSmoother) Reset() {
	clear(w.smoothed)
}

// Series returns a copy of the smoothed amplitudes.
func (w *WaveformSmoother) Series() []float32 {
	return append([]float32(nil), w.smoothed...)
}

// Restore loads amplitudes produced by Series. An empty slice resets.
func (w *WaveformSmoother) Restore(smoothed []float32) error {
	if len(smoothed) == 0 {
		w.Reset()
		return nil
	}
	if len(smoothed) != len(w.smoothed) {
		return fmt.Errorf("wave state has %d points, smoother has %d", len(smoothed), len(w.smoothed))
	}
	copy(w.smoothed, smoothed)
	return nil
}
