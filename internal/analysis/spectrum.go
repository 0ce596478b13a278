// SPDX-License-Identifier: MIT
/*
Package analysis turns frame buffer snapshots into normalized bars
(frequency mode) or points (wave mode).

Both paths keep per-slot smoothed values between ticks and normalize them
against a shared adaptive Peak. Analyzers preallocate all working memory
at construction and are driven from a single consumer goroutine.
*/
package analysis

import (
	"errors"
	"fmt"
	"math"

	"musicviz/internal/fft"
	"musicviz/internal/framebuf"
	"musicviz/internal/log"
	"musicviz/pkg/bitint"
)

// SemitoneRatio is 2^(1/12), the equal tempered step between adjacent bars.
const SemitoneRatio = 1.059463094359

// ErrBucketOverflow reports a bucket layout that does not fit the
// preallocated bar capacity. FFT size, start bin and capacity must be
// chosen together.
var ErrBucketOverflow = errors.New("bucket count exceeds capacity")

// SpectrumConfig sizes a SpectrumAnalyzer.
type SpectrumConfig struct {
	FFTSize      int        // transform size, power of two
	StartBin     int        // first bin of the lowest bucket
	Capacity     int        // maximum number of buckets
	SmoothFactor float32    // per second rate of the primary trace
	ShadowFactor float32    // per second rate of the shadow trace
	Window       WindowFunc // applied to the left channel before the transform
}

// DefaultSpectrumConfig matches a 16384 frame buffer.
func DefaultSpectrumConfig() SpectrumConfig {
	return SpectrumConfig{
		FFTSize:      32768,
		StartBin:     20,
		Capacity:     800,
		SmoothFactor: 10,
		ShadowFactor: 0.7,
		Window:       Hann,
	}
}

// Bar is one normalized frequency bucket.
type Bar struct {
	Index  int     `json:"i"`
	Value  float32 `json:"v"`
	Shadow float32 `json:"s"`
}

// Buckets returns the bucket boundaries for a transform of fftSize points:
// bucket i covers bins [b[i], b[i+1]). Boundaries start at startBin, grow
// by SemitoneRatio rounded up, and the last one is clamped to fftSize/2.
func Buckets(startBin, fftSize, capacity int) ([]int, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	nyquist := fftSize / 2
	if startBin < 1 || startBin >= nyquist {
		return nil, fmt.Errorf("start bin must be in [1, %d), got %d", nyquist, startBin)
	}

	bounds := []int{startBin}
	for k := startBin; k < nyquist; {
		k = min(nextBin(k), nyquist)
		bounds = append(bounds, k)
	}

	if count := len(bounds) - 1; count > capacity {
		return nil, fmt.Errorf("%w: %d buckets for fft size %d from bin %d, capacity %d",
			ErrBucketOverflow, count, fftSize, startBin, capacity)
	}
	return bounds, nil
}

// nextBin is ceil(k·2^(1/12)); for k >= 1 it is always at least k+1.
func nextBin(k int) int {
	return int(math.Ceil(float64(k) * SemitoneRatio))
}

// FrequencyForBin returns the centre frequency in Hz of a transform bin.
func FrequencyForBin(bin, fftSize int, sampleRate float64) float64 {
	if bin < 0 || fftSize <= 0 {
		return 0
	}
	return float64(bin) * sampleRate / float64(fftSize)
}

// SpectrumAnalyzer implements the frequency mode.
type SpectrumAnalyzer struct {
	cfg    SpectrumConfig
	peak   *Peak
	plan   *fft.Plan
	window windowTable
	bounds []int

	// Workspace, sized at construction.
	samples  []float32
	bins     []complex64
	raw      []float32
	hasRaw   []bool
	smoothed []float32
	shadow   []float32
	bars     []Bar
}

// NewSpectrumAnalyzer validates cfg and preallocates every buffer the
// analyzer needs. A nil peak gets a private one.
func NewSpectrumAnalyzer(cfg SpectrumConfig, peak *Peak) (*SpectrumAnalyzer, error) {
	bounds, err := Buckets(cfg.StartBin, cfg.FFTSize, cfg.Capacity)
	if err != nil {
		return nil, err
	}
	plan, err := fft.NewPlan(cfg.FFTSize)
	if err != nil {
		return nil, err
	}
	if cfg.SmoothFactor <= 0 || cfg.ShadowFactor <= 0 {
		return nil, fmt.Errorf("smoothing factors must be positive, got smooth=%g shadow=%g",
			cfg.SmoothFactor, cfg.ShadowFactor)
	}
	if peak == nil {
		peak = NewPeak()
	}

	count := len(bounds) - 1
	log.Infof("Analysis: Initializing SpectrumAnalyzer (FFT: %d, Buckets: %d, StartBin: %d, Window: %v)",
		cfg.FFTSize, count, cfg.StartBin, cfg.Window)

	return &SpectrumAnalyzer{
		cfg:      cfg,
		peak:     peak,
		plan:     plan,
		window:   newWindowTable(cfg.Window, cfg.FFTSize),
		bounds:   bounds,
		samples:  make([]float32, cfg.FFTSize),
		bins:     make([]complex64, cfg.FFTSize),
		raw:      make([]float32, count),
		hasRaw:   make([]bool, count),
		smoothed: make([]float32, count),
		shadow:   make([]float32, count),
		bars:     make([]Bar, count),
	}, nil
}

// Process runs one frequency mode tick over frames, oldest first. Only
// the newest FFTSize frames are used. The returned slice is reused by the
// next call. Empty input returns nil and leaves all state untouched.
func (a *SpectrumAnalyzer) Process(frames []framebuf.Frame, dt float32) []Bar {
	if len(frames) == 0 {
		return nil
	}
	a.measure(frames)

	for i := range a.bars {
		if a.hasRaw[i] {
			a.update(i, a.raw[i], dt)
		}
		a.peak.Observe(a.smoothed[i])
	}

	peak := a.peak.Value()
	for i := range a.bars {
		a.bars[i] = Bar{
			Index:  i,
			Value:  clamp(a.smoothed[i]/peak, 0, 1),
			Shadow: clamp(a.shadow[i]/peak, 0, 1),
		}
	}
	return a.bars
}

// measure windows the left channel, transforms it and fills raw with the
// log mean magnitude of each bucket.
func (a *SpectrumAnalyzer) measure(frames []framebuf.Frame) {
	n := min(len(frames), a.cfg.FFTSize)
	frames = frames[len(frames)-n:]

	coeffs := a.window.forLength(n)
	for i, f := range frames {
		a.samples[i] = f.Left * coeffs[i]
	}
	clear(a.samples[n:])

	a.plan.Forward(a.bins, a.samples)

	for i := range a.raw {
		lo, hi := a.bounds[i], a.bounds[i+1]
		var sum float32
		for _, c := range a.bins[lo:hi] {
			sum += fft.Magnitude(c)
		}
		mean := sum / float32(hi-lo)
		a.hasRaw[i] = mean > 0
		if a.hasRaw[i] {
			a.raw[i] = float32(math.Log(float64(mean)))
		}
	}
}

// update moves bucket i towards raw. The primary trace never goes below
// zero and the shadow never below the primary.
func (a *SpectrumAnalyzer) update(i int, raw, dt float32) {
	s := a.smoothed[i] + (raw-a.smoothed[i])*step(a.cfg.SmoothFactor, dt)
	s = max(s, 0)
	sh := a.shadow[i] + (raw-a.shadow[i])*step(a.cfg.ShadowFactor, dt)
	a.smoothed[i] = s
	a.shadow[i] = max(sh, s)
}

// Reset zeroes both traces. The peak is reset by its owner.
func (a *SpectrumAnalyzer) Reset() {
	clear(a.smoothed)
	clear(a.shadow)
}

// Buckets returns the number of buckets.
func (a *SpectrumAnalyzer) Buckets() int {
	return len(a.bars)
}

// Bounds returns a copy of the bucket boundaries.
func (a *SpectrumAnalyzer) Bounds() []int {
	return append([]int(nil), a.bounds...)
}

// FFTSize returns the transform size.
func (a *SpectrumAnalyzer) FFTSize() int {
	return a.cfg.FFTSize
}

// BucketFrequencies returns the lower edge in Hz of every bucket.
func (a *SpectrumAnalyzer) BucketFrequencies(sampleRate float64) []float64 {
	out := make([]float64, len(a.bars))
	for i := range out {
		out[i] = FrequencyForBin(a.bounds[i], a.cfg.FFTSize, sampleRate)
	}
	return out
}

// Series returns copies of the smoothed and shadow traces.
func (a *SpectrumAnalyzer) Series() (smoothed, shadow []float32) {
	return append([]float32(nil), a.smoothed...), append([]float32(nil), a.shadow...)
}

// Restore loads traces produced by Series. Empty slices leave the analyzer
// reset. The shadow is raised where needed so it never trails the primary.
func (a *SpectrumAnalyzer) Restore(smoothed, shadow []float32) error {
	if len(smoothed) == 0 && len(shadow) == 0 {
		a.Reset()
		return nil
	}
	if len(smoothed) != len(a.smoothed) || len(shadow) != len(a.shadow) {
		return fmt.Errorf("spectrum state has %d/%d buckets, analyzer has %d",
			len(smoothed), len(shadow), len(a.smoothed))
	}
	for i := range a.smoothed {
		a.smoothed[i] = max(smoothed[i], 0)
		a.shadow[i] = max(shadow[i], a.smoothed[i])
	}
	return nil
}
