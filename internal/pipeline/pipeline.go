// SPDX-License-Identifier: MIT
/*
Package pipeline owns one visualizer session: the frame buffer shared by
the audio producer and the render consumer, plus both analysis paths and
their common peak.

Thread Safety:
  - PushFrames may be called from the audio callback concurrently with
    everything else. It never blocks.
  - Every other method belongs to the render consumer and must be called
    from a single goroutine.
*/
package pipeline

import (
	"fmt"

	"musicviz/internal/analysis"
	"musicviz/internal/framebuf"
	"musicviz/internal/log"
)

// Config sizes a Pipeline.
type Config struct {
	BufferCapacity int
	ReadMode       framebuf.ReadMode
	Mode           analysis.Mode
	Spectrum       analysis.SpectrumConfig
	Waveform       analysis.WaveformConfig
}

// DefaultConfig uses a 16384 frame buffer and a transform twice that size.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: 2 << 13,
		ReadMode:       framebuf.ReadCopy,
		Mode:           analysis.ModeFrequency,
		Spectrum:       analysis.DefaultSpectrumConfig(),
		Waveform:       analysis.DefaultWaveformConfig(),
	}
}

// Output is the result of one render tick. Exactly one of Bars and Points
// is set, matching Mode. Both are nil when there was nothing to analyze.
type Output struct {
	Mode   analysis.Mode
	Bars   []analysis.Bar
	Points []analysis.Point
}

// Empty reports whether the tick produced nothing to draw.
func (o Output) Empty() bool {
	return o.Bars == nil && o.Points == nil
}

type Pipeline struct {
	cfg      Config
	buffer   *framebuf.Buffer
	peak     *analysis.Peak
	spectrum *analysis.SpectrumAnalyzer
	waveform *analysis.WaveformSmoother
	mode     analysis.Mode

	snapshot []framebuf.Frame // reused between ticks
}

func New(cfg Config) (*Pipeline, error) {
	buffer, err := framebuf.New(cfg.BufferCapacity)
	if err != nil {
		return nil, err
	}
	if cfg.Spectrum.FFTSize < cfg.BufferCapacity {
		log.Warnf("Pipeline: FFT size %d is smaller than the buffer (%d frames); only the newest frames are analyzed",
			cfg.Spectrum.FFTSize, cfg.BufferCapacity)
	}

	peak := analysis.NewPeak()
	spectrum, err := analysis.NewSpectrumAnalyzer(cfg.Spectrum, peak)
	if err != nil {
		return nil, fmt.Errorf("spectrum analyzer: %w", err)
	}
	waveform, err := analysis.NewWaveformSmoother(cfg.Waveform, peak)
	if err != nil {
		return nil, fmt.Errorf("waveform smoother: %w", err)
	}

	return &Pipeline{
		cfg:      cfg,
		buffer:   buffer,
		peak:     peak,
		spectrum: spectrum,
		waveform: waveform,
		mode:     cfg.Mode,
		snapshot: make([]framebuf.Frame, 0, cfg.BufferCapacity),
	}, nil
}

// PushFrames is the producer entry point: interleaved stereo samples as
// delivered by an audio callback. A chunk that meets a busy consumer is
// dropped.
func (p *Pipeline) PushFrames(interleaved []float32, frameCount int) {
	p.buffer.PushInterleaved(interleaved, frameCount)
}

// ConsumeSpectrum runs the frequency path over the buffered frames.
func (p *Pipeline) ConsumeSpectrum(dt float32) []analysis.Bar {
	p.snapshot = p.buffer.Read(p.cfg.ReadMode, p.snapshot)
	return p.spectrum.Process(p.snapshot, dt)
}

// ConsumeWaveform runs the wave path over the buffered frames.
func (p *Pipeline) ConsumeWaveform(dt float32) []analysis.Point {
	p.snapshot = p.buffer.Read(p.cfg.ReadMode, p.snapshot)
	return p.waveform.Process(p.snapshot, dt)
}

// Consume runs whichever path the current mode selects. The slices in the
// result are reused by the next call.
func (p *Pipeline) Consume(dt float32) Output {
	out := Output{Mode: p.mode}
	if p.mode == analysis.ModeWave {
		out.Points = p.ConsumeWaveform(dt)
	} else {
		out.Bars = p.ConsumeSpectrum(dt)
	}
	return out
}

// ResetFilter zeroes every smoothed trace and lowers the peak to its
// default. Call it on seek and track change.
func (p *Pipeline) ResetFilter() {
	p.spectrum.Reset()
	p.waveform.Reset()
	p.peak.Reset()
}

// SetMode switches the analysis path. Switching resets the filter since
// the two paths share the peak but not its scale.
func (p *Pipeline) SetMode(m analysis.Mode) {
	if m == p.mode {
		return
	}
	log.Debugf("Pipeline: Switching mode %v -> %v", p.mode, m)
	p.mode = m
	p.ResetFilter()
}

// ToggleMode flips between frequency and wave mode.
func (p *Pipeline) ToggleMode() analysis.Mode {
	if p.mode == analysis.ModeWave {
		p.SetMode(analysis.ModeFrequency)
	} else {
		p.SetMode(analysis.ModeWave)
	}
	return p.mode
}

func (p *Pipeline) Mode() analysis.Mode {
	return p.mode
}

// Clear empties the frame buffer and resets the filter, as on loading a
// new track.
func (p *Pipeline) Clear() {
	p.buffer.Reset()
	p.ResetFilter()
}

// Dropped counts producer chunks lost to a busy consumer.
func (p *Pipeline) Dropped() uint64 {
	return p.buffer.Dropped()
}

// Buffer exposes the frame buffer for producers that push Frame chunks
// directly and for diagnostics.
func (p *Pipeline) Buffer() *framebuf.Buffer {
	return p.buffer
}

// Spectrum exposes the frequency analyzer for layout queries.
func (p *Pipeline) Spectrum() *analysis.SpectrumAnalyzer {
	return p.spectrum
}

// SaveState captures everything needed to resume analysis.
func (p *Pipeline) SaveState() analysis.State {
	smoothed, shadow := p.spectrum.Series()
	return analysis.State{
		Mode:         p.mode,
		MaxAmplitude: p.peak.Value(),
		Smoothed:     smoothed,
		Shadow:       shadow,
		Wave:         p.waveform.Series(),
	}
}

// RestoreState loads a snapshot taken by SaveState on a pipeline with the
// same layout. On error the pipeline is left reset.
func (p *Pipeline) RestoreState(s analysis.State) error {
	if s.Mode != analysis.ModeFrequency && s.Mode != analysis.ModeWave {
		return fmt.Errorf("restore state: invalid mode %d", int(s.Mode))
	}
	p.mode = s.Mode
	p.ResetFilter()

	if err := p.spectrum.Restore(s.Smoothed, s.Shadow); err != nil {
		p.ResetFilter()
		return fmt.Errorf("restore state: %w", err)
	}
	if err := p.waveform.Restore(s.Wave); err != nil {
		p.ResetFilter()
		return fmt.Errorf("restore state: %w", err)
	}
	p.peak.Observe(s.MaxAmplitude)
	return nil
}
