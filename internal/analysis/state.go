// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"
)

// DefaultMaxAmplitude is the peak a fresh or reset analyzer normalizes
// against, so that silence is not stretched to full height.
const DefaultMaxAmplitude float32 = 0.01

// Peak is the adaptive normalization ceiling shared by both analysis paths.
// It only grows, except through Reset. The zero value is ready to use.
//
// Peak is owned by the render consumer and is not safe for concurrent use.
type Peak struct {
	value float32
}

// NewPeak returns a peak at DefaultMaxAmplitude.
func NewPeak() *Peak {
	return &Peak{value: DefaultMaxAmplitude}
}

// Observe raises the peak to v if v is larger.
func (p *Peak) Observe(v float32) {
	if v > p.Value() {
		p.value = v
	}
}

// Value returns the current peak, never less than DefaultMaxAmplitude.
func (p *Peak) Value() float32 {
	return max(p.value, DefaultMaxAmplitude)
}

// Reset lowers the peak back to DefaultMaxAmplitude.
func (p *Peak) Reset() {
	p.value = DefaultMaxAmplitude
}

// Mode selects the analysis path run on each render tick.
type Mode int

const (
	ModeFrequency Mode = iota
	ModeWave
)

func (m Mode) String() string {
	switch m {
	case ModeFrequency:
		return "frequency"
	case ModeWave:
		return "wave"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "frequency" (or "spectrum") and "wave" (or "waveform").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "frequency", "spectrum", "":
		return ModeFrequency, nil
	case "wave", "waveform":
		return ModeWave, nil
	default:
		return ModeFrequency, fmt.Errorf("unknown analysis mode %q (want frequency or wave)", s)
	}
}

// MarshalText lets Mode appear by name in YAML and JSON.
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeFrequency, ModeWave:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// State is a detached copy of everything the analyzers carry between
// ticks. It can be written out and fed back through RestoreState so a
// restarted process resumes with the same bars instead of a cold start.
type State struct {
	Mode         Mode      `yaml:"mode" json:"mode"`
	MaxAmplitude float32   `yaml:"max_amplitude" json:"max_amplitude"`
	Smoothed     []float32 `yaml:"smoothed,omitempty" json:"smoothed,omitempty"`
	Shadow       []float32 `yaml:"shadow,omitempty" json:"shadow,omitempty"`
	Wave         []float32 `yaml:"wave,omitempty" json:"wave,omitempty"`
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

// step is the fraction of the distance to the target covered in one tick
// of dt seconds. It is capped at 1 so a slow tick lands on the target
// instead of overshooting it.
func step(factor, dt float32) float32 {
	return min(factor*dt, 1)
}
