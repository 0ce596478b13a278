// SPDX-License-Identifier: MIT
package audio

import "math"

const signMask = 1 << 31

func (e *Engine) EnableGate() {
	e.gateEnabled = true
}

func (e *Engine) DisableGate() {
	e.gateEnabled = false
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	e.gateThreshold = float32(threshold)
}

// GetGateThreshold returns the current noise gate threshold.
func (e *Engine) GetGateThreshold() float64 {
	return float64(e.gateThreshold)
}

// gateOpen reports whether the chunk peak exceeds the threshold.
func (e *Engine) gateOpen(buffer []float32) bool {
	return peakAmplitude(buffer) > e.gateThreshold
}

// peakAmplitude returns max |sample|. Clearing the sign bit gives the
// absolute value, and non-negative IEEE floats order like their bit patterns.
func peakAmplitude(buffer []float32) float32 {
	var peak uint32
	for _, s := range buffer {
		peak = max(peak, math.Float32bits(s)&^signMask)
	}
	return math.Float32frombits(peak)
}
