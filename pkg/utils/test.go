// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the Transport interface for testing. It records
// every payload and is safe for concurrent use.
type MockTransport struct {
	SendErr  error // returned by every Send when set
	CloseErr error // returned by Close when set

	mu     sync.Mutex
	sent   []any
	closed bool
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return m.SendErr
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseErr
}

// Sent returns a copy of everything passed to Send.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.sent...)
}

// Last returns the most recent payload, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateComplexWave returns frames interleaved stereo samples of a 440Hz
// fundamental plus two harmonics, identical on both channels.
func GenerateComplexWave(frames int, sampleRate float64) []float32 {
	buffer := make([]float32, 2*frames)
	for i := range frames {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2 // 440Hz fundamental + harmonics
		v := float32(signal * 0.9)
		buffer[2*i] = v
		buffer[2*i+1] = v
	}
	return buffer
}

// GenerateSineWave returns frames interleaved stereo samples of a sine at
// frequency Hz with the given amplitude.
func GenerateSineWave(frames int, sampleRate, frequency float64, amplitude float32) []float32 {
	buffer := make([]float32, 2*frames)
	for i := range frames {
		t := float64(i) / sampleRate
		v := amplitude * float32(math.Sin(2*math.Pi*frequency*t))
		buffer[2*i] = v
		buffer[2*i+1] = v
	}
	return buffer
}

// BinForFrequency returns the transform bin closest to frequency.
func BinForFrequency(frequency, sampleRate float64, fftSize int) int {
	return int(math.Round(frequency * float64(fftSize) / sampleRate))
}

// FindPeakBin returns the index of the largest value in
// magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float32, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
