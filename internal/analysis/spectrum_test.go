// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"slices"
	"testing"

	"musicviz/internal/framebuf"
)

const testDT = float32(1.0 / 60)

func testSpectrumConfig() SpectrumConfig {
	cfg := DefaultSpectrumConfig()
	cfg.FFTSize = 2048
	return cfg
}

// tone returns n frames of a sine completing cycles periods over n frames.
func tone(n int, cycles float64, amp float32) []framebuf.Frame {
	frames := make([]framebuf.Frame, n)
	for i := range frames {
		v := amp * float32(math.Sin(2*math.Pi*cycles*float64(i)/float64(n)))
		frames[i] = framebuf.Frame{Left: v, Right: v}
	}
	return frames
}

func TestBuckets(t *testing.T) {
	tests := []struct {
		name      string
		startBin  int
		fftSize   int
		wantCount int
		wantHead  []int
		wantLast  int
	}{
		{"default layout", 20, 32768, 110, []int{20, 22, 24, 26}, 16384},
		{"2048", 20, 2048, 63, []int{20, 22, 24, 26}, 1024},
		{"256", 20, 256, 27, []int{20, 22, 24}, 128},
		{"low start", 4, 64, 21, []int{4, 5, 6, 7}, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bounds, err := Buckets(tt.startBin, tt.fftSize, 800)
			if err != nil {
				t.Fatalf("Buckets: %v", err)
			}
			if got := len(bounds) - 1; got != tt.wantCount {
				t.Errorf("count = %d, want %d", got, tt.wantCount)
			}
			if !slices.Equal(bounds[:len(tt.wantHead)], tt.wantHead) {
				t.Errorf("head = %v, want %v", bounds[:len(tt.wantHead)], tt.wantHead)
			}
			if got := bounds[len(bounds)-1]; got != tt.wantLast {
				t.Errorf("last boundary = %d, want %d", got, tt.wantLast)
			}
			for i := 1; i < len(bounds); i++ {
				if bounds[i] <= bounds[i-1] {
					t.Fatalf("boundaries not strictly increasing at %d: %v", i, bounds[i-1:i+1])
				}
			}

			again, _ := Buckets(tt.startBin, tt.fftSize, 800)
			if !slices.Equal(bounds, again) {
				t.Error("repeated call produced different boundaries")
			}
		})
	}
}

func TestBucketsErrors(t *testing.T) {
	tests := []struct {
		name                        string
		startBin, fftSize, capacity int
		overflow                    bool
	}{
		{"overflow", 20, 2048, 10, true},
		{"zero start", 0, 2048, 800, false},
		{"start at nyquist", 1024, 2048, 800, false},
		{"not power of two", 20, 3000, 800, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Buckets(tt.startBin, tt.fftSize, tt.capacity)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrBucketOverflow); got != tt.overflow {
				t.Errorf("errors.Is(ErrBucketOverflow) = %v, want %v (%v)", got, tt.overflow, err)
			}
		})
	}
}

func TestNewSpectrumAnalyzerOverflow(t *testing.T) {
	cfg := testSpectrumConfig()
	cfg.Capacity = 5
	if _, err := NewSpectrumAnalyzer(cfg, nil); !errors.Is(err, ErrBucketOverflow) {
		t.Fatalf("err = %v, want ErrBucketOverflow", err)
	}
}

func TestSpectrumEmptyInput(t *testing.T) {
	a, err := NewSpectrumAnalyzer(testSpectrumConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if bars := a.Process(nil, testDT); bars != nil {
		t.Errorf("Process(nil) = %v, want nil", bars)
	}
	smoothed, _ := a.Series()
	for i, v := range smoothed {
		if v != 0 {
			t.Fatalf("bucket %d changed on empty input: %f", i, v)
		}
	}
}

func TestSmoothingConverges(t *testing.T) {
	a, err := NewSpectrumAnalyzer(testSpectrumConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	const raw = float32(2.5)
	for step := range 2000 {
		a.update(0, raw, testDT)
		if a.smoothed[0] < 0 {
			t.Fatalf("step %d: smoothed %f < 0", step, a.smoothed[0])
		}
		if a.shadow[0] < a.smoothed[0] {
			t.Fatalf("step %d: shadow %f < smoothed %f", step, a.shadow[0], a.smoothed[0])
		}
	}
	if d := math.Abs(float64(a.smoothed[0] - raw)); d > 1e-3 {
		t.Errorf("smoothed = %f, want %f", a.smoothed[0], raw)
	}
	if d := math.Abs(float64(a.shadow[0] - raw)); d > 1e-3 {
		t.Errorf("shadow = %f, want %f", a.shadow[0], raw)
	}

	// A negative target pins the primary at zero.
	for range 2000 {
		a.update(0, -3, testDT)
	}
	if a.smoothed[0] != 0 {
		t.Errorf("smoothed = %f, want 0", a.smoothed[0])
	}
	if a.shadow[0] < 0 {
		t.Errorf("shadow = %f, want >= 0", a.shadow[0])
	}
}

func TestSpectrumTracksTone(t *testing.T) {
	cfg := testSpectrumConfig()
	peak := NewPeak()
	a, err := NewSpectrumAnalyzer(cfg, peak)
	if err != nil {
		t.Fatal(err)
	}

	// 200 cycles over 2048 frames lands on bin 200.
	const toneBin = 200
	frames := tone(cfg.FFTSize, toneBin, 0.8)
	bounds := a.Bounds()
	toneBucket := -1
	for i := 0; i+1 < len(bounds); i++ {
		if bounds[i] <= toneBin && toneBin < bounds[i+1] {
			toneBucket = i
		}
	}
	if toneBucket < 0 {
		t.Fatalf("bin %d not covered by %v", toneBin, bounds)
	}

	var bars []Bar
	for step := range 600 {
		bars = a.Process(frames, testDT)
		if len(bars) != a.Buckets() {
			t.Fatalf("got %d bars, want %d", len(bars), a.Buckets())
		}
		for _, b := range bars {
			if b.Value < 0 || b.Value > 1 || b.Shadow < 0 || b.Shadow > 1 {
				t.Fatalf("step %d: bar %d out of range: %+v", step, b.Index, b)
			}
			if b.Shadow < b.Value {
				t.Fatalf("step %d: bar %d shadow below value: %+v", step, b.Index, b)
			}
		}
	}

	best := 0
	for i, b := range bars {
		if b.Value > bars[best].Value {
			best = i
		}
	}
	if best != toneBucket {
		t.Errorf("loudest bucket = %d, want %d", best, toneBucket)
	}
	if bars[best].Value < 0.99 {
		t.Errorf("loudest bar = %f, want ~1", bars[best].Value)
	}

	// With a constant input every measured bucket converges to its raw value.
	a.measure(frames)
	for i := range a.raw {
		if !a.hasRaw[i] || a.raw[i] <= 0 {
			continue
		}
		if d := math.Abs(float64(a.smoothed[i] - a.raw[i])); d > 1e-3 {
			t.Errorf("bucket %d: smoothed %f, raw %f", i, a.smoothed[i], a.raw[i])
		}
	}

	if got, want := peak.Value(), a.smoothed[toneBucket]; got < want {
		t.Errorf("peak %f below loudest bucket %f", got, want)
	}
}

func TestSpectrumSilenceSkipsUpdate(t *testing.T) {
	a, err := NewSpectrumAnalyzer(testSpectrumConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Restore(filled(a.Buckets(), 1), filled(a.Buckets(), 2)); err != nil {
		t.Fatal(err)
	}

	silence := make([]framebuf.Frame, 512)
	bars := a.Process(silence, testDT)
	if bars == nil {
		t.Fatal("expected bars for non-empty input")
	}
	smoothed, shadow := a.Series()
	for i := range smoothed {
		if smoothed[i] != 1 || shadow[i] != 2 {
			t.Fatalf("bucket %d updated on zero magnitude: %f/%f", i, smoothed[i], shadow[i])
		}
	}
}

func TestSpectrumUsesNewestFrames(t *testing.T) {
	cfg := testSpectrumConfig()
	a, _ := NewSpectrumAnalyzer(cfg, nil)
	b, _ := NewSpectrumAnalyzer(cfg, nil)

	newest := tone(cfg.FFTSize, 300, 0.5)
	long := append(make([]framebuf.Frame, 1000), newest...)

	got := a.Process(long, testDT)
	want := b.Process(newest, testDT)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bar %d: %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSpectrumRestore(t *testing.T) {
	a, _ := NewSpectrumAnalyzer(testSpectrumConfig(), nil)

	if err := a.Restore(filled(3, 1), filled(3, 1)); err == nil {
		t.Error("expected length mismatch error")
	}

	n := a.Buckets()
	if err := a.Restore(filled(n, 0.5), filled(n, 0.1)); err != nil {
		t.Fatal(err)
	}
	smoothed, shadow := a.Series()
	if smoothed[0] != 0.5 || shadow[0] != 0.5 {
		t.Errorf("restored %f/%f, want shadow raised to 0.5", smoothed[0], shadow[0])
	}

	a.Reset()
	smoothed, shadow = a.Series()
	if slices.Max(smoothed) != 0 || slices.Max(shadow) != 0 {
		t.Error("Reset left non-zero traces")
	}
}

func TestBucketFrequencies(t *testing.T) {
	a, _ := NewSpectrumAnalyzer(testSpectrumConfig(), nil)
	freqs := a.BucketFrequencies(48000)
	if len(freqs) != a.Buckets() {
		t.Fatalf("got %d frequencies", len(freqs))
	}
	// Bin 20 of a 2048 point transform at 48 kHz.
	if want := 20 * 48000.0 / 2048; math.Abs(freqs[0]-want) > 1e-9 {
		t.Errorf("first bucket = %f Hz, want %f", freqs[0], want)
	}
}

func TestSpectrumProcessHotPath(t *testing.T) {
	cfg := testSpectrumConfig()
	a, err := NewSpectrumAnalyzer(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	frames := tone(cfg.FFTSize, 100, 0.5)
	a.Process(frames, testDT)

	allocs := testing.AllocsPerRun(100, func() {
		a.Process(frames, testDT)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in SpectrumAnalyzer.Process hot path, got %.1f", allocs)
	}
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func BenchmarkSpectrumProcess(b *testing.B) {
	a, err := NewSpectrumAnalyzer(DefaultSpectrumConfig(), nil)
	if err != nil {
		b.Fatal(err)
	}
	frames := tone(16384, 440, 0.5)
	b.ReportAllocs()
	for b.Loop() {
		a.Process(frames, testDT)
	}
}

func TestStepIsCapped(t *testing.T) {
	tests := []struct {
		factor, dt, want float32
	}{
		{10, 1.0 / 60, 10.0 / 60},
		{10, 0.1, 1},
		{10, 0.25, 1},
		{0.7, 0.25, 0.175},
	}
	for _, tt := range tests {
		if got := step(tt.factor, tt.dt); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("step(%g, %g) = %g, want %g", tt.factor, tt.dt, got, tt.want)
		}
	}
}

// At a low frame rate every tick hits the dt cap. The traces must settle
// instead of swinging around the target.
func TestSpectrumSlowTicksSettle(t *testing.T) {
	cfg := testSpectrumConfig()
	a, err := NewSpectrumAnalyzer(cfg, NewPeak())
	if err != nil {
		t.Fatal(err)
	}
	frames := tone(cfg.FFTSize, 40, 0.8)

	a.Process(frames, 0.25)
	first, _ := a.Series()
	if slices.Max(first) <= 0 {
		t.Fatal("tone produced no energy")
	}
	for tick := range 8 {
		a.Process(frames, 0.25)
		smoothed, shadow := a.Series()
		if !slices.Equal(smoothed, first) {
			t.Fatalf("tick %d: smoothed trace moved under steady input", tick)
		}
		for i := range shadow {
			if shadow[i] < smoothed[i] {
				t.Fatalf("tick %d: shadow %d below primary", tick, i)
			}
		}
	}
}
