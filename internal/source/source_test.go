// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV encodes samples (already interleaved for channels) as PCM.
func writeWAV(t *testing.T, name string, rate, bitDepth, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWAV(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		samples  []int
		want     []float32
	}{
		{"Stereo", 2, []int{16384, -16384, 0, 32767}, []float32{0.5, -0.5, 0, 32767.0 / 32768}},
		{"Mono duplicated", 1, []int{8192, -32768}, []float32{0.25, 0.25, -1, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeWAV(t, "in.wav", 22050, 16, tt.channels, tt.samples)
			track, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if track.SampleRate != 22050 {
				t.Errorf("SampleRate = %d", track.SampleRate)
			}
			if len(track.Samples) != len(tt.want) {
				t.Fatalf("samples = %v, want %v", track.Samples, tt.want)
			}
			for i := range tt.want {
				if math.Abs(float64(track.Samples[i]-tt.want[i])) > 1e-6 {
					t.Errorf("sample %d = %f, want %f", i, track.Samples[i], tt.want[i])
				}
			}
			if track.Frames() != len(tt.want)/2 {
				t.Errorf("Frames() = %d", track.Frames())
			}
		})
	}
}

func TestLoad24Bit(t *testing.T) {
	path := writeWAV(t, "deep.wav", 48000, 24, 2, []int{1 << 22, -(1 << 22)})
	track, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if track.Samples[0] != 0.5 || track.Samples[1] != -0.5 {
		t.Errorf("samples = %v", track.Samples)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "noise.wav")
	if err := os.WriteFile(garbage, []byte("definitely not RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	badMP3 := filepath.Join(dir, "noise.mp3")
	if err := os.WriteFile(badMP3, []byte{0, 1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	surround := writeWAV(t, "surround.wav", 44100, 16, 3, []int{1, 2, 3, 4, 5, 6})

	tests := []struct {
		name string
		path string
		is   error
	}{
		{"Unknown extension", filepath.Join(dir, "song.flac"), ErrUnsupportedFormat},
		{"Missing file", filepath.Join(dir, "missing.wav"), os.ErrNotExist},
		{"Invalid WAV", garbage, ErrUnsupportedFormat},
		{"Three channels", surround, ErrTooManyChannels},
		{"Invalid MP3", badMP3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestToStereo(t *testing.T) {
	out, err := toStereo([]float32{1, 2, 3}, 2)
	if err != nil || len(out) != 2 {
		t.Errorf("odd stereo tail not trimmed: %v, %v", out, err)
	}
	if _, err := toStereo(nil, 0); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("zero channels: %v", err)
	}
}

func TestTrackDuration(t *testing.T) {
	track := &Track{SampleRate: 1000, Samples: make([]float32, 2*1500)}
	if got := track.Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration = %s", got)
	}
	if (&Track{}).Duration() != 0 {
		t.Error("zero track should have zero duration")
	}
}

type collectSink struct {
	mu     sync.Mutex
	frames []float32
	pushes int
}

func (s *collectSink) PushFrames(interleaved []float32, frameCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, interleaved[:2*frameCount]...)
	s.pushes++
}

func (s *collectSink) snapshot() ([]float32, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.frames...), s.pushes
}

func rampTrack(frames int) *Track {
	samples := make([]float32, 2*frames)
	for i := range frames {
		samples[2*i] = float32(i)
		samples[2*i+1] = -float32(i)
	}
	return &Track{Path: "ramp", SampleRate: 100000, Samples: samples}
}

func TestNewPlayerValidation(t *testing.T) {
	sink := &collectSink{}
	tests := []struct {
		name  string
		track *Track
		sink  Sink
		chunk int
	}{
		{"Nil track", nil, sink, 10},
		{"Empty track", &Track{SampleRate: 44100}, sink, 10},
		{"No rate", &Track{Samples: make([]float32, 4)}, sink, 10},
		{"Nil sink", rampTrack(10), nil, 10},
		{"Zero chunk", rampTrack(10), sink, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPlayer(tt.track, tt.sink, tt.chunk, false); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPlayerPlaysToEnd(t *testing.T) {
	sink := &collectSink{}
	track := rampTrack(250)
	p, err := NewPlayer(track, sink, 100, false) // 1ms per chunk
	if err != nil {
		t.Fatal(err)
	}
	starts := 0
	p.OnTrackStart = func(context.Context) { starts++ }

	if p.Done() != nil {
		t.Error("Done before Start should be nil")
	}
	p.Start(context.Background())
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish")
	}

	frames, pushes := sink.snapshot()
	if pushes != 3 {
		t.Errorf("pushes = %d, want 3 (100+100+50)", pushes)
	}
	if len(frames) != len(track.Samples) {
		t.Fatalf("received %d samples, want %d", len(frames), len(track.Samples))
	}
	for i := range frames {
		if frames[i] != track.Samples[i] {
			t.Fatalf("sample %d = %f, want %f", i, frames[i], track.Samples[i])
		}
	}
	if starts != 1 {
		t.Errorf("OnTrackStart ran %d times", starts)
	}
	p.Stop() // after natural end
}

func TestPlayerLoopsAndStops(t *testing.T) {
	sink := &collectSink{}
	p, err := NewPlayer(rampTrack(100), sink, 50, true)
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	starts := 0
	p.OnTrackStart = func(context.Context) {
		mu.Lock()
		starts++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Start(ctx) // no-op

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := starts
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d passes", n)
		}
		time.Sleep(time.Millisecond)
	}

	p.Stop()
	p.Stop()
	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	frames, _ := sink.snapshot()
	// Every pass restarts at frame 0.
	for i := 0; i+1 < len(frames)/2; i++ {
		cur, next := frames[2*i], frames[2*(i+1)]
		if next != cur+1 && next != 0 {
			t.Fatalf("discontinuity at frame %d: %f -> %f", i, cur, next)
		}
	}
}

func TestPlayerWaitsForTrackStart(t *testing.T) {
	sink := &collectSink{}
	p, err := NewPlayer(rampTrack(100), sink, 50, true)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var passStarts []int
	p.OnTrackStart = func(context.Context) {
		before, _ := sink.snapshot()
		time.Sleep(5 * time.Millisecond) // slow acknowledgement
		after, _ := sink.snapshot()
		if len(after) != len(before) {
			t.Errorf("%d samples pushed while the track start hook ran", len(after)-len(before))
		}
		mu.Lock()
		passStarts = append(passStarts, len(before)/2)
		mu.Unlock()
	}

	p.Start(context.Background())
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(passStarts)
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d passes", n)
		}
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	for i, frames := range passStarts {
		if frames != i*100 {
			t.Errorf("pass %d started after %d frames, want %d", i, frames, i*100)
		}
	}
}

func TestPlayerStopBeforeStart(t *testing.T) {
	p, err := NewPlayer(rampTrack(10), &collectSink{}, 5, false)
	if err != nil {
		t.Fatal(err)
	}
	p.Stop()
}

func TestPlayerContextCancel(t *testing.T) {
	p, err := NewPlayer(rampTrack(1000), &collectSink{}, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("player ignored context cancellation")
	}
}
