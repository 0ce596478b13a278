// SPDX-License-Identifier: MIT

// Package source plays decoded audio files into the pipeline at real-time
// cadence, standing in for the capture engine.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrTooManyChannels   = errors.New("more than two channels")
)

// Track is a fully decoded file as interleaved stereo float32 in [-1, 1].
type Track struct {
	Path       string
	SampleRate int
	Samples    []float32
}

// Frames returns the number of stereo frames.
func (t *Track) Frames() int { return len(t.Samples) / 2 }

func (t *Track) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(t.Frames()) * time.Second / time.Duration(t.SampleRate)
}

type decodeFunc func(io.ReadSeeker) (samples []float32, channels, sampleRate int, err error)

var decoders = map[string]decodeFunc{
	".wav": decodeWAV,
	".mp3": decodeMP3,
	".ogg": decodeOgg,
}

// Load detects the format by file extension and decodes the whole file.
func Load(path string) (*Track, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w %q", path, ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	samples, channels, rate, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	stereo, err := toStereo(samples, channels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(stereo) == 0 {
		return nil, fmt.Errorf("%s: no audio frames", path)
	}
	return &Track{Path: path, SampleRate: rate, Samples: stereo}, nil
}

// toStereo duplicates mono into both channels and passes stereo through.
func toStereo(samples []float32, channels int) ([]float32, error) {
	switch channels {
	case 1:
		out := make([]float32, 2*len(samples))
		for i, s := range samples {
			out[2*i] = s
			out[2*i+1] = s
		}
		return out, nil
	case 2:
		return samples[:len(samples)&^1], nil
	case 0:
		return nil, fmt.Errorf("%w: no channels", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %d", ErrTooManyChannels, channels)
	}
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: invalid WAV file", ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading WAV PCM data: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	samples := make([]float32, len(buf.Data))
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	case 16, 24, 32:
		scale := float32(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			samples[i] = float32(v) / scale
		}
	default:
		return nil, 0, 0, fmt.Errorf("%w: %d-bit WAV", ErrUnsupportedFormat, bitDepth)
	}
	return samples, int(dec.NumChans), int(dec.SampleRate), nil
}

// decodeMP3 reads go-mp3's output, which is always 16-bit little-endian stereo.
func decodeMP3(r io.ReadSeeker) ([]float32, int, int, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, err
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		low := uint16(pcm[2*i])
		high := uint16(pcm[2*i+1])
		samples[i] = float32(int16(low|high<<8)) / 32768
	}
	return samples, 2, dec.SampleRate(), nil
}

func decodeOgg(r io.ReadSeeker) ([]float32, int, int, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, 0, err
	}
	return samples, format.Channels, format.SampleRate, nil
}
