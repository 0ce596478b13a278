// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"

	"musicviz/internal/config"
	"musicviz/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errAlreadyRecording = errors.New("already recording")

func (e *Engine) StartRecording(filename string) error {
	if e.isRecording.Load() {
		return errAlreadyRecording
	}

	bitDepth := e.bitDepth
	if bitDepth == 0 {
		bitDepth = config.DefaultBitDepth
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}

	e.recMu.Lock()
	e.outputFile = file
	e.bitDepth = bitDepth
	e.wavEncoder = wav.NewEncoder(file, int(e.sampleRate), bitDepth, Channels, 1)
	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: Channels,
			SampleRate:  int(e.sampleRate),
		},
		Data:           make([]int, e.framesPerBuffer*Channels),
		SourceBitDepth: bitDepth,
	}
	e.writeFailures = 0
	e.recMu.Unlock()

	e.isRecording.Store(true)
	log.Infof("AudioEngine: Recording %d-bit WAV to %s", bitDepth, filename)

	return nil
}

// writeRecording converts float samples to integers at the recording bit
// depth and appends them to the file.
func (e *Engine) writeRecording(buffer []float32) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.wavEncoder == nil {
		return
	}

	if cap(e.sampleBuf.Data) < len(buffer) {
		e.sampleBuf.Data = make([]int, len(buffer))
	}
	e.sampleBuf.Data = e.sampleBuf.Data[:len(buffer)]
	scale := float32(int(1)<<(e.bitDepth-1) - 1)
	for i, s := range buffer {
		e.sampleBuf.Data[i] = int(max(-1, min(1, s)) * scale)
	}

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		e.writeFailures++
		log.Errorf("AudioEngine: Error writing to WAV file: %v", err)
		if e.writeFailures >= config.DefaultMaxConsecutiveWriteFailures {
			log.Errorf("AudioEngine: Disabling recording after %d consecutive write failures", e.writeFailures)
			e.isRecording.Store(false)
		}
		return
	}
	e.writeFailures = 0
}

func (e *Engine) StopRecording() error {
	// The flag may already be off after repeated write failures; the file
	// still needs finalizing.
	e.isRecording.Store(false)

	e.recMu.Lock()
	defer e.recMu.Unlock()

	var errs []error
	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to finalize WAV: %w", err))
		}
		e.wavEncoder = nil
	}

	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			errs = append(errs, err)
		}
		e.outputFile = nil
	}

	return errors.Join(errs...)
}

// Close finalizes any recording and stops the input stream. The stream is
// stopped even when the recording could not be finalized.
func (e *Engine) Close() error {
	return errors.Join(e.StopRecording(), e.StopInputStream())
}
