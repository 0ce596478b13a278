// SPDX-License-Identifier: MIT
/*
Package audio captures stereo input with PortAudio and feeds it to the
analysis pipeline:
- Interleaved float32 capture on the PortAudio callback thread
- Optional noise gate that silences quiet callbacks
- WAV recording with atomic state management

Thread Safety:
- The callback only touches pre-allocated buffers
- Recording state is an atomic flag checked on every callback
- Locks OS thread during audio processing
*/
package audio

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"musicviz/internal/config"
	"musicviz/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

// Sink receives interleaved stereo chunks from the audio thread.
// Pipeline.PushFrames satisfies it.
type Sink interface {
	PushFrames(interleaved []float32, frameCount int)
}

// audioStream is the part of *portaudio.Stream the engine drives.
type audioStream interface {
	Start() error
	Stop() error
	Close() error
}

type Engine struct {
	sampleRate      float64
	framesPerBuffer int
	sink            Sink

	// Audio input handling.
	inputBuffer  []float32
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  audioStream

	// Noise gate for signal conditioning.
	gateEnabled   bool
	gateThreshold float32 // Peak amplitude below which a callback is silenced (0-1)
	gatedChunks   atomic.Uint64

	// Recording state and buffers.
	isRecording   atomic.Bool
	recMu         sync.Mutex // Serialises encoder writes against StopRecording
	bitDepth      int
	outputFile    *os.File
	wavEncoder    *wav.Encoder
	sampleBuf     *audio.IntBuffer // Reusable buffer for format conversion
	writeFailures int
}

// NewEngine resolves the configured input device and prepares buffers.
// The stream is not opened until StartInputStream.
func NewEngine(cfg *config.Config, sink Sink) (*Engine, error) {
	if sink == nil {
		return nil, errors.New("audio engine needs a sink")
	}
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		sampleRate:      cfg.Audio.SampleRate,
		framesPerBuffer: cfg.Audio.FramesPerBuffer,
		sink:            sink,
		inputBuffer:     make([]float32, cfg.Audio.FramesPerBuffer*Channels),
		inputDevice:     inputDevice,
		gateEnabled:     cfg.Audio.GateEnabled,
		bitDepth:        cfg.Recording.BitDepth,
	}
	engine.SetGateThreshold(cfg.Audio.GateThreshold)

	if cfg.Audio.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	log.Infof("AudioEngine: Using %q at %.0f Hz, %d frames per buffer, latency %s",
		inputDevice.Name, engine.sampleRate, engine.framesPerBuffer, engine.inputLatency)

	return engine, nil
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: Channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.framesPerBuffer,
		SampleRate:      e.sampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream == nil {
		return nil
	}
	if err := e.inputStream.Stop(); err != nil {
		return err
	}
	if err := e.inputStream.Close(); err != nil {
		return err
	}
	e.inputStream = nil

	if n := e.gatedChunks.Load(); n > 0 {
		log.Debugf("AudioEngine: Gate silenced %d callbacks", n)
	}
	return nil
}

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	n := copy(e.inputBuffer, in)
	e.processBuffer(e.inputBuffer[:n])
}

// processBuffer gates the chunk, hands it to the sink and records it.
func (e *Engine) processBuffer(buffer []float32) {
	if e.gateEnabled && !e.gateOpen(buffer) {
		clear(buffer)
		e.gatedChunks.Add(1)
	}

	e.sink.PushFrames(buffer, len(buffer)/Channels)

	if e.isRecording.Load() {
		e.writeRecording(buffer)
	}
}
