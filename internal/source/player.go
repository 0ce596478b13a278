// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"musicviz/internal/log"
)

// Sink receives interleaved stereo chunks. Pipeline.PushFrames satisfies it.
type Sink interface {
	PushFrames(interleaved []float32, frameCount int)
}

// Player pushes a Track into a Sink one chunk per period, the way the
// capture callback would deliver it.
type Player struct {
	track       *Track
	sink        Sink
	chunkFrames int
	period      time.Duration
	loop        bool

	// OnTrackStart runs on the playback goroutine before the first chunk
	// of every pass through the track, including loop restarts. No chunk of
	// the new pass is pushed until it returns. ctx is cancelled by Stop.
	// Set it before Start.
	OnTrackStart func(ctx context.Context)

	pos int // next frame, owned by the run goroutine

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPlayer validates its inputs; chunkFrames sets both the push size and
// the cadence (chunkFrames / sample rate).
func NewPlayer(track *Track, sink Sink, chunkFrames int, loop bool) (*Player, error) {
	switch {
	case track == nil || track.Frames() == 0:
		return nil, errors.New("player needs a non-empty track")
	case track.SampleRate <= 0:
		return nil, errors.New("track has no sample rate")
	case sink == nil:
		return nil, errors.New("player needs a sink")
	case chunkFrames <= 0:
		return nil, errors.New("chunk frames must be positive")
	}

	return &Player{
		track:       track,
		sink:        sink,
		chunkFrames: chunkFrames,
		period:      time.Duration(chunkFrames) * time.Second / time.Duration(track.SampleRate),
		loop:        loop,
	}, nil
}

// Start begins playback on its own goroutine. Later calls are no-ops.
func (p *Player) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		log.Warnf("FilePlayer: Start called but already running.")
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	done := p.done

	log.Infof("FilePlayer: Playing %s (%s, %d Hz, chunk %d frames every %s)",
		p.track.Path, p.track.Duration().Round(time.Millisecond), p.track.SampleRate, p.chunkFrames, p.period)

	go func() {
		defer close(done)
		p.run(ctx)
	}()
}

func (p *Player) run(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.startPass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.step(ctx) {
				log.Infof("FilePlayer: Reached end of %s", p.track.Path)
				return
			}
		}
	}
}

func (p *Player) startPass(ctx context.Context) {
	p.pos = 0
	if p.OnTrackStart != nil {
		p.OnTrackStart(ctx)
	}
}

// step pushes one chunk and reports whether playback continues.
func (p *Player) step(ctx context.Context) bool {
	if p.pos >= p.track.Frames() {
		if !p.loop {
			return false
		}
		log.Debugf("FilePlayer: Looping %s", p.track.Path)
		p.startPass(ctx)
		if ctx.Err() != nil {
			return true
		}
	}

	end := min(p.pos+p.chunkFrames, p.track.Frames())
	p.sink.PushFrames(p.track.Samples[2*p.pos:2*end], end-p.pos)
	p.pos = end
	return true
}

// Stop ends playback and waits for the goroutine. Safe to call repeatedly
// or before Start.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if done == nil {
		return
	}
	p.stopOnce.Do(cancel)
	<-done
}

// Done is closed when playback ends, either at the end of a non-looping
// track or after Stop. It is nil before Start.
func (p *Player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
