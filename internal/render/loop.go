// SPDX-License-Identifier: MIT

// Package render drives the consumer side of the pipeline: one goroutine
// ticks at the frame rate, analyzes the buffered audio and hands every
// frame to a transport. Control commands are applied on the same
// goroutine, so analyzer state is never touched concurrently.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"musicviz/internal/analysis"
	"musicviz/internal/log"
	"musicviz/internal/pipeline"
	"musicviz/internal/transport"
)

// MaxDT caps the time step after a stall so smoothing does not jump
// straight to the target.
const MaxDT = 0.25

const commandQueue = 16

var (
	ErrQueueFull  = errors.New("render command queue full")
	ErrNotRunning = errors.New("render loop is not running")
)

// Analyzer is the consumer surface of the pipeline.
type Analyzer interface {
	Consume(dt float32) pipeline.Output
	ResetFilter()
	SetMode(analysis.Mode)
	ToggleMode() analysis.Mode
	Clear()
	Dropped() uint64
}

type Loop struct {
	analyzer Analyzer
	out      transport.Transport
	interval time.Duration
	commands chan request

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	// Owned by the loop goroutine.
	seq         uint32
	last        time.Time
	lastDropped uint64

	frames   atomic.Uint64
	sendErrs atomic.Uint64
}

// NewLoop builds a loop ticking fps times per second.
func NewLoop(a Analyzer, out transport.Transport, fps int) (*Loop, error) {
	if a == nil || out == nil {
		return nil, errors.New("render loop needs an analyzer and a transport")
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid fps %d", fps)
	}
	return &Loop{
		analyzer: a,
		out:      out,
		interval: time.Second / time.Duration(fps),
		commands: make(chan request, commandQueue),
	}, nil
}

// Submit queues a command for the loop goroutine. It never blocks.
func (l *Loop) Submit(cmd transport.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	select {
	case l.commands <- request{cmd: cmd}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Apply queues cmd and waits until the loop goroutine has applied it, so
// the caller can order its own work after the command.
func (l *Loop) Apply(ctx context.Context, cmd transport.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	running, done := l.ticker != nil, l.doneChan
	l.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	req := request{cmd: cmd, applied: make(chan struct{})}
	select {
	case l.commands <- req:
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.applied:
		return nil
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleCommand adapts Submit to transport.CommandHandler.
func (l *Loop) HandleCommand(cmd transport.Command) {
	if err := l.Submit(cmd); err != nil {
		log.Warnf("RenderLoop: Dropping command %q: %v", cmd.Op, err)
	}
}

// Start launches the loop goroutine. Calling it while running is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.ticker != nil {
		l.mu.Unlock()
		log.Warnf("RenderLoop: Start called but already running.")
		return
	}
	l.ticker = time.NewTicker(l.interval)
	l.doneChan = make(chan struct{})
	l.stopOnce = sync.Once{}
	ticker, done := l.ticker, l.doneChan
	l.mu.Unlock()

	l.last = time.Now()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		log.Debugf("RenderLoop: Started (Interval: %s)", l.interval)
		for {
			select {
			case now := <-ticker.C:
				l.drainCommands()
				l.tick(now)
			case req := <-l.commands:
				l.handle(req)
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for the goroutine.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.ticker == nil {
		l.mu.Unlock()
		return
	}
	l.stopOnce.Do(func() {
		close(l.doneChan)
		l.ticker.Stop()
		l.ticker = nil
	})
	l.mu.Unlock()

	l.wg.Wait()
	log.Debugf("RenderLoop: Stopped after %d frames (%d send errors)", l.frames.Load(), l.sendErrs.Load())
}

func (l *Loop) drainCommands() {
	for {
		select {
		case req := <-l.commands:
			l.handle(req)
		default:
			return
		}
	}
}

// request is a queued command. applied, when set, is closed once the
// command has run.
type request struct {
	cmd     transport.Command
	applied chan struct{}
}

func (l *Loop) handle(req request) {
	l.apply(req.cmd)
	if req.applied != nil {
		close(req.applied)
	}
}

func (l *Loop) apply(cmd transport.Command) {
	switch cmd.Op {
	case transport.OpReset:
		l.analyzer.ResetFilter()
	case transport.OpToggle:
		m := l.analyzer.ToggleMode()
		log.Infof("RenderLoop: Mode is now %s", m)
	case transport.OpMode:
		m, err := analysis.ParseMode(cmd.Mode)
		if err != nil {
			log.Warnf("RenderLoop: %v", err)
			return
		}
		l.analyzer.SetMode(m)
	case transport.OpClear:
		l.analyzer.Clear()
	}
	log.Debugf("RenderLoop: Applied %q", cmd.Op)
}

// tick analyzes and sends one frame. Ticks with nothing buffered send
// nothing.
func (l *Loop) tick(now time.Time) {
	dt := min(float32(now.Sub(l.last).Seconds()), MaxDT)
	l.last = now
	if dt <= 0 {
		return
	}

	if dropped := l.analyzer.Dropped(); dropped != l.lastDropped {
		log.Debugf("RenderLoop: %d producer chunks dropped so far", dropped)
		l.lastDropped = dropped
	}

	out := l.analyzer.Consume(dt)
	if out.Empty() {
		return
	}

	l.seq++
	frame := transport.NewFrame(l.seq, now, out.Mode, out.Bars, out.Points)
	if err := l.out.Send(frame); err != nil {
		l.sendErrs.Add(1)
		log.Debugf("RenderLoop: Send failed for frame %d: %v", l.seq, err)
		return
	}
	l.frames.Add(1)
}

// Frames returns the number of frames handed to the transport.
func (l *Loop) Frames() uint64 { return l.frames.Load() }
