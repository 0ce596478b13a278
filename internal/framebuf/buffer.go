// SPDX-License-Identifier: MIT
/*
Package framebuf implements the bounded stereo frame buffer shared by the
audio producer and the render consumer.

Concurrency model:
  - The producer (audio callback) never blocks. Push acquires the lock with
    TryLock and drops the whole chunk when the consumer holds it.
  - The consumer (render tick) blocks on the lock and copies out.

The buffer always holds the most recent Cap() frames in arrival order.
*/
package framebuf

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrCapacity is returned by New for a capacity below one.
var ErrCapacity = errors.New("frame buffer capacity must be at least 1")

// Frame is one stereo sample pair.
type Frame struct {
	Left  float32
	Right float32
}

// ReadMode selects how the consumer takes frames out of the buffer.
type ReadMode int

const (
	// ReadCopy copies the contents and leaves them in place, so consecutive
	// ticks see overlapping windows.
	ReadCopy ReadMode = iota
	// ReadDrain copies the contents and empties the buffer.
	ReadDrain
)

func (m ReadMode) String() string {
	switch m {
	case ReadCopy:
		return "copy"
	case ReadDrain:
		return "drain"
	default:
		return fmt.Sprintf("ReadMode(%d)", int(m))
	}
}

// ParseReadMode converts "copy" or "drain" to a ReadMode.
func ParseReadMode(s string) (ReadMode, error) {
	switch s {
	case "copy", "":
		return ReadCopy, nil
	case "drain":
		return ReadDrain, nil
	default:
		return ReadCopy, fmt.Errorf("unknown read mode %q (want copy or drain)", s)
	}
}

type Buffer struct {
	mu     sync.Mutex
	frames []Frame // len == capacity
	size   int

	dropped atomic.Uint64
}

// New allocates a buffer holding at most capacity frames.
func New(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}
	return &Buffer{frames: make([]Frame, capacity)}, nil
}

// Push appends chunk, evicting the oldest frames when it does not fit.
// It returns false, leaving the buffer untouched, when the consumer holds
// the lock.
func (b *Buffer) Push(chunk []Frame) bool {
	if len(chunk) == 0 {
		return true
	}
	if !b.mu.TryLock() {
		b.dropped.Add(1)
		return false
	}
	defer b.mu.Unlock()

	dst := b.reserve(len(chunk))
	copy(dst, chunk[len(chunk)-len(dst):])
	return true
}

// PushInterleaved is Push for an interleaved L,R,L,R... sample slice as
// delivered by the audio callback. frameCount is clamped to len(samples)/2.
func (b *Buffer) PushInterleaved(samples []float32, frameCount int) bool {
	frameCount = min(frameCount, len(samples)/2)
	if frameCount <= 0 {
		return true
	}
	if !b.mu.TryLock() {
		b.dropped.Add(1)
		return false
	}
	defer b.mu.Unlock()

	dst := b.reserve(frameCount)
	skip := frameCount - len(dst)
	for i := range dst {
		j := 2 * (skip + i)
		dst[i] = Frame{Left: samples[j], Right: samples[j+1]}
	}
	return true
}

// reserve makes room for count incoming frames and returns the slot they
// should be written to. When count exceeds the capacity only the last
// Cap() frames survive, so the returned slot is shorter than count.
// Must be called with mu held.
func (b *Buffer) reserve(count int) []Frame {
	capacity := len(b.frames)
	switch {
	case count >= capacity:
		b.size = capacity
		return b.frames
	case count <= capacity-b.size:
		start := b.size
		b.size += count
		return b.frames[start:b.size]
	default:
		evict := count + b.size - capacity
		copy(b.frames, b.frames[evict:b.size])
		start := b.size - evict
		b.size = capacity
		return b.frames[start:]
	}
}

// Snapshot copies the buffered frames into dst, oldest first, without
// consuming them. dst is reused when it has enough capacity.
func (b *Buffer) Snapshot(dst []Frame) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyOut(dst)
}

// Drain is Snapshot followed by emptying the buffer.
func (b *Buffer) Drain(dst []Frame) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	dst = b.copyOut(dst)
	b.size = 0
	return dst
}

// Read dispatches to Snapshot or Drain.
func (b *Buffer) Read(mode ReadMode, dst []Frame) []Frame {
	if mode == ReadDrain {
		return b.Drain(dst)
	}
	return b.Snapshot(dst)
}

func (b *Buffer) copyOut(dst []Frame) []Frame {
	if cap(dst) < b.size {
		dst = make([]Frame, b.size, len(b.frames))
	}
	dst = dst[:b.size]
	copy(dst, b.frames[:b.size])
	return dst
}

// Reset discards every buffered frame.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.size = 0
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.frames)
}

// Dropped returns the number of producer chunks lost to lock contention.
func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}
