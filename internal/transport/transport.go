// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"slices"
	"time"

	"musicviz/internal/analysis"
)

// Transport defines a generic interface for sending rendered frames or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is one render tick as seen by an external renderer. Exactly one of
// Bars and Points is populated, matching Mode.
type Frame struct {
	Seq       uint32           `json:"seq"`
	Timestamp int64            `json:"ts"` // Unix nanoseconds
	Mode      analysis.Mode    `json:"mode"`
	Bars      []analysis.Bar   `json:"bars,omitempty"`
	Points    []analysis.Point `json:"points,omitempty"`
}

// NewFrame copies bars and points so the frame stays valid after the
// analyzers reuse their output slices.
func NewFrame(seq uint32, at time.Time, mode analysis.Mode, bars []analysis.Bar, points []analysis.Point) Frame {
	return Frame{
		Seq:       seq,
		Timestamp: at.UnixNano(),
		Mode:      mode,
		Bars:      slices.Clone(bars),
		Points:    slices.Clone(points),
	}
}

// Command operations accepted from renderers.
const (
	OpReset  = "reset"  // reset smoothing and peak
	OpMode   = "mode"   // switch to Command.Mode
	OpToggle = "toggle" // flip between frequency and wave
	OpClear  = "clear"  // drop buffered frames and reset (track change)
)

// Command is a control request sent back by a renderer.
type Command struct {
	Op   string `json:"op"`
	Mode string `json:"mode,omitempty"`
}

// Validate rejects unknown operations and bad mode names.
func (c Command) Validate() error {
	switch c.Op {
	case OpReset, OpToggle, OpClear:
		return nil
	case OpMode:
		_, err := analysis.ParseMode(c.Mode)
		return err
	default:
		return fmt.Errorf("unknown command op %q", c.Op)
	}
}

// CommandHandler receives validated commands. It must not block.
type CommandHandler func(Command)
