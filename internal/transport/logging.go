// SPDX-License-Identifier: MIT
package transport

import (
	"musicviz/internal/log"
)

// LoggingTransport implements the Transport interface by logging a one
// line summary of every frame at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	switch v := data.(type) {
	case Frame:
		lt.logFrame(&v)
	case *Frame:
		lt.logFrame(v)
	default:
		log.Debugf("Transport: Received (%T): %+v", data, data)
	}
	return nil
}

func (lt *LoggingTransport) logFrame(f *Frame) {
	if len(f.Bars) > 0 {
		var peak float32
		loudest := 0
		for _, b := range f.Bars {
			if b.Value > peak {
				peak, loudest = b.Value, b.Index
			}
		}
		log.Debugf("Transport: Frame %d [%v] %d bars, loudest #%d at %.2f", f.Seq, f.Mode, len(f.Bars), loudest, peak)
		return
	}
	log.Debugf("Transport: Frame %d [%v] %d points", f.Seq, f.Mode, len(f.Points))
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("Transport: LoggingTransport closed")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
