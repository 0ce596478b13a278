// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"musicviz/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("UDP sender is closed")

// Sender writes whole packets to one connected UDP peer. Writes and Close
// are serialized so a packet never goes to a connection being torn down.
type Sender struct {
	target *net.UDPAddr

	mu      sync.Mutex
	conn    *net.UDPConn // nil once closed
	packets uint64
	bytes   uint64
}

// NewSender dials target ("host:port"). UDP dialling only fixes the peer;
// nothing is sent until Send.
func NewSender(target string) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", target, err)
	}

	log.Infof("UDPSender: Sending to %s from %s", conn.RemoteAddr(), conn.LocalAddr())
	return &Sender{target: addr, conn: conn}, nil
}

// Send writes packet as a single datagram.
func (s *Sender) Send(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrClosed
	}
	n, err := s.conn.Write(packet)
	if err != nil {
		log.Warnf("UDPSender: Write to %s failed: %v", s.target, err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	s.packets++
	s.bytes += uint64(n)
	return nil
}

// Stats returns the packets and bytes written so far.
func (s *Sender) Stats() (packets, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets, s.bytes
}

// Close releases the connection. Later calls return nil.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	log.Infof("UDPSender: Closed %s after %d packets (%d bytes)", s.target, s.packets, s.bytes)
	if err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

var _ io.Closer = (*Sender)(nil)
