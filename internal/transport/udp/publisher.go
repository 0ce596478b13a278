// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"musicviz/internal/analysis"
	"musicviz/internal/log"
	"musicviz/internal/transport"
)

// MaxValues bounds the payload so a packet stays under a typical MTU-free
// UDP datagram limit.
const MaxValues = 4096

// HeaderSize is the byte length of the fixed packet header.
const HeaderSize = 4 + 8 + 1 + 2

// Publisher keeps the most recent frame handed to Send and transmits it on
// its own ticker, so the UDP rate is independent of the render rate.
// It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	sender   *Sender       // The underlying UDP sender instance.
	interval time.Duration // The interval at which packets are sent.

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	latestMu sync.Mutex
	latest   transport.Frame
	fresh    bool // latest has not been sent yet

	// Reused by buildAndSendPacket.
	values       []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a Publisher. If the interval is invalid (<= 0), it
// defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		log.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	log.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &Publisher{
		sender:       sender,
		interval:     interval,
		values:       make([]float32, 0, 2*MaxValues),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send records data as the frame to publish next. It accepts
// transport.Frame or *transport.Frame.
func (p *Publisher) Send(data any) error {
	var f transport.Frame
	switch v := data.(type) {
	case transport.Frame:
		f = v
	case *transport.Frame:
		f = *v
	default:
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}

	p.latestMu.Lock()
	p.latest = f
	p.fresh = true
	p.latestMu.Unlock()
	return nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals keep the goroutine off the guarded fields.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		log.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	packets, size := p.sender.Stats()
	log.Debugf("UDPPublisher: Stopped, %d packets (%d bytes) sent", packets, size)
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Frame sequence number   |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Mode              | uint8          | 1            | 0 frequency, 1 wave     |
| Value Count       | uint16         | 2            | Number of slots (N)     |
| Values            | []float32      | N * 2 * 4    | (value, shadow) pairs   |
+-----------------------------------------------------------------------------+

Wave mode points carry a shadow of 0.
*/

// buildAndSendPacket sends the latest frame if it has not been sent yet.
func (p *Publisher) buildAndSendPacket() {
	p.latestMu.Lock()
	if !p.fresh {
		p.latestMu.Unlock()
		return
	}
	f := p.latest
	p.fresh = false
	p.latestMu.Unlock()

	packet, err := p.encode(&f)
	if err != nil {
		log.Errorf("UDPPublisher: Error packing frame %d: %v", f.Seq, err)
		return
	}
	if err := p.sender.Send(packet); err == nil {
		log.Debugf("UDPPublisher: Sent packet %d (%d bytes)", f.Seq, len(packet))
	}
}

// encode packs f into the reusable packet buffer.
func (p *Publisher) encode(f *transport.Frame) ([]byte, error) {
	p.values = p.values[:0]
	for _, b := range f.Bars {
		p.values = append(p.values, b.Value, b.Shadow)
	}
	for _, pt := range f.Points {
		p.values = append(p.values, pt.Value, 0)
	}
	count := len(p.values) / 2
	if count > MaxValues {
		return nil, fmt.Errorf("%d values exceed packet limit %d", count, MaxValues)
	}

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, f.Seq)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, f.Timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint8(f.Mode))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(count))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.values)
	}
	if err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

// Packet is a decoded datagram.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Mode      analysis.Mode
	Values    []float32
	Shadows   []float32
}

// DecodePacket parses a datagram produced by Publisher.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Mode:      analysis.Mode(b[12]),
	}
	count := int(binary.BigEndian.Uint16(b[13:15]))
	payload := b[HeaderSize:]
	if len(payload) != count*8 {
		return Packet{}, fmt.Errorf("payload is %d bytes, header promises %d values", len(payload), count)
	}
	p.Values = make([]float32, count)
	p.Shadows = make([]float32, count)
	for i := range count {
		p.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[8*i:]))
		p.Shadows[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[8*i+4:]))
	}
	return p, nil
}

// Close stops the publisher and closes its sender.
func (p *Publisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

// Ensure Publisher satisfies the interface at compile time.
var _ transport.Transport = (*Publisher)(nil)
