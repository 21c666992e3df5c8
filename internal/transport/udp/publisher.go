// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	applog "spectro/internal/log"
)

// Sender transmits one packet.
type Sender interface {
	Send(data []byte) error
}

// UDPPublisher sends the newest spectrum column over UDP at a fixed
// interval. Columns arrive through Send from the display loop; a tick with
// nothing new sends nothing.
type UDPPublisher struct {
	sender   Sender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	colMu  sync.Mutex
	latest []float32
	fresh  bool

	sequenceNum uint32

	// Owned by the publisher goroutine.
	column       []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher. If the interval is invalid (<= 0)
// it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender Sender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send stores a copy of column for the next tick. Columns longer than a
// packet can describe are truncated.
func (p *UDPPublisher) Send(column []float32) error {
	n := min(len(column), math.MaxUint16)
	p.colMu.Lock()
	if cap(p.latest) < n {
		p.latest = make([]float32, n)
	}
	p.latest = p.latest[:n]
	copy(p.latest, column)
	p.fresh = true
	p.colMu.Unlock()
	return nil
}

// Start begins the periodic publishing process. Calling Start while
// running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket(time.Now())
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Stopped after %d packets.", p.sequenceNum)
	return nil
}

/*
Packet layout, big endian:

	|<- 4 bytes ->|<-- 8 bytes -->|<- 2 bytes ->|<---- N * 4 bytes ---->|
	+-------------+---------------+-------------+-----------------------+
	|  sequence   |   timestamp   |    count    |      magnitudes       |
	|  (uint32)   | (int64, ns)   |  (uint16)   |    (N * float32)      |
	+-------------+---------------+-------------+-----------------------+

The sequence number increases by one per packet. Magnitudes are the raw
column, lowest frequency first.
*/

// HeaderSize is the number of bytes before the magnitudes.
const HeaderSize = 4 + 8 + 2

// buildAndSendPacket packs and sends the newest column if it has not been
// sent yet. It reports whether a packet went out.
func (p *UDPPublisher) buildAndSendPacket(now time.Time) bool {
	p.colMu.Lock()
	if !p.fresh {
		p.colMu.Unlock()
		return false
	}
	p.column = append(p.column[:0], p.latest...)
	p.fresh = false
	p.colMu.Unlock()

	p.sequenceNum++
	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, now.UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.column)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.column)
	}
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return false
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		return false
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	return true
}

// Packet is a decoded column packet.
type Packet struct {
	Sequence   uint32
	Timestamp  time.Time
	Magnitudes []float32
}

// Decode parses a packet built by the publisher.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("udp: packet of %d bytes is shorter than the header", len(b))
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+4*n {
		return Packet{}, fmt.Errorf("udp: packet of %d bytes does not hold %d magnitudes", len(b), n)
	}
	pkt := Packet{
		Sequence:   binary.BigEndian.Uint32(b[0:4]),
		Timestamp:  time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12]))),
		Magnitudes: make([]float32, n),
	}
	for i := range pkt.Magnitudes {
		pkt.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(b[HeaderSize+4*i:]))
	}
	return pkt, nil
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
