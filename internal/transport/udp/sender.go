// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	applog "spectro/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("udp: sender closed")

// writeTimeout bounds a single datagram write.
const writeTimeout = 50 * time.Millisecond

// UDPSender writes datagrams to one connected peer.
type UDPSender struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	target *net.UDPAddr
	closed bool

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// NewUDPSender dials targetAddress ("host:port"). Nothing is sent until
// Send; an unreachable peer only shows up as write errors.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", addr, err)
	}
	applog.Infof("UDPSender: Sending columns to %s from %s", conn.RemoteAddr(), conn.LocalAddr())
	return &UDPSender{conn: conn, target: addr}, nil
}

// Target is the address packets are sent to.
func (s *UDPSender) Target() *net.UDPAddr { return s.target }

// Sent returns the packets and bytes written so far.
func (s *UDPSender) Sent() (packets, bytes uint64) {
	return s.packets.Load(), s.bytes.Load()
}

// Send writes data as one datagram.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("udp: set deadline: %w", err)
	}
	n, err := s.conn.Write(data)
	if err != nil {
		applog.Debugf("UDPSender: write to %s: %v", s.target, err)
		return fmt.Errorf("udp: write: %w", err)
	}
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
	return nil
}

// Close releases the socket. Further sends return ErrClosed.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	packets, bytes := s.Sent()
	applog.Infof("UDPSender: Closing, %d packets (%d bytes) sent to %s", packets, bytes, s.target)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("udp: close: %w", err)
	}
	return nil
}

var _ Sender = (*UDPSender)(nil)
