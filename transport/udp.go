// Package transport moves bytes between simulated processes.
//
// UDP is the datagram primitive every failure detector is bound to: sends are
// fire-and-forget, and Receive performs a single read bounded by a short poll
// timeout so the caller's loop can observe cancellation between reads. Decoded
// datagrams land in a Buffer that the protocol layer drains once per cycle.
//
// GRPC is the admin surface of a simulation (health status per process).
package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/telemetry"
)

const (
	DefaultPollTimeout     = 20 * time.Millisecond
	DefaultMaxDatagramSize = 4096
)

// Decoder turns one datagram into a message
type Decoder[T any] func(payload []byte) (T, error)

// UDPOptions tunes a UDP transport. Zero values select the defaults.
type UDPOptions struct {
	PollTimeout     time.Duration
	MaxDatagramSize int
	Logger          *zap.Logger
}

// UDP is a datagram socket bound to one process's address
type UDP[T any] struct {
	addr    string
	decode  Decoder[T]
	inbound *Buffer[T]

	pollTimeout time.Duration
	maxSize     int
	log         *zap.Logger

	mu     sync.RWMutex
	conn   *net.UDPConn
	closed bool
}

// NewUDP creates an unbound transport. Call Start to bind it.
func NewUDP[T any](addr string, decode Decoder[T], inbound *Buffer[T], opts UDPOptions) (*UDP[T], error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if decode == nil {
		return nil, ErrDecoderRequired
	}
	if inbound == nil {
		inbound = NewBuffer[T]()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.MaxDatagramSize <= 0 {
		opts.MaxDatagramSize = DefaultMaxDatagramSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &UDP[T]{
		addr:        addr,
		decode:      decode,
		inbound:     inbound,
		pollTimeout: opts.PollTimeout,
		maxSize:     opts.MaxDatagramSize,
		log:         opts.Logger,
	}, nil
}

// Start binds the socket. Binding happens synchronously so a busy port is
// reported to the caller immediately.
func (u *UDP[T]) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return ErrClosed
	}
	if u.conn != nil {
		return ErrAlreadyStarted
	}

	laddr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrBind, u.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrBind, u.addr, err)
	}
	u.conn = conn
	u.log.Debug("udp transport bound", zap.String("addr", conn.LocalAddr().String()))
	return nil
}

// LocalAddr returns the bound address, or nil before Start
func (u *UDP[T]) LocalAddr() *net.UDPAddr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Inbound returns the buffer decoded messages are pushed to
func (u *UDP[T]) Inbound() *Buffer[T] {
	return u.inbound
}

// MaxDatagramSize returns the largest payload Send accepts
func (u *UDP[T]) MaxDatagramSize() int {
	return u.maxSize
}

// connection returns the live socket without holding the lock across I/O,
// so Stop can close it while a read is pending.
func (u *UDP[T]) connection() (*net.UDPConn, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return nil, ErrClosed
	}
	if u.conn == nil {
		return nil, ErrNotStarted
	}
	return u.conn, nil
}

// Send writes one datagram to the given address. Delivery is not guaranteed.
func (u *UDP[T]) Send(to *net.UDPAddr, payload []byte) error {
	if len(payload) > u.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), u.maxSize)
	}
	conn, err := u.connection()
	if err != nil {
		return err
	}
	if _, err := conn.WriteToUDP(payload, to); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// Receive performs one read bounded by the poll timeout. It reports whether a
// message was queued. A timeout is not an error. Undecodable or oversized
// datagrams are dropped and logged.
func (u *UDP[T]) Receive() (bool, error) {
	conn, err := u.connection()
	if err != nil {
		return false, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(u.pollTimeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return false, ErrClosed
		}
		return false, fmt.Errorf("set read deadline: %w", err)
	}

	// one spare byte detects datagrams the kernel had to truncate
	buf := make([]byte, u.maxSize+1)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return false, ErrClosed
		}
		return false, fmt.Errorf("receive: %w", err)
	}

	if n > u.maxSize {
		telemetry.MessagesDropped.WithLabelValues("oversized").Inc()
		u.log.Warn("dropping oversized datagram", zap.Stringer("from", from), zap.Int("max", u.maxSize))
		return false, nil
	}

	msg, err := u.decode(buf[:n])
	if err != nil {
		telemetry.DecodeErrors.Inc()
		u.log.Warn("dropping undecodable datagram", zap.Stringer("from", from), zap.Error(err))
		return false, nil
	}

	u.inbound.Push(msg)
	return true, nil
}

// Stop closes the socket, unblocking any pending read. Calling it again is a no-op.
func (u *UDP[T]) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	if u.conn == nil {
		return nil
	}
	if err := u.conn.Close(); err != nil {
		return fmt.Errorf("close socket: %w", err)
	}
	u.log.Debug("udp transport stopped", zap.String("addr", u.addr))
	return nil
}
