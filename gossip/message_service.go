package gossip

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/telemetry"
	"github.com/adamgarcia4/goLearning/gossipfd/transport"
)

// Messenger is what the failure detector needs from the network
type Messenger interface {
	SendMessage(to EndPoint, msg *MembershipMessage) error
	PollInbound() []*MembershipMessage
	Stop() error
}

// MessageServiceOptions tunes a MessageService. Zero values select defaults.
type MessageServiceOptions struct {
	PollTimeout    time.Duration
	MaxPayloadSize int
	// DropRate is the probability in [0,1) of silently dropping an outbound datagram
	DropRate float64
	Logger   *zap.Logger
	Rand     *rand.Rand
}

// MessageService binds a UDP transport and its inbound buffer to one process
type MessageService struct {
	self       EndPoint
	udp        *transport.UDP[*MembershipMessage]
	inbound    *transport.Buffer[*MembershipMessage]
	maxPayload int
	dropRate   float64
	log        *zap.Logger

	muted atomic.Bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewMessageService creates the service for self. Call Start to bind the socket.
func NewMessageService(self EndPoint, opts MessageServiceOptions) (*MessageService, error) {
	if err := self.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxPayloadSize <= 0 {
		opts.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if opts.DropRate < 0 || opts.DropRate >= 1 {
		return nil, fmt.Errorf("drop rate must be in [0,1): %v", opts.DropRate)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	inbound := transport.NewBuffer[*MembershipMessage]()
	udp, err := transport.NewUDP[*MembershipMessage](self.String(), Unmarshal, inbound, transport.UDPOptions{
		PollTimeout:     opts.PollTimeout,
		MaxDatagramSize: opts.MaxPayloadSize,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create udp transport: %w", err)
	}

	return &MessageService{
		self:       self,
		udp:        udp,
		inbound:    inbound,
		maxPayload: opts.MaxPayloadSize,
		dropRate:   opts.DropRate,
		log:        opts.Logger,
		rng:        opts.Rand,
	}, nil
}

// Start binds the socket. A failure here is fatal to the detector.
func (s *MessageService) Start() error {
	return s.udp.Start()
}

// LocalAddr returns the bound socket address, or nil before Start
func (s *MessageService) LocalAddr() *net.UDPAddr {
	return s.udp.LocalAddr()
}

// Self returns the endpoint the service is bound to
func (s *MessageService) Self() EndPoint {
	return s.self
}

// SendMessage encodes msg, capping its snapshot to the payload limit, and
// hands it to the transport.
func (s *MessageService) SendMessage(to EndPoint, msg *MembershipMessage) error {
	if s.muted.Load() {
		telemetry.MessagesDropped.WithLabelValues("muted").Inc()
		return nil
	}

	payload, written, err := MarshalCapped(msg, s.maxPayload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	if written < len(msg.Members) {
		s.log.Debug("snapshot truncated to fit datagram",
			zap.Stringer("type", msg.Type),
			zap.Int("entries", len(msg.Members)),
			zap.Int("sent", written))
	}

	if s.shouldDrop() {
		telemetry.MessagesDropped.WithLabelValues("chaos").Inc()
		return nil
	}

	addr, err := to.UDPAddr()
	if err != nil {
		return fmt.Errorf("resolve %s: %w", to, err)
	}
	if err := s.udp.Send(addr, payload); err != nil {
		return err
	}
	telemetry.MessagesSent.WithLabelValues(msg.Type.String()).Inc()
	return nil
}

func (s *MessageService) shouldDrop() bool {
	if s.dropRate <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.dropRate
}

// Receive performs one bounded transport read into the inbound buffer.
// While muted, everything that arrives is discarded.
func (s *MessageService) Receive() error {
	_, err := s.udp.Receive()
	if s.muted.Load() {
		if n := len(s.inbound.DrainAll()); n > 0 {
			telemetry.MessagesDropped.WithLabelValues("muted").Add(float64(n))
		}
	}
	return err
}

// PollInbound returns everything buffered so far without touching the
// socket; reads belong to whoever drives Receive. Duplicates are not removed.
func (s *MessageService) PollInbound() []*MembershipMessage {
	batch := s.inbound.DrainAll()
	if s.muted.Load() {
		if len(batch) > 0 {
			telemetry.MessagesDropped.WithLabelValues("muted").Add(float64(len(batch)))
		}
		return nil
	}
	return batch
}

// SetMuted halts (or resumes) all traffic, making the process look dead to its peers
func (s *MessageService) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Muted reports whether traffic is halted
func (s *MessageService) Muted() bool {
	return s.muted.Load()
}

// Stop closes the transport. Safe to call twice.
func (s *MessageService) Stop() error {
	return s.udp.Stop()
}
