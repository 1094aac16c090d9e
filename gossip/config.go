package gossip

import (
	"fmt"
	"time"
)

// Defaults match a small local simulation: a one second gossip period, a
// silent peer is dropped after TFail+TRemove = 6s.
const (
	DefaultTFail          = 3 * time.Second
	DefaultTRemove        = 3 * time.Second
	DefaultTGossip        = 1 * time.Second
	DefaultKList          = 4
	DefaultGossip         = 3
	DefaultMaxPayloadSize = 4096
	DefaultJoinRetryTicks = 3

	// minPayloadSize leaves room for a header and a few entries
	minPayloadSize = 256
)

// Config is the resolved configuration of one failure detector
type Config struct {
	Self       EndPoint
	Introducer EndPoint

	TFail   time.Duration // silence before a peer is suspected
	TRemove time.Duration // extra grace before a suspected peer is removed
	TGossip time.Duration // period of the protocol cycle

	KList  int // max peers in the partial view, self excluded
	Gossip int // fan-out per gossip round

	MaxPayloadSize int // cap on one encoded datagram
	JoinRetryTicks int // ticks between JOINREQ retries while outside the group, 0 disables
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(self, introducer EndPoint) Config {
	return Config{
		Self:           self,
		Introducer:     introducer,
		TFail:          DefaultTFail,
		TRemove:        DefaultTRemove,
		TGossip:        DefaultTGossip,
		KList:          DefaultKList,
		Gossip:         DefaultGossip,
		MaxPayloadSize: DefaultMaxPayloadSize,
		JoinRetryTicks: DefaultJoinRetryTicks,
	}
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	if c.Self.IsZero() {
		return ErrSelfRequired
	}
	if err := c.Self.Validate(); err != nil {
		return fmt.Errorf("self: %w", err)
	}
	if c.Introducer.IsZero() {
		return ErrIntroducerRequired
	}
	if err := c.Introducer.Validate(); err != nil {
		return fmt.Errorf("introducer: %w", err)
	}
	if c.TGossip <= 0 {
		return ErrInvalidGossipPeriod
	}
	if c.TFail < 0 || c.TRemove < 0 {
		return ErrInvalidTimeout
	}
	if c.Gossip < 1 {
		return ErrInvalidFanout
	}
	if c.KList < c.Gossip {
		return ErrInvalidListSize
	}
	if c.MaxPayloadSize < minPayloadSize {
		return fmt.Errorf("%w: %d < %d", ErrInvalidPayloadSize, c.MaxPayloadSize, minPayloadSize)
	}
	if c.JoinRetryTicks < 0 {
		return fmt.Errorf("join retry ticks must not be negative: %d", c.JoinRetryTicks)
	}
	return nil
}

// IsIntroducer reports whether this process bootstraps the group
func (c Config) IsIntroducer() bool {
	return c.Self == c.Introducer
}

// failureWindow is how long an entry may go without an update before removal
func (c Config) failureWindow() time.Duration {
	return c.TFail + c.TRemove
}
