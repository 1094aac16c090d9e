package gossip

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/telemetry"
	"github.com/adamgarcia4/goLearning/gossipfd/transport"
)

/*
Heartbeat Handling

One gossip round, run once per TGossip while in the group:

 1. detect failures: drop peers not refreshed for TFail+TRemove
 2. bump the own heartbeat and stamp the self entry
 3. pick up to Gossip random peers
 4. send each a GOSSIP_HEARTBEAT with the whole view

Receivers stamp what they learn with their own clock, so clocks never need
to agree across processes.
*/

// SendHeartbeats performs one gossip round
func (d *FailureDetector) SendHeartbeats() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exited.Load() {
		return ErrExited
	}
	return d.sendHeartbeats()
}

func (d *FailureDetector) sendHeartbeats() error {
	d.detectFailure()

	heartbeat := d.member.IncrementHeartbeat(d.nowMillis())
	targets := d.FindGossipNeighbors()
	if len(targets) == 0 {
		return nil
	}

	msg := NewGossipHeartbeat(d.cfg.Self, heartbeat, d.member.Snapshot())

	var errs []error
	for _, target := range targets {
		err := d.msgs.SendMessage(target, msg)
		if err == nil {
			continue
		}
		// Encoding does not depend on the target and a closed transport
		// will not reopen, so the rest of the round is skipped.
		if errors.Is(err, transport.ErrClosed) || errors.Is(err, ErrMessageTooLarge) || errors.Is(err, ErrUnknownMessageType) {
			return fmt.Errorf("gossip round aborted: %w", err)
		}
		d.log.Debug("gossip send failed", zap.Stringer("peer", target), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", target, err))
	}
	return errors.Join(errs...)
}

// FindGossipNeighbors picks the targets of one round: every peer when there
// are at most Gossip of them, otherwise Gossip distinct peers chosen
// uniformly at random. Self is never included.
func (d *FailureDetector) FindGossipNeighbors() []EndPoint {
	peers := d.member.Peers()
	if len(peers) <= d.cfg.Gossip {
		return peers
	}

	d.rngMu.Lock()
	d.rng.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	d.rngMu.Unlock()

	return peers[:d.cfg.Gossip]
}

// DetectFailure removes every peer whose entry is older than TFail+TRemove,
// records it in FailedMembers and returns the newly failed endpoints.
func (d *FailureDetector) DetectFailure() []EndPoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detectFailure()
}

func (d *FailureDetector) detectFailure() []EndPoint {
	deadline := d.nowMillis() - d.cfg.failureWindow().Milliseconds()

	expired := d.member.Expired(deadline)
	for _, ep := range expired {
		last, _ := d.member.Get(ep)
		d.member.Remove(ep)
		if d.failed.Add(ep) {
			telemetry.FailuresDetected.WithLabelValues(d.name).Inc()
		}
		d.log.Info("peer failed",
			zap.Stringer("peer", ep),
			zap.Int64("last_heartbeat", last.Heartbeat),
			zap.Int64("silent_ms", d.nowMillis()-last.Timestamp))
	}
	return expired
}
