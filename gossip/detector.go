// Package gossip implements a gossip-style membership failure detector.
//
// Every process keeps a partial view of the group: a map from EndPoint to the
// last heartbeat it heard for that peer and the local time it heard it. The
// view is bounded by KList; inserting into a full view evicts a random peer.
//
// Protocol:
//
//	JOINREQ          joiner -> introducer: "add me"
//	JOINREP          introducer -> joiner: the introducer's view; the joiner is now in the group
//	GOSSIP_HEARTBEAT member -> Gossip random peers, every TGossip: own heartbeat + view
//
// Merge rule: a higher heartbeat wins and the entry is stamped with the local
// clock. A peer whose entry is not refreshed for TFail+TRemove is removed and
// recorded in FailedMembers, after which no message can bring it back.
//
// File Organization:
//
//	endpoint.go         EndPoint identity
//	member.go           Member (local state) and MemberListEntry
//	failed_members.go   FailedMembers set
//	message.go          MembershipMessage and its types
//	codec.go            wire format
//	message_service.go  Messenger over the UDP transport
//	detector.go         FailureDetector lifecycle and inbound handling
//	heartbeat.go        gossip rounds and failure detection
package gossip

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/telemetry"
)

// State is the lifecycle stage of a FailureDetector
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateIntroducing
	StateInGroup
	StateFailed
	StateExited
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitialized:
		return "INITIALIZED"
	case StateIntroducing:
		return "INTRODUCING"
	case StateInGroup:
		return "IN_GROUP"
	case StateFailed:
		return "FAILED"
	case StateExited:
		return "EXITED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FailureDetector runs the membership protocol for one process
type FailureDetector struct {
	cfg    Config
	name   string
	member *Member
	failed *FailedMembers
	msgs   Messenger
	log    *zap.Logger
	now    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	// mu serializes protocol operations; readers go through Member directly
	mu           sync.Mutex
	ticksWaiting int

	introducing atomic.Bool
	exited      atomic.Bool
}

// Option customizes a FailureDetector
type Option func(*FailureDetector)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(d *FailureDetector) { d.log = log }
}

// WithClock replaces the wall clock, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(d *FailureDetector) { d.now = now }
}

// WithRand sets the source used for eviction and gossip target selection
func WithRand(rng *rand.Rand) Option {
	return func(d *FailureDetector) { d.rng = rng }
}

// WithName sets the process name used in metrics
func WithName(name string) Option {
	return func(d *FailureDetector) { d.name = name }
}

// NewFailureDetector creates a detector for cfg.Self talking through msgs
func NewFailureDetector(cfg Config, msgs Messenger, opts ...Option) (*FailureDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if msgs == nil {
		return nil, ErrMessengerRequired
	}

	d := &FailureDetector{
		cfg:    cfg,
		name:   cfg.Self.String(),
		member: NewMember(cfg.Self),
		failed: NewFailedMembers(),
		msgs:   msgs,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	d.log = d.log.With(zap.Stringer("self", cfg.Self))
	return d, nil
}

// InitNode resets the local state: heartbeat zero, a view holding only self
func (d *FailureDetector) InitNode() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exited.Load() {
		return ErrExited
	}
	d.member.Init(d.nowMillis())
	d.log.Info("node initialized", zap.Bool("introducer", d.cfg.IsIntroducer()))
	return nil
}

// IntroduceSelfToGroup joins the group. The introducer is in the group by
// definition; anyone else sends a JOINREQ and returns without waiting for the
// reply.
func (d *FailureDetector) IntroduceSelfToGroup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exited.Load() {
		return ErrExited
	}
	if !d.member.Inited() {
		return ErrNotInitialized
	}

	if d.cfg.IsIntroducer() {
		d.member.SetInGroup(true)
		d.log.Info("starting group as introducer")
		return nil
	}

	d.introducing.Store(true)
	return d.sendJoinRequest()
}

func (d *FailureDetector) sendJoinRequest() error {
	d.ticksWaiting = 0
	msg := NewJoinRequest(d.cfg.Self, d.member.Heartbeat())
	if err := d.msgs.SendMessage(d.cfg.Introducer, msg); err != nil {
		return fmt.Errorf("send join request to %s: %w", d.cfg.Introducer, err)
	}
	d.log.Info("join request sent", zap.Stringer("introducer", d.cfg.Introducer))
	return nil
}

// Tick runs one protocol cycle and reports whether the detector is still
// running: it processes everything received since the last cycle and, once
// in the group, performs a gossip round.
func (d *FailureDetector) Tick() bool {
	start := time.Now()
	defer func() { telemetry.TickDuration.Observe(time.Since(start).Seconds()) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exited.Load() || d.member.Failed() {
		return false
	}

	d.checkMessages(d.msgs.PollInbound())

	if !d.member.InGroup() {
		d.retryJoin()
		return true
	}

	if err := d.sendHeartbeats(); err != nil {
		d.log.Warn("gossip round incomplete", zap.Error(err))
	}
	telemetry.Members.WithLabelValues(d.name).Set(float64(d.member.Len()))
	return true
}

// retryJoin resends the JOINREQ every JoinRetryTicks cycles, covering a lost
// datagram or an introducer that was not listening yet.
func (d *FailureDetector) retryJoin() {
	if !d.introducing.Load() || d.cfg.JoinRetryTicks == 0 {
		return
	}
	d.ticksWaiting++
	if d.ticksWaiting < d.cfg.JoinRetryTicks {
		return
	}
	if err := d.sendJoinRequest(); err != nil {
		d.log.Warn("join retry failed", zap.Error(err))
	}
}

// CheckMessages processes one drained batch of inbound messages
func (d *FailureDetector) CheckMessages(batch []*MembershipMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkMessages(batch)
}

func (d *FailureDetector) checkMessages(batch []*MembershipMessage) {
	for _, msg := range batch {
		if msg == nil {
			continue
		}
		telemetry.MessagesReceived.WithLabelValues(msg.Type.String()).Inc()

		switch msg.Type {
		case JoinRequest:
			d.handleJoinRequest(msg)
		case JoinReply:
			d.handleJoinReply(msg)
		case GossipHeartbeat:
			d.handleGossip(msg)
		default:
			d.log.Warn("ignoring message of unknown type", zap.Stringer("type", msg.Type), zap.Stringer("from", msg.Sender))
		}
	}
}

func (d *FailureDetector) handleJoinRequest(msg *MembershipMessage) {
	switch {
	case !d.cfg.IsIntroducer():
		telemetry.MessagesDropped.WithLabelValues("not_introducer").Inc()
		d.log.Debug("ignoring join request, not the introducer", zap.Stringer("from", msg.Sender))
		return
	case msg.Sender == d.cfg.Self:
		return
	case d.failed.Contains(msg.Sender):
		telemetry.MessagesDropped.WithLabelValues("failed_member").Inc()
		d.log.Info("refusing join from failed member", zap.Stringer("from", msg.Sender))
		return
	}

	d.insert(MemberListEntry{EndPoint: msg.Sender, Heartbeat: msg.Heartbeat, Timestamp: d.nowMillis()})
	d.log.Info("member joined", zap.Stringer("peer", msg.Sender))

	reply := NewJoinReply(d.cfg.Self, d.member.Heartbeat(), d.member.Snapshot())
	if err := d.msgs.SendMessage(msg.Sender, reply); err != nil {
		d.log.Warn("join reply failed", zap.Stringer("peer", msg.Sender), zap.Error(err))
	}
}

func (d *FailureDetector) handleJoinReply(msg *MembershipMessage) {
	if d.member.SetInGroup(true) {
		d.introducing.Store(false)
		d.log.Info("joined group", zap.Stringer("introducer", msg.Sender), zap.Int("entries", len(msg.Members)))
	}

	now := d.nowMillis()
	for _, e := range msg.entriesWithSender() {
		if e.EndPoint == d.cfg.Self || d.failed.Contains(e.EndPoint) || d.member.Contains(e.EndPoint) {
			continue
		}
		d.insert(MemberListEntry{EndPoint: e.EndPoint, Heartbeat: e.Heartbeat, Timestamp: now})
	}
}

func (d *FailureDetector) handleGossip(msg *MembershipMessage) {
	if !d.member.InGroup() {
		telemetry.MessagesDropped.WithLabelValues("not_in_group").Inc()
		d.log.Debug("dropping gossip, not in group yet", zap.Stringer("from", msg.Sender))
		return
	}
	d.merge(msg)
}

// merge folds a remote view into the local one. Known entries move forward
// only on a strictly higher heartbeat; unknown ones are inserted. Every
// touched entry is stamped with the local clock.
func (d *FailureDetector) merge(msg *MembershipMessage) {
	now := d.nowMillis()
	for _, e := range msg.entriesWithSender() {
		if e.EndPoint == d.cfg.Self || d.failed.Contains(e.EndPoint) {
			continue
		}
		if _, known := d.member.UpdateIfNewer(e.EndPoint, e.Heartbeat, now); known {
			continue
		}
		d.insert(MemberListEntry{EndPoint: e.EndPoint, Heartbeat: e.Heartbeat, Timestamp: now})
	}
}

// insert adds or refreshes an entry, evicting a random peer when the view is full
func (d *FailureDetector) insert(e MemberListEntry) {
	evicted, ok := d.member.Upsert(e, d.cfg.KList, d.intn)
	if ok {
		telemetry.Evictions.WithLabelValues(d.name).Inc()
		d.log.Debug("evicted peer to make room", zap.Stringer("evicted", evicted), zap.Stringer("added", e.EndPoint))
	}
}

func (d *FailureDetector) intn(n int) int {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return d.rng.Intn(n)
}

// Fail marks the process failed: the next Tick reports the detector stopped
func (d *FailureDetector) Fail() {
	d.member.SetFailed()
	d.log.Warn("process marked failed")
}

// Exit clears FailedMembers and stops the message service. Only the first
// call has an effect.
func (d *FailureDetector) Exit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.exited.CompareAndSwap(false, true) {
		return nil
	}
	d.failed.Clear()
	d.introducing.Store(false)
	telemetry.Members.DeleteLabelValues(d.name)

	if err := d.msgs.Stop(); err != nil {
		return fmt.Errorf("stop message service: %w", err)
	}
	d.log.Info("failure detector exited", zap.Int64("heartbeat", d.member.Heartbeat()))
	return nil
}

// State returns the current lifecycle stage
func (d *FailureDetector) State() State {
	switch {
	case d.exited.Load():
		return StateExited
	case d.member.Failed():
		return StateFailed
	case d.member.InGroup():
		return StateInGroup
	case d.introducing.Load():
		return StateIntroducing
	case d.member.Inited():
		return StateInitialized
	default:
		return StateUninitialized
	}
}

// Self returns the process's endpoint
func (d *FailureDetector) Self() EndPoint { return d.cfg.Self }

// Config returns the detector configuration
func (d *FailureDetector) Config() Config { return d.cfg }

// IsIntroducer reports whether this process bootstraps the group
func (d *FailureDetector) IsIntroducer() bool { return d.cfg.IsIntroducer() }

// InGroup reports whether the process has joined the group
func (d *FailureDetector) InGroup() bool { return d.member.InGroup() }

// Heartbeat returns the own heartbeat counter
func (d *FailureDetector) Heartbeat() int64 { return d.member.Heartbeat() }

// Members returns a snapshot of the membership list, self first
func (d *FailureDetector) Members() []MemberListEntry { return d.member.Snapshot() }

// FailedMembers returns the peers removed for cause, in detection order
func (d *FailureDetector) FailedMembers() []EndPoint { return d.failed.List() }

func (d *FailureDetector) nowMillis() int64 {
	return d.now().UnixMilli()
}
