package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/gossip"
)

// Status is a point-in-time view of one process, for reports and the TUI
type Status struct {
	Name       string
	EndPoint   gossip.EndPoint
	Introducer bool
	State      gossip.State
	Muted      bool
	Heartbeat  int64
	Members    []gossip.MemberListEntry
	Failed     []gossip.EndPoint
}

// HasMember reports whether ep is in the membership list
func (s Status) HasMember(ep gossip.EndPoint) bool {
	for _, e := range s.Members {
		if e.EndPoint == ep {
			return true
		}
	}
	return false
}

// HasFailed reports whether ep was recorded as failed
func (s Status) HasFailed(ep gossip.EndPoint) bool {
	for _, f := range s.Failed {
		if f == ep {
			return true
		}
	}
	return false
}

// Node is one simulated process: a message service, the failure detector it
// feeds and the runner that drives both.
type Node struct {
	config   *Config
	log      *zap.Logger
	msgs     *gossip.MessageService
	detector *gossip.FailureDetector
	runner   *Runner

	started  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
	result   atomic.Bool
}

// New creates a new node with the given configuration
func New(config *Config, log *zap.Logger) (*Node, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	detCfg, err := config.DetectorConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	msgs, err := gossip.NewMessageService(detCfg.Self, gossip.MessageServiceOptions{
		PollTimeout:    config.PollTimeout,
		MaxPayloadSize: config.MaxPayloadSize,
		DropRate:       config.DropRate,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message service: %w", err)
	}

	detector, err := gossip.NewFailureDetector(detCfg, msgs,
		gossip.WithLogger(log),
		gossip.WithName(config.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure detector: %w", err)
	}

	return &Node{
		config:   config,
		log:      log,
		msgs:     msgs,
		detector: detector,
		runner:   NewRunner(detector, msgs, detCfg.TGossip, log),
		done:     make(chan struct{}),
	}, nil
}

// Start binds the UDP socket. This is the only fatal step of a node's life.
func (n *Node) Start() error {
	if err := n.msgs.Start(); err != nil {
		n.log.Error("failed to bind transport", zap.String("addr", n.config.GetAddress()), zap.Error(err))
		return err
	}
	n.started.Store(true)
	n.log.Info("transport bound", zap.String("addr", n.config.GetAddress()))
	return nil
}

// InitNode initializes the detector state, logging any failure
func (n *Node) InitNode() bool {
	if err := n.detector.InitNode(); err != nil {
		n.log.Error("init node failed", zap.Error(err))
		return false
	}
	return true
}

// IntroduceSelfToGroup starts the join, logging any failure
func (n *Node) IntroduceSelfToGroup() bool {
	if err := n.detector.IntroduceSelfToGroup(); err != nil {
		n.log.Error("introduction failed", zap.Error(err))
		return false
	}
	return true
}

// Run blocks until the node is shut down and reports whether it ran cleanly
func (n *Node) Run(ctx context.Context) bool {
	defer n.doneOnce.Do(func() { close(n.done) })

	if !n.started.Load() {
		n.log.Error("run called before start", zap.Error(ErrNodeNotStarted))
		_ = n.detector.Exit()
		return false
	}
	ok := n.runner.Run(ctx)
	n.result.Store(ok)
	return ok
}

// Launch runs the node in the background; Wait collects the result
func (n *Node) Launch(ctx context.Context) {
	go n.Run(ctx)
}

// Wait blocks until Run returns and reports its result
func (n *Node) Wait() bool {
	<-n.done
	return n.result.Load()
}

// Done is closed when Run returns
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Shutdown signals the runner to stop without waiting
func (n *Node) Shutdown() {
	n.runner.Shutdown()
}

// Silence halts all send and receive traffic. The process keeps ticking but
// its peers stop hearing from it, so they eventually declare it failed.
func (n *Node) Silence() {
	n.msgs.SetMuted(true)
	n.log.Warn("process silenced")
}

// Crash marks the detector failed; its runner stops at the next tick
func (n *Node) Crash() {
	n.detector.Fail()
}

// Status returns a snapshot of the node's detector
func (n *Node) Status() Status {
	return Status{
		Name:       n.config.Name,
		EndPoint:   n.detector.Self(),
		Introducer: n.detector.IsIntroducer(),
		State:      n.detector.State(),
		Muted:      n.msgs.Muted(),
		Heartbeat:  n.detector.Heartbeat(),
		Members:    n.detector.Members(),
		Failed:     n.detector.FailedMembers(),
	}
}

// Name returns the process name
func (n *Node) Name() string {
	return n.config.Name
}

// EndPoint returns the process identity
func (n *Node) EndPoint() gossip.EndPoint {
	return n.detector.Self()
}
