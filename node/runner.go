package node

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/transport"
)

// receiveBackoff paces the drain loop after a transport error
const receiveBackoff = 50 * time.Millisecond

// Detector is the part of the failure detector the runner drives
type Detector interface {
	Tick() bool
	Exit() error
}

// Receiver pulls datagrams off the network into the inbound buffer.
// Each call must return within the transport poll timeout.
type Receiver interface {
	Receive() error
}

// Runner drives one failure detector with three concurrent activities:
//
//	heartbeat loop  calls Tick every interval
//	drain loop      keeps receiving so the inbound buffer never backs up
//	watcher         turns Shutdown or the caller's ctx into cancellation
//
// Run joins all three before calling Exit.
type Runner struct {
	det      Detector
	recv     Receiver
	interval time.Duration
	log      *zap.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	started      atomic.Bool
}

// NewRunner creates a runner ticking det every interval
func NewRunner(det Detector, recv Receiver, interval time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		det:      det,
		recv:     recv,
		interval: interval,
		log:      log,
		shutdown: make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled, Shutdown is called or the detector stops
// itself. It returns true when the run ended by cancellation and the detector
// exited cleanly. A runner runs at most once.
func (r *Runner) Run(ctx context.Context) bool {
	if !r.started.CompareAndSwap(false, true) {
		r.log.Error("runner already started")
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var detectorStopped atomic.Bool
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if !r.heartbeatLoop(runCtx) {
			detectorStopped.Store(true)
			cancel()
		}
	}()

	go func() {
		defer wg.Done()
		r.drainLoop(runCtx)
	}()

	go func() {
		defer wg.Done()
		r.watch(runCtx, cancel)
	}()

	wg.Wait()

	ok := !detectorStopped.Load()
	if !ok {
		r.log.Warn("failure detector stopped on its own")
	}
	if err := r.det.Exit(); err != nil {
		r.log.Error("failure detector exit failed", zap.Error(err))
		ok = false
	}
	r.log.Info("runner stopped", zap.Bool("ok", ok))
	return ok
}

// Shutdown asks a running Run to stop. It does not wait; safe to call many times.
func (r *Runner) Shutdown() {
	r.shutdownOnce.Do(func() { close(r.shutdown) })
}

// heartbeatLoop ticks until ctx is done. It returns false if the detector
// reported itself stopped.
func (r *Runner) heartbeatLoop(ctx context.Context) bool {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Debug("heartbeat loop started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			if !r.det.Tick() {
				return false
			}
		}
	}
}

func (r *Runner) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := r.recv.Receive()
		if err == nil {
			continue
		}
		if errors.Is(err, transport.ErrClosed) {
			r.log.Debug("transport closed, drain loop exiting")
			return
		}
		r.log.Warn("receive failed", zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(receiveBackoff):
		}
	}
}

func (r *Runner) watch(ctx context.Context, cancel context.CancelFunc) {
	select {
	case <-ctx.Done():
	case <-r.shutdown:
		r.log.Info("shutdown requested")
		cancel()
	}
}
