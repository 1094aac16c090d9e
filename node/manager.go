package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/gossip"
	"github.com/adamgarcia4/goLearning/gossipfd/telemetry"
	"github.com/adamgarcia4/goLearning/gossipfd/transport"
)

// ProcessReport is the outcome of one process in a simulation
type ProcessReport struct {
	Status
	OK bool
}

// Report summarizes a finished simulation
type Report struct {
	RunID      string
	Introducer gossip.EndPoint
	Silenced   []gossip.EndPoint
	Duration   time.Duration
	Processes  []ProcessReport
}

// AllOK reports whether every process finished its run cleanly
func (r *Report) AllOK() bool {
	for _, p := range r.Processes {
		if !p.OK {
			return false
		}
	}
	return true
}

// Manager manages multiple nodes: it allocates their ports, picks the
// introducer, runs them concurrently and collects their results.
type Manager struct {
	cfg   *SimulationConfig
	log   *zap.Logger
	runID string
	rng   *rand.Rand

	nodes      []*Node        // maintain order with slice
	nodeMap    map[string]int // map process name to index for quick lookup
	introducer gossip.EndPoint
	nextID     int // monotonically increasing counter for names and ports
	mu         sync.RWMutex

	admin *transport.GRPC

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new node manager for cfg (nil selects the defaults)
func NewManager(cfg *SimulationConfig, log *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultSimulationConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:     cfg,
		log:     log.With(zap.String("run_id", runID)),
		runID:   runID,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		nodeMap: make(map[string]int),
		nextID:  1,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RunID identifies this manager's run in logs
func (m *Manager) RunID() string {
	return m.runID
}

// SetAdmin publishes every process's health on admin, refreshed each gossip period
func (m *Manager) SetAdmin(admin *transport.GRPC) {
	m.mu.Lock()
	m.admin = admin
	m.mu.Unlock()

	m.wg.Add(1)
	go m.publishHealth()
}

func (m *Manager) publishHealth() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Gossip.TGossip)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			for _, n := range m.GetNodes() {
				st := n.Status()
				m.admin.SetServing(st.Name, st.State == gossip.StateInGroup && !st.Muted)
			}
		}
	}
}

// newNode builds (but does not start) the process with the given index
func (m *Manager) newNode(index int, introducer gossip.EndPoint) (*Node, error) {
	cfg := m.cfg.processConfig(index, introducer)
	n, err := New(cfg, m.log.Named(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Name, err)
	}
	return n, nil
}

// CreateNode creates, starts and launches one more process. The first process
// created becomes the introducer of every later one.
func (m *Manager) CreateNode() (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.nextID - 1
	m.nextID++ // a port that failed to bind is not retried

	if m.cfg.BasePort+index > maxPort {
		return nil, ErrPortRangeExhausted
	}

	introducer := m.introducer
	if introducer.IsZero() {
		introducer = gossip.NewEndPoint(m.cfg.Host, m.cfg.BasePort+index)
	}

	n, err := m.newNode(index, introducer)
	if err != nil {
		return nil, err
	}
	if err := n.Start(); err != nil {
		return nil, fmt.Errorf("failed to start node: %w", err)
	}
	if !n.InitNode() || !n.IntroduceSelfToGroup() {
		n.Shutdown()
		n.Launch(m.ctx)
		return nil, fmt.Errorf("failed to introduce %s", n.Name())
	}
	n.Launch(m.ctx)

	m.introducer = introducer
	m.nodes = append(m.nodes, n)
	m.nodeMap[n.Name()] = len(m.nodes) - 1
	return n, nil
}

// DeleteNode stops and removes a node by its index in the list
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()

	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("invalid node index: %d", index)
	}

	n := m.nodes[index]
	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	delete(m.nodeMap, n.Name())
	for i, other := range m.nodes {
		m.nodeMap[other.Name()] = i
	}
	admin := m.admin
	m.mu.Unlock()

	// Shutdown does not block; the runner finishes on its own goroutine
	n.Shutdown()
	telemetry.Forget(n.Name())
	if admin != nil {
		admin.SetServing(n.Name(), false)
	}
	m.log.Info("process deleted", zap.String("process", n.Name()))
	return nil
}

// SilenceNode halts the traffic of the node at index
func (m *Manager) SilenceNode(index int) error {
	n, err := m.nodeAt(index)
	if err != nil {
		return err
	}
	n.Silence()
	return nil
}

// CrashNode marks the node at index failed; it stops at its next tick
func (m *Manager) CrashNode(index int) error {
	n, err := m.nodeAt(index)
	if err != nil {
		return err
	}
	n.Crash()
	return nil
}

// GetNode looks a node up by process name
func (m *Manager) GetNode(name string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.nodeMap[name]
	if !ok {
		return nil, false
	}
	return m.nodes[i], true
}

func (m *Manager) nodeAt(index int) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.nodes) {
		return nil, fmt.Errorf("invalid node index: %d", index)
	}
	return m.nodes[index], nil
}

// GetNodes returns a list of all nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// StopAll shuts every node down and waits for their runners to finish
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.Unlock()

	for _, n := range nodes {
		n.Shutdown()
	}

	var errs []error
	for _, n := range nodes {
		if !n.Wait() {
			errs = append(errs, fmt.Errorf("%s did not stop cleanly", n.Name()))
		}
	}

	m.cancel()
	m.wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping nodes: %w", errors.Join(errs...))
	}
	return nil
}

// pickIntroducer resolves the introducer index, never choosing the process
// that is scheduled to be silenced.
func (m *Manager) pickIntroducer() int {
	if m.cfg.IntroducerIndex >= 0 {
		return m.cfg.IntroducerIndex
	}
	for {
		i := m.rng.Intn(m.cfg.Count)
		if i != m.cfg.FailIndex || m.cfg.Count == 1 {
			return i
		}
	}
}

// resetLocked forgets a simulation that never got going, so Simulate can be retried
func (m *Manager) resetLocked() {
	m.nodes = nil
	m.nodeMap = make(map[string]int)
	m.introducer = gossip.EndPoint{}
	m.nextID = 1
}

// Simulate runs Count processes for Duration. Every transport is bound before
// any process introduces itself, the introducer goes first, and all
// membership views are captured at the deadline, before shutdown.
func (m *Manager) Simulate(ctx context.Context) (*Report, error) {
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}

	m.mu.Lock()
	if len(m.nodes) > 0 {
		m.mu.Unlock()
		return nil, ErrSimulationRunning
	}
	introIndex := m.pickIntroducer()
	introducer := gossip.NewEndPoint(m.cfg.Host, m.cfg.BasePort+introIndex)
	nodes := make([]*Node, 0, m.cfg.Count)
	for i := 0; i < m.cfg.Count; i++ {
		n, err := m.newNode(i, introducer)
		if err != nil {
			m.resetLocked()
			m.mu.Unlock()
			return nil, err
		}
		nodes = append(nodes, n)
		m.nodeMap[n.Name()] = i
	}
	m.nodes = nodes
	m.introducer = introducer
	m.nextID = m.cfg.Count + 1
	m.mu.Unlock()

	log := m.log.With(zap.Stringer("introducer", introducer))
	log.Info("starting simulation", zap.Int("processes", m.cfg.Count), zap.Duration("duration", m.cfg.Duration))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, n := range nodes {
		if err := n.Start(); err != nil {
			// Nodes never launched still own sockets; Run on a cancelled
			// context exits them.
			cancel()
			for _, other := range nodes {
				other.Launch(runCtx)
				other.Wait()
			}
			m.mu.Lock()
			m.resetLocked()
			m.mu.Unlock()
			return nil, fmt.Errorf("process %s: %w", n.Name(), err)
		}
	}

	order := make([]*Node, 0, len(nodes))
	order = append(order, nodes[introIndex])
	for i, n := range nodes {
		if i != introIndex {
			order = append(order, n)
		}
	}
	for _, n := range order {
		if n.InitNode() {
			n.IntroduceSelfToGroup()
		}
		n.Launch(runCtx)
	}

	var silenced []gossip.EndPoint
	if m.cfg.FailIndex >= 0 {
		target := nodes[m.cfg.FailIndex]
		silenced = append(silenced, target.EndPoint())
		timer := time.AfterFunc(m.cfg.FailAfter, func() {
			log.Info("silencing process", zap.String("process", target.Name()))
			target.Silence()
		})
		defer timer.Stop()
	}

	deadline := time.NewTimer(m.cfg.Duration)
	defer deadline.Stop()
	select {
	case <-deadline.C:
	case <-ctx.Done():
		log.Warn("simulation cancelled early", zap.Error(ctx.Err()))
	}

	report := &Report{
		RunID:      m.runID,
		Introducer: introducer,
		Silenced:   silenced,
		Duration:   m.cfg.Duration,
		Processes:  make([]ProcessReport, len(nodes)),
	}
	for i, n := range nodes {
		report.Processes[i].Status = n.Status()
	}

	for _, n := range nodes {
		n.Shutdown()
	}
	for i, n := range nodes {
		report.Processes[i].OK = n.Wait()
	}

	log.Info("simulation finished", zap.Bool("all_ok", report.AllOK()))
	return report, nil
}
