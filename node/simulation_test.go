package node

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gossipfd/gossip"
)

// freeBasePort finds count consecutive loopback UDP ports that are unused
func freeBasePort(t *testing.T, count int) int {
	t.Helper()

	for attempt := 0; attempt < 50; attempt++ {
		base := 30000 + rand.Intn(20000)
		conns := make([]*net.UDPConn, 0, count)
		for i := 0; i < count; i++ {
			conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: base + i})
			if err != nil {
				break
			}
			conns = append(conns, conn)
		}
		for _, c := range conns {
			c.Close()
		}
		if len(conns) == count {
			return base
		}
	}
	t.Fatal("no free port range")
	return 0
}

// fastSimulation scales the reference timings down tenfold
func fastSimulation(t *testing.T) *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.BasePort = freeBasePort(t, cfg.Count)
	cfg.IntroducerIndex = 0
	cfg.Duration = 2 * time.Second
	cfg.Gossip.TGossip = 100 * time.Millisecond
	cfg.Gossip.TFail = 500 * time.Millisecond
	cfg.Gossip.TRemove = 500 * time.Millisecond
	return cfg
}

func endPoints(cfg *SimulationConfig) []gossip.EndPoint {
	out := make([]gossip.EndPoint, cfg.Count)
	for i := range out {
		out[i] = gossip.NewEndPoint(cfg.Host, cfg.BasePort+i)
	}
	return out
}

func TestSimulate_EveryoneLearnsEveryone(t *testing.T) {
	if testing.Short() {
		t.Skip("runs real processes over UDP")
	}

	cfg := fastSimulation(t)
	m := NewManager(cfg, nil)

	report, err := m.Simulate(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Processes, cfg.Count)
	assert.True(t, report.AllOK())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, endPoints(cfg)[0], report.Introducer)

	for _, p := range report.Processes {
		assert.Equal(t, gossip.StateInGroup, p.State, p.Name)
		assert.Len(t, p.Members, cfg.Count, "%s should know every process", p.Name)
		for _, ep := range endPoints(cfg) {
			assert.True(t, p.HasMember(ep), "%s is missing %s", p.Name, ep)
		}
		assert.Empty(t, p.Failed, "%s removed a healthy process", p.Name)
		assert.Greater(t, p.Heartbeat, int64(0))
	}
}

func TestSimulate_SilencedProcessIsRemoved(t *testing.T) {
	if testing.Short() {
		t.Skip("runs real processes over UDP")
	}

	cfg := fastSimulation(t)
	cfg.Duration = 4 * time.Second
	cfg.FailIndex = 2
	cfg.FailAfter = time.Second
	m := NewManager(cfg, nil)

	report, err := m.Simulate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.AllOK())

	silenced := endPoints(cfg)[cfg.FailIndex]
	assert.Equal(t, []gossip.EndPoint{silenced}, report.Silenced)

	for i, p := range report.Processes {
		if i == cfg.FailIndex {
			assert.True(t, p.Muted)
			continue
		}
		assert.False(t, p.HasMember(silenced), "%s still lists the silenced process", p.Name)
		assert.True(t, p.HasFailed(silenced), "%s never recorded the failure", p.Name)
		assert.Len(t, p.Members, cfg.Count-1, p.Name)
		assert.Len(t, p.Failed, 1, p.Name)
	}
}

func TestSimulate_CancelledEarly(t *testing.T) {
	if testing.Short() {
		t.Skip("runs real processes over UDP")
	}

	cfg := fastSimulation(t)
	cfg.Duration = time.Minute
	m := NewManager(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := m.Simulate(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, report.AllOK())
}

func TestSimulate_BindFailure(t *testing.T) {
	cfg := fastSimulation(t)
	busy, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.BasePort + 3})
	require.NoError(t, err)
	defer busy.Close()

	m := NewManager(cfg, nil)
	_, err = m.Simulate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process-4")
	assert.Empty(t, m.GetNodes())
	_, ok := m.GetNode("process-1")
	assert.False(t, ok)

	// the failed run left nothing behind, so a retry fails for the same reason
	_, err = m.Simulate(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSimulationRunning)
	assert.Contains(t, err.Error(), "process-4")

	// every socket bound before the failure was released
	for i := 0; i < 3; i++ {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.BasePort + i})
		require.NoError(t, err, "port %d still bound", cfg.BasePort+i)
		conn.Close()
	}
}

func TestSimulate_InvalidConfig(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.Count = 0
	_, err := NewManager(cfg, nil).Simulate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestManager_CreateAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("runs real processes over UDP")
	}

	cfg := fastSimulation(t)
	m := NewManager(cfg, nil)
	t.Cleanup(func() { _ = m.StopAll() })

	for i := 0; i < 3; i++ {
		n, err := m.CreateNode()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("process-%d", i+1), n.Name())
	}

	nodes := m.GetNodes()
	require.Len(t, nodes, 3)
	assert.True(t, nodes[0].Status().Introducer)
	assert.False(t, nodes[1].Status().Introducer)

	require.Eventually(t, func() bool {
		for _, n := range m.GetNodes() {
			if len(n.Status().Members) != 3 {
				return false
			}
		}
		return true
	}, 3*time.Second, 50*time.Millisecond)

	n, ok := m.GetNode("process-2")
	require.True(t, ok)
	require.NoError(t, m.DeleteNode(1))
	select {
	case <-n.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("deleted process did not stop")
	}
	_, ok = m.GetNode("process-2")
	assert.False(t, ok)

	// the survivors drop the deleted process once it goes quiet
	require.Eventually(t, func() bool {
		for _, n := range m.GetNodes() {
			if n.Status().HasMember(gossip.NewEndPoint(cfg.Host, cfg.BasePort+1)) {
				return false
			}
		}
		return true
	}, 3*time.Second, 50*time.Millisecond)

	assert.Error(t, m.DeleteNode(5))
	assert.NoError(t, m.StopAll())
}
