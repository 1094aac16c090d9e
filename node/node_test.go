package node

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func localConfig(name string, port int, introducer string) *Config {
	cfg := DefaultConfig(name)
	cfg.Port = port
	cfg.Introducer = introducer
	cfg.TGossip = 50 * time.Millisecond
	cfg.TFail = 5 * time.Second
	cfg.TRemove = 5 * time.Second
	return cfg
}

func launch(t *testing.T, ctx context.Context, cfg *Config) *Node {
	t.Helper()

	n, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, n.Start())
	require.True(t, n.InitNode())
	require.True(t, n.IntroduceSelfToGroup())
	n.Launch(ctx)
	t.Cleanup(func() {
		n.Shutdown()
		n.Wait()
	})
	return n
}

// The receive loop polls the socket back to back; heartbeats must still
// advance once per gossip period when both share a single CPU.
func TestNode_HeartbeatsOnOneCPU(t *testing.T) {
	prev := runtime.GOMAXPROCS(1)
	defer runtime.GOMAXPROCS(prev)

	base := freeBasePort(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intro := launch(t, ctx, localConfig("process-1", base, ""))
	peer := launch(t, ctx, localConfig("process-2", base+1, intro.config.GetAddress()))

	const ticks = 20
	time.Sleep(ticks * 50 * time.Millisecond)

	introStatus, peerStatus := intro.Status(), peer.Status()
	assert.GreaterOrEqual(t, introStatus.Heartbeat, int64(ticks/2))
	assert.GreaterOrEqual(t, peerStatus.Heartbeat, int64(ticks/2))
	assert.True(t, introStatus.HasMember(peer.EndPoint()))
	assert.True(t, peerStatus.HasMember(intro.EndPoint()))
}
