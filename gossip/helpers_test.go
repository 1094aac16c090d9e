package gossip

import (
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ep(port int) EndPoint {
	return NewEndPoint("127.0.0.1", port)
}

type sentMessage struct {
	to  EndPoint
	msg *MembershipMessage
}

// fakeMessenger records outbound messages and serves queued inbound ones
type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	inbound []*MembershipMessage
	stops   int
	sendErr error
}

func (f *fakeMessenger) SendMessage(to EndPoint, msg *MembershipMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{to: to, msg: msg})
	return nil
}

func (f *fakeMessenger) PollInbound() []*MembershipMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.inbound
	f.inbound = nil
	return out
}

func (f *fakeMessenger) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeMessenger) deliver(msgs ...*MembershipMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, msgs...)
}

// takeSent returns and forgets everything sent so far
func (f *fakeMessenger) takeSent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestDetector returns an initialized detector for self on a fake network
func newTestDetector(t *testing.T, self, introducer EndPoint, mutate func(*Config)) (*FailureDetector, *fakeMessenger, *fakeClock) {
	t.Helper()

	cfg := DefaultConfig(self, introducer)
	if mutate != nil {
		mutate(&cfg)
	}
	msgs := &fakeMessenger{}
	clock := newFakeClock()

	d, err := NewFailureDetector(cfg, msgs, WithClock(clock.now), WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	require.NoError(t, d.InitNode())
	return d, msgs, clock
}

// freePort finds a loopback UDP port that is currently unused
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}
