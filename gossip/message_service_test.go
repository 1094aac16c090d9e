package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gossipfd/transport"
)

func startService(t *testing.T, opts MessageServiceOptions) *MessageService {
	t.Helper()

	s, err := NewMessageService(ep(freePort(t)), opts)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

// pollUntil receives on s until it has returned n messages or the wait runs out
func pollUntil(t *testing.T, s *MessageService, n int) []*MembershipMessage {
	t.Helper()

	var got []*MembershipMessage
	require.Eventually(t, func() bool {
		_ = s.Receive()
		got = append(got, s.PollInbound()...)
		return len(got) >= n
	}, 2*time.Second, 10*time.Millisecond)
	return got
}

func TestMessageService_SendAndPoll(t *testing.T) {
	a := startService(t, MessageServiceOptions{})
	b := startService(t, MessageServiceOptions{})

	msg := NewGossipHeartbeat(a.Self(), 3, []MemberListEntry{
		{EndPoint: a.Self(), Heartbeat: 3, Timestamp: 10},
		{EndPoint: b.Self(), Heartbeat: 1, Timestamp: 20},
	})
	require.NoError(t, a.SendMessage(b.Self(), msg))
	require.NoError(t, a.SendMessage(b.Self(), NewJoinRequest(a.Self(), 0)))

	got := pollUntil(t, b, 2)
	require.Len(t, got, 2)
	assert.Equal(t, GossipHeartbeat, got[0].Type)
	assert.Equal(t, a.Self(), got[0].Sender)
	assert.Equal(t, msg.Members, got[0].Members)
	assert.Equal(t, JoinRequest, got[1].Type)
}

func TestMessageService_TruncatesLargeSnapshots(t *testing.T) {
	a := startService(t, MessageServiceOptions{MaxPayloadSize: 512})
	b := startService(t, MessageServiceOptions{MaxPayloadSize: 512})

	members := []MemberListEntry{{EndPoint: a.Self(), Heartbeat: 1}}
	for i := 0; i < 100; i++ {
		members = append(members, MemberListEntry{EndPoint: ep(20000 + i), Heartbeat: int64(i)})
	}
	require.NoError(t, a.SendMessage(b.Self(), NewGossipHeartbeat(a.Self(), 1, members)))

	got := pollUntil(t, b, 1)
	assert.Less(t, len(got[0].Members), len(members))
	assert.Equal(t, a.Self(), got[0].Members[0].EndPoint)
}

func TestMessageService_Muted(t *testing.T) {
	a := startService(t, MessageServiceOptions{})
	b := startService(t, MessageServiceOptions{})

	b.SetMuted(true)
	assert.True(t, b.Muted())
	require.NoError(t, a.SendMessage(b.Self(), NewJoinRequest(a.Self(), 0)))
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Receive())
		assert.Empty(t, b.PollInbound(), "a muted process hears nothing")
	}

	// a muted process also says nothing, without reporting an error
	require.NoError(t, b.SendMessage(a.Self(), NewJoinRequest(b.Self(), 0)))
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Receive())
		assert.Empty(t, a.PollInbound())
	}
}

func TestMessageService_StoppedReportsClosed(t *testing.T) {
	a := startService(t, MessageServiceOptions{})
	b := startService(t, MessageServiceOptions{})

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())

	err := a.SendMessage(b.Self(), NewJoinRequest(a.Self(), 0))
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, a.Receive(), transport.ErrClosed)
	assert.Empty(t, a.PollInbound())
}

func TestMessageService_PollInboundNeverReadsSocket(t *testing.T) {
	a := startService(t, MessageServiceOptions{PollTimeout: 2 * time.Second})
	b := startService(t, MessageServiceOptions{PollTimeout: 2 * time.Second})

	start := time.Now()
	assert.Empty(t, b.PollInbound())
	assert.Less(t, time.Since(start), 500*time.Millisecond, "PollInbound must not wait on the socket")

	// nothing is delivered until a reader calls Receive
	require.NoError(t, a.SendMessage(b.Self(), NewJoinRequest(a.Self(), 0)))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, b.PollInbound())

	require.NoError(t, b.Receive())
	got := b.PollInbound()
	require.Len(t, got, 1)
	assert.Equal(t, JoinRequest, got[0].Type)
}

func TestMessageService_BindConflict(t *testing.T) {
	a := startService(t, MessageServiceOptions{})

	dup, err := NewMessageService(a.Self(), MessageServiceOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, dup.Start(), transport.ErrBind)
}

func TestNewMessageService_Validation(t *testing.T) {
	_, err := NewMessageService(EndPoint{}, MessageServiceOptions{})
	assert.ErrorIs(t, err, ErrInvalidEndPoint)

	_, err = NewMessageService(ep(5000), MessageServiceOptions{DropRate: 1})
	assert.Error(t, err)
}
