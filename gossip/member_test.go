package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pickFirst(int) int { return 0 }

func TestMember_Upsert(t *testing.T) {
	m := NewMember(ep(5000))
	m.Init(100)

	_, evicted := m.Upsert(MemberListEntry{EndPoint: ep(5001), Heartbeat: 4, Timestamp: 200}, 2, pickFirst)
	assert.False(t, evicted)

	// an existing entry keeps the higher heartbeat and takes the new timestamp
	_, evicted = m.Upsert(MemberListEntry{EndPoint: ep(5001), Heartbeat: 2, Timestamp: 300}, 2, pickFirst)
	assert.False(t, evicted)
	got, ok := m.Get(ep(5001))
	require.True(t, ok)
	assert.Equal(t, int64(4), got.Heartbeat)
	assert.Equal(t, int64(300), got.Timestamp)

	m.Upsert(MemberListEntry{EndPoint: ep(5002), Timestamp: 300}, 2, pickFirst)
	assert.Equal(t, 3, m.Len())

	gone, evicted := m.Upsert(MemberListEntry{EndPoint: ep(5003), Timestamp: 400}, 2, pickFirst)
	assert.True(t, evicted)
	assert.Equal(t, ep(5001), gone, "pick indexes the peers in endpoint order")
	assert.Equal(t, []EndPoint{ep(5002), ep(5003)}, m.Peers())
	assert.True(t, m.Contains(ep(5000)))
}

func TestMember_SelfIsNeverEvictedOrRemoved(t *testing.T) {
	m := NewMember(ep(5000))
	m.Init(0)

	for i := 1; i <= 20; i++ {
		m.Upsert(MemberListEntry{EndPoint: ep(5000 + i)}, 1, pickFirst)
		require.True(t, m.Contains(ep(5000)))
		require.LessOrEqual(t, m.Len(), 2)
	}

	assert.False(t, m.Remove(ep(5000)))
	assert.True(t, m.Contains(ep(5000)))
	assert.True(t, m.Remove(ep(5020)))
	assert.False(t, m.Remove(ep(5020)))
}

func TestMember_UpdateIfNewer(t *testing.T) {
	m := NewMember(ep(5000))
	m.Init(0)
	m.Upsert(MemberListEntry{EndPoint: ep(5001), Heartbeat: 5, Timestamp: 10}, 4, pickFirst)

	tests := []struct {
		name        string
		ep          EndPoint
		heartbeat   int64
		wantUpdated bool
		wantKnown   bool
		wantHB      int64
	}{
		{"unknown", ep(5009), 1, false, false, 0},
		{"older", ep(5001), 4, false, true, 5},
		{"equal", ep(5001), 5, false, true, 5},
		{"newer", ep(5001), 6, true, true, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, known := m.UpdateIfNewer(tt.ep, tt.heartbeat, 50)
			assert.Equal(t, tt.wantUpdated, updated)
			assert.Equal(t, tt.wantKnown, known)
			if known {
				got, _ := m.Get(tt.ep)
				assert.Equal(t, tt.wantHB, got.Heartbeat)
			}
		})
	}
}

func TestMember_ExpiredAndSnapshot(t *testing.T) {
	m := NewMember(ep(5005))
	m.Init(0)
	m.Upsert(MemberListEntry{EndPoint: ep(5003), Timestamp: 100}, 4, pickFirst)
	m.Upsert(MemberListEntry{EndPoint: ep(5001), Timestamp: 200}, 4, pickFirst)
	m.Upsert(MemberListEntry{EndPoint: ep(5009), Timestamp: 300}, 4, pickFirst)

	assert.Equal(t, []EndPoint{ep(5003)}, m.Expired(200))
	assert.Equal(t, []EndPoint{ep(5001), ep(5003)}, m.Expired(201))
	assert.Empty(t, m.Expired(100), "self is never reported, however old")

	assert.Equal(t, []EndPoint{ep(5005), ep(5001), ep(5003), ep(5009)}, endpointsOf(m.Snapshot()))
}

func TestMember_IncrementHeartbeat(t *testing.T) {
	m := NewMember(ep(5000))
	m.Init(0)

	assert.Equal(t, int64(1), m.IncrementHeartbeat(10))
	assert.Equal(t, int64(2), m.IncrementHeartbeat(20))

	self, ok := m.Get(ep(5000))
	require.True(t, ok)
	assert.Equal(t, MemberListEntry{EndPoint: ep(5000), Heartbeat: 2, Timestamp: 20}, self)
}

func TestFailedMembers(t *testing.T) {
	f := NewFailedMembers()

	assert.True(t, f.Add(ep(5002)))
	assert.True(t, f.Add(ep(5001)))
	assert.False(t, f.Add(ep(5002)))

	assert.True(t, f.Contains(ep(5001)))
	assert.False(t, f.Contains(ep(5003)))
	assert.Equal(t, []EndPoint{ep(5002), ep(5001)}, f.List())
	assert.Equal(t, 2, f.Len())

	f.Clear()
	assert.Zero(t, f.Len())
	assert.False(t, f.Contains(ep(5001)))
}

func TestParseEndPoint(t *testing.T) {
	got, err := ParseEndPoint("127.0.0.1:5000")
	require.NoError(t, err)
	assert.Equal(t, ep(5000), got)
	assert.Equal(t, "127.0.0.1:5000", got.String())

	for _, bad := range []string{"", "127.0.0.1", "127.0.0.1:x", ":5000", "127.0.0.1:0", "127.0.0.1:70000"} {
		_, err := ParseEndPoint(bad)
		assert.ErrorIs(t, err, ErrInvalidEndPoint, bad)
	}
}
