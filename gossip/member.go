package gossip

import (
	"cmp"
	"slices"
	"sync"
)

// MemberListEntry is what a process knows about one member.
// Timestamp is the local wall clock (unix milliseconds) of the last local
// update; it is never taken from a remote message.
type MemberListEntry struct {
	EndPoint  EndPoint
	Heartbeat int64
	Timestamp int64
}

// Member is the local state of a process: its flags, its own heartbeat and
// its partial view of the group. One mutex guards the whole structure; the
// view is small (bounded by KLIST) so finer locking buys nothing.
type Member struct {
	mu        sync.RWMutex
	endPoint  EndPoint
	inited    bool
	inGroup   bool
	failed    bool
	heartbeat int64
	list      map[EndPoint]*MemberListEntry
}

// NewMember creates the state of the process at self. Call Init before use.
func NewMember(self EndPoint) *Member {
	return &Member{
		endPoint: self,
		list:     make(map[EndPoint]*MemberListEntry),
	}
}

// EndPoint returns the process's own endpoint
func (m *Member) EndPoint() EndPoint {
	return m.endPoint
}

// Init resets the heartbeat and seeds the list with the self entry
func (m *Member) Init(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inited = true
	m.heartbeat = 0
	m.list = map[EndPoint]*MemberListEntry{
		m.endPoint: {EndPoint: m.endPoint, Heartbeat: 0, Timestamp: now},
	}
}

func (m *Member) Inited() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inited
}

func (m *Member) InGroup() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inGroup
}

// SetInGroup updates the group flag and reports whether it changed
func (m *Member) SetInGroup(inGroup bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.inGroup != inGroup
	m.inGroup = inGroup
	return changed
}

func (m *Member) Failed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failed
}

func (m *Member) SetFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = true
}

func (m *Member) Heartbeat() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heartbeat
}

// IncrementHeartbeat bumps the own heartbeat and refreshes the self entry
func (m *Member) IncrementHeartbeat(now int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.heartbeat++
	self, ok := m.list[m.endPoint]
	if !ok {
		self = &MemberListEntry{EndPoint: m.endPoint}
		m.list[m.endPoint] = self
	}
	self.Heartbeat = m.heartbeat
	self.Timestamp = now
	return m.heartbeat
}

// Get returns a copy of the entry for ep
func (m *Member) Get(ep EndPoint) (MemberListEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.list[ep]
	if !ok {
		return MemberListEntry{}, false
	}
	return *e, true
}

// Contains reports whether ep is in the list
func (m *Member) Contains(ep EndPoint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.list[ep]
	return ok
}

// Len returns the size of the list, self included
func (m *Member) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.list)
}

// Snapshot returns copies of every entry, self first, the rest ordered by endpoint
func (m *Member) Snapshot() []MemberListEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]MemberListEntry, 0, len(m.list))
	for _, e := range m.list {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b MemberListEntry) int {
		switch {
		case a.EndPoint == m.endPoint:
			return -1
		case b.EndPoint == m.endPoint:
			return 1
		}
		return compareEndPoints(a.EndPoint, b.EndPoint)
	})
	return out
}

// Peers returns every endpoint in the list except self, ordered by endpoint
func (m *Member) Peers() []EndPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peersLocked()
}

func (m *Member) peersLocked() []EndPoint {
	peers := make([]EndPoint, 0, len(m.list))
	for ep := range m.list {
		if ep != m.endPoint {
			peers = append(peers, ep)
		}
	}
	slices.SortFunc(peers, compareEndPoints)
	return peers
}

// Upsert stores e, keeping at most limit peers besides self. An existing entry
// keeps the higher of the two heartbeats and takes e's timestamp. Inserting a
// new peer into a full view first evicts the peer at index pick(n) of the
// n current peers; the evicted endpoint is returned with ok set.
func (m *Member) Upsert(e MemberListEntry, limit int, pick func(n int) int) (evicted EndPoint, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, exists := m.list[e.EndPoint]; exists {
		cur.Heartbeat = max(cur.Heartbeat, e.Heartbeat)
		cur.Timestamp = e.Timestamp
		return EndPoint{}, false
	}

	if e.EndPoint != m.endPoint {
		if peers := m.peersLocked(); len(peers) >= limit && len(peers) > 0 {
			evicted = peers[pick(len(peers))]
			delete(m.list, evicted)
			ok = true
		}
	}

	entry := e
	m.list[e.EndPoint] = &entry
	return evicted, ok
}

// UpdateIfNewer raises the heartbeat of a known entry and stamps it with now,
// but only when heartbeat is strictly greater than the stored one.
func (m *Member) UpdateIfNewer(ep EndPoint, heartbeat, now int64) (updated, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.list[ep]
	if !ok {
		return false, false
	}
	if heartbeat <= cur.Heartbeat {
		return false, true
	}
	cur.Heartbeat = heartbeat
	cur.Timestamp = now
	return true, true
}

// Remove deletes ep from the list. The self entry cannot be removed.
func (m *Member) Remove(ep EndPoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ep == m.endPoint {
		return false
	}
	if _, ok := m.list[ep]; !ok {
		return false
	}
	delete(m.list, ep)
	return true
}

// Expired returns the peers whose last update is older than deadline
func (m *Member) Expired(deadline int64) []EndPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []EndPoint
	for ep, e := range m.list {
		if ep != m.endPoint && deadline > e.Timestamp {
			out = append(out, ep)
		}
	}
	slices.SortFunc(out, compareEndPoints)
	return out
}

func compareEndPoints(a, b EndPoint) int {
	if c := cmp.Compare(a.Host, b.Host); c != 0 {
		return c
	}
	return cmp.Compare(a.Port, b.Port)
}
