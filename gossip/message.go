package gossip

import "fmt"

// MessageType tags a MembershipMessage
type MessageType int32

const (
	JoinRequest MessageType = iota + 1
	JoinReply
	GossipHeartbeat
)

func (t MessageType) String() string {
	switch t {
	case JoinRequest:
		return "JOINREQ"
	case JoinReply:
		return "JOINREP"
	case GossipHeartbeat:
		return "GOSSIP_HEARTBEAT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Valid reports whether t is one of the known message types
func (t MessageType) Valid() bool {
	return t >= JoinRequest && t <= GossipHeartbeat
}

// MembershipMessage is the payload of every datagram. Members is the sender's
// membership snapshot; JOINREQ carries none. Treat values as immutable once
// built.
type MembershipMessage struct {
	Type      MessageType
	Sender    EndPoint
	Heartbeat int64
	Members   []MemberListEntry
}

// NewJoinRequest asks the introducer to admit sender
func NewJoinRequest(sender EndPoint, heartbeat int64) *MembershipMessage {
	return &MembershipMessage{Type: JoinRequest, Sender: sender, Heartbeat: heartbeat}
}

// NewJoinReply answers a join request with the introducer's view
func NewJoinReply(sender EndPoint, heartbeat int64, members []MemberListEntry) *MembershipMessage {
	return &MembershipMessage{Type: JoinReply, Sender: sender, Heartbeat: heartbeat, Members: members}
}

// NewGossipHeartbeat carries the sender's heartbeat and view to a gossip target
func NewGossipHeartbeat(sender EndPoint, heartbeat int64, members []MemberListEntry) *MembershipMessage {
	return &MembershipMessage{Type: GossipHeartbeat, Sender: sender, Heartbeat: heartbeat, Members: members}
}

// entriesWithSender returns the snapshot with an entry for the sender itself.
// Partial views may omit the sender, so one is synthesized from the header;
// a stale sender entry is raised to the header heartbeat.
func (m *MembershipMessage) entriesWithSender() []MemberListEntry {
	out := make([]MemberListEntry, 0, len(m.Members)+1)
	found := false
	for _, e := range m.Members {
		if e.EndPoint == m.Sender {
			found = true
			if e.Heartbeat < m.Heartbeat {
				e.Heartbeat = m.Heartbeat
			}
		}
		out = append(out, e)
	}
	if !found {
		out = append(out, MemberListEntry{EndPoint: m.Sender, Heartbeat: m.Heartbeat})
	}
	return out
}
