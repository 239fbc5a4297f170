package consensus

// Endpoints holds the channel strings a member advertises for each role.
type Endpoints struct {
	Consensus string
	Log       string
	Ingress   string
	Catchup   string
	Archive   string
}

// ClusterMember is one node of the cluster, active or passive.
type ClusterMember struct {
	Id                         int32
	Endpoints                  Endpoints
	LogPosition                int64
	TimeOfLastAppendPositionNs int64
	CatchupReplaySessionId     int64
	IsLeader                   bool
	IsPassive                  bool
	// RemovalPosition is the commit position past which this member should
	// be dropped from the table; -1 while no removal is pending.
	RemovalPosition int64
}

const removalPositionNone = -1

// NewClusterMember builds an active member with no removal pending.
func NewClusterMember(id int32, endpoints Endpoints) *ClusterMember {
	return &ClusterMember{Id: id, Endpoints: endpoints, RemovalPosition: removalPositionNone}
}

// HasRemovalPending reports whether a MembershipChange{QUIT} is waiting to
// take effect once the commit index passes RemovalPosition.
func (m *ClusterMember) HasRemovalPending() bool { return m.RemovalPosition != removalPositionNone }

// MemberTable owns the active and passive member sets for one node's view of
// the cluster ("active" vs "passive", quorum over active).
type MemberTable struct {
	memberId int32
	active   map[int32]*ClusterMember
	passive  map[int32]*ClusterMember
}

// NewMemberTable builds a table seeded with the active member set found in
// configuration or a recovered snapshot.
func NewMemberTable(memberId int32, active []*ClusterMember) *MemberTable {
	t := &MemberTable{
		memberId: memberId,
		active:   make(map[int32]*ClusterMember, len(active)),
		passive:  make(map[int32]*ClusterMember),
	}
	for _, m := range active {
		t.active[m.Id] = m
	}
	return t
}

// Self returns this node's own entry, or nil if it has been removed.
func (t *MemberTable) Self() *ClusterMember { return t.active[t.memberId] }

// ActiveMembers returns the active set. Callers must not retain across ticks.
func (t *MemberTable) ActiveMembers() map[int32]*ClusterMember { return t.active }

// PassiveMembers returns the passive set.
func (t *MemberTable) PassiveMembers() map[int32]*ClusterMember { return t.passive }

// Find looks a member up in either set.
func (t *MemberTable) Find(id int32) (*ClusterMember, bool) {
	if m, ok := t.active[id]; ok {
		return m, true
	}
	m, ok := t.passive[id]
	return m, ok
}

// AddPassive admits a new passive member, per a received AddPassiveMember
// message.
func (t *MemberTable) AddPassive(m *ClusterMember) {
	m.IsPassive = true
	m.RemovalPosition = removalPositionNone
	t.passive[m.Id] = m
}

// Promote moves a passive member into the active set once its
// MembershipChange{JOIN} has committed.
func (t *MemberTable) Promote(id int32) {
	m, ok := t.passive[id]
	if !ok {
		return
	}
	delete(t.passive, id)
	m.IsPassive = false
	t.active[id] = m
}

// ScheduleRemoval marks an active member to be dropped once the commit
// position passes removalPosition: members die on a committed
// MembershipChange{QUIT} whose removalPosition has passed the commit index.
func (t *MemberTable) ScheduleRemoval(id int32, removalPosition int64) {
	if m, ok := t.active[id]; ok {
		m.RemovalPosition = removalPosition
	}
}

// ApplyPendingRemovals drops every active member whose scheduled removal has
// passed commitPosition. Returns the ids removed.
func (t *MemberTable) ApplyPendingRemovals(commitPosition int64) []int32 {
	var removed []int32
	for id, m := range t.active {
		if m.HasRemovalPending() && commitPosition >= m.RemovalPosition {
			delete(t.active, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// QuorumThreshold is ⌊N/2⌋+1 of the active set
func (t *MemberTable) QuorumThreshold() int {
	return len(t.active)/2 + 1
}

// QuorumPosition returns the highest logPosition held by at least a quorum
// of the active set — the position floor used to advance commitPosition.
func (t *MemberTable) QuorumPosition() int64 {
	n := len(t.active)
	if n == 0 {
		return 0
	}
	positions := make([]int64, 0, n)
	for _, m := range t.active {
		positions = append(positions, m.LogPosition)
	}
	insertionSortDesc(positions)
	threshold := t.QuorumThreshold()
	if threshold > len(positions) {
		return 0
	}
	return positions[threshold-1]
}

// UpdateLogPosition records a member's reported log position and the time
// it was reported, monotonically: called on self as the local append
// position advances, and on a peer when its AppendPosition report arrives.
func (t *MemberTable) UpdateLogPosition(id int32, position, nowNs int64) {
	m, ok := t.Find(id)
	if !ok {
		return
	}
	if position > m.LogPosition {
		m.LogPosition = position
	}
	m.TimeOfLastAppendPositionNs = nowNs
}

// CaughtUpActiveCount counts active members (including self, treated as
// always caught up) whose last append-position report is within
// heartbeatTimeout of nowNs — used to detect a leader falling below quorum.
func (t *MemberTable) CaughtUpActiveCount(nowNs, heartbeatTimeoutNs int64) int {
	count := 0
	for _, m := range t.active {
		if m.Id == t.memberId {
			count++
			continue
		}
		if nowNs-m.TimeOfLastAppendPositionNs <= heartbeatTimeoutNs {
			count++
		}
	}
	return count
}

func insertionSortDesc(s []int64) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] < v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}
