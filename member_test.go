package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeMemberTable() *MemberTable {
	return NewMemberTable(1, []*ClusterMember{
		NewClusterMember(1, Endpoints{Consensus: "a"}),
		NewClusterMember(2, Endpoints{Consensus: "b"}),
		NewClusterMember(3, Endpoints{Consensus: "c"}),
	})
}

func TestQuorumThresholdIsMajority(t *testing.T) {
	members := threeMemberTable()
	assert.Equal(t, 2, members.QuorumThreshold())

	members.AddPassive(NewClusterMember(4, Endpoints{Consensus: "d"}))
	assert.Equal(t, 2, members.QuorumThreshold(), "passive members don't count toward quorum")
}

func TestQuorumPositionIsMedianOfActiveLogPositions(t *testing.T) {
	members := threeMemberTable()
	active := members.ActiveMembers()
	active[1].LogPosition = 100
	active[2].LogPosition = 80
	active[3].LogPosition = 60

	assert.Equal(t, int64(80), members.QuorumPosition())
}

func TestQuorumPositionZeroBelowQuorum(t *testing.T) {
	members := NewMemberTable(1, []*ClusterMember{NewClusterMember(1, Endpoints{})})
	members.AddPassive(NewClusterMember(2, Endpoints{}))
	assert.Equal(t, int64(0), members.QuorumPosition(), "passive members never contribute to quorum position")
}

func TestPromoteMovesPassiveToActive(t *testing.T) {
	members := threeMemberTable()
	members.AddPassive(NewClusterMember(4, Endpoints{Consensus: "d"}))
	_, isPassive := members.Find(4)
	require.True(t, isPassive)

	members.Promote(4)
	m, ok := members.Find(4)
	require.True(t, ok)
	assert.False(t, m.IsPassive)
	_, stillPassive := members.PassiveMembers()[4]
	assert.False(t, stillPassive)
}

func TestScheduleRemovalDropsOncePastCommitPosition(t *testing.T) {
	members := threeMemberTable()
	members.ScheduleRemoval(3, 50)

	assert.Empty(t, members.ApplyPendingRemovals(49))
	removed := members.ApplyPendingRemovals(50)
	assert.Equal(t, []int32{3}, removed)
	_, ok := members.Find(3)
	assert.False(t, ok)
}

func TestCaughtUpActiveCountTreatsSelfAsCaughtUp(t *testing.T) {
	members := threeMemberTable()
	active := members.ActiveMembers()
	active[2].TimeOfLastAppendPositionNs = 0
	active[3].TimeOfLastAppendPositionNs = 1000

	count := members.CaughtUpActiveCount(1000, 500)
	assert.Equal(t, 2, count, "self plus member 3 are caught up, member 2's report is too stale")
}
