package consensus

import "github.com/nodeforge/consensus/wire"

// encodeCanvassPosition, encodeRequestVote, and encodeNewLeadershipTerm wrap
// the wire package's SBE-shaped marshalers so Election never touches buffer
// layout directly.

func encodeCanvassPosition(logLeadershipTermId, logPosition, leadershipTermId int64, followerMemberId, protocolVersion int32) []byte {
	m := &wire.CanvassPosition{
		LogLeadershipTermId: logLeadershipTermId,
		LogPosition:         logPosition,
		LeadershipTermId:    leadershipTermId,
		FollowerMemberId:    followerMemberId,
		ProtocolVersion:     protocolVersion,
	}
	return m.Marshal()
}

func encodeRequestVote(logLeadershipTermId, logPosition, candidateTermId int64, candidateId, protocolVersion int32) []byte {
	m := &wire.RequestVote{
		LogLeadershipTermId: logLeadershipTermId,
		LogPosition:         logPosition,
		CandidateTermId:     candidateTermId,
		CandidateId:         candidateId,
		ProtocolVersion:     protocolVersion,
	}
	return m.Marshal()
}

func encodeVote(candidateTermId, logLeadershipTermId, logPosition int64, candidateMemberId, followerMemberId int32, granted bool) []byte {
	m := &wire.Vote{
		CandidateTermId:     candidateTermId,
		LogLeadershipTermId: logLeadershipTermId,
		LogPosition:         logPosition,
		CandidateMemberId:   candidateMemberId,
		FollowerMemberId:    followerMemberId,
		Granted:             granted,
	}
	return m.Marshal()
}

func encodeNewLeadershipTerm(nextLeadershipTermId, currentLeadershipTermId, nextTermBaseLogPosition, nextLogPosition, leaderRecordingId, timestamp int64, leaderMemberId, logSessionId, appVersion int32, isStartup bool) []byte {
	m := &wire.NewLeadershipTerm{
		NextLeadershipTermId:    nextLeadershipTermId,
		NextTermBaseLogPosition: nextTermBaseLogPosition,
		NextLogPosition:         nextLogPosition,
		CurrentLeadershipTermId: currentLeadershipTermId,
		LeaderRecordingId:       leaderRecordingId,
		Timestamp:               timestamp,
		LeaderMemberId:          leaderMemberId,
		LogSessionId:            logSessionId,
		AppVersion:              appVersion,
		IsStartup:               isStartup,
	}
	return m.Marshal()
}

// EncodeControlToggle builds the frame an operator tool sends to request a
// suspend/resume/snapshot/shutdown/abort action.
func EncodeControlToggle(toggle ControlToggle) []byte {
	m := &wire.ControlToggle{Toggle: int32(toggle)}
	return m.Marshal()
}

// DecodeConsensusFrame dispatches an inbound election/consensus-control
// frame to the matching wire type, for the agent's consensus-control poll
// to feed into Election's Handle* methods.
func DecodeConsensusFrame(frame []byte) (wire.TemplateId, interface{}, error) {
	return wire.Decode(frame)
}
