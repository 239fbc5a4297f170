package wire

import "encoding/binary"

// AppendPositionFlag enumerates the flags carried on an AppendPosition
// message.
type AppendPositionFlag uint8

const (
	AppendPositionNone    AppendPositionFlag = 0
	AppendPositionCatchup AppendPositionFlag = 1
)

// MembershipChangeType distinguishes a member JOIN from a QUIT in
// ClusterMembersChange.
type MembershipChangeType int32

const (
	MembershipJoin MembershipChangeType = iota
	MembershipQuit
)

// CanvassPosition broadcasts a candidate's view of its own log during the
// election canvass phase.
type CanvassPosition struct {
	LogLeadershipTermId int64
	LogPosition         int64
	LeadershipTermId    int64
	FollowerMemberId    int32
	ProtocolVersion     int32
}

func (m *CanvassPosition) Marshal() []byte {
	body := make([]byte, HeaderLength+32)
	putHeader(body, Header{SchemaId, TemplateCanvassPosition, 32, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LogLeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	binary.LittleEndian.PutUint64(b[16:24], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint32(b[24:28], uint32(m.FollowerMemberId))
	binary.LittleEndian.PutUint32(b[28:32], uint32(m.ProtocolVersion))
	return body
}

func DecodeCanvassPosition(b []byte) (*CanvassPosition, error) {
	if len(b) < 32 {
		return nil, ErrShortBuffer
	}
	return &CanvassPosition{
		LogLeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:         int64(binary.LittleEndian.Uint64(b[8:16])),
		LeadershipTermId:    int64(binary.LittleEndian.Uint64(b[16:24])),
		FollowerMemberId:    int32(binary.LittleEndian.Uint32(b[24:28])),
		ProtocolVersion:     int32(binary.LittleEndian.Uint32(b[28:32])),
	}, nil
}

// RequestVote is a candidate's bid for votes in candidateTermId.
type RequestVote struct {
	LogLeadershipTermId int64
	LogPosition         int64
	CandidateTermId     int64
	CandidateId         int32
	ProtocolVersion     int32
}

func (m *RequestVote) Marshal() []byte {
	body := make([]byte, HeaderLength+32)
	putHeader(body, Header{SchemaId, TemplateRequestVote, 32, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LogLeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	binary.LittleEndian.PutUint64(b[16:24], uint64(m.CandidateTermId))
	binary.LittleEndian.PutUint32(b[24:28], uint32(m.CandidateId))
	binary.LittleEndian.PutUint32(b[28:32], uint32(m.ProtocolVersion))
	return body
}

func DecodeRequestVote(b []byte) (*RequestVote, error) {
	if len(b) < 32 {
		return nil, ErrShortBuffer
	}
	return &RequestVote{
		LogLeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:         int64(binary.LittleEndian.Uint64(b[8:16])),
		CandidateTermId:     int64(binary.LittleEndian.Uint64(b[16:24])),
		CandidateId:         int32(binary.LittleEndian.Uint32(b[24:28])),
		ProtocolVersion:     int32(binary.LittleEndian.Uint32(b[28:32])),
	}, nil
}

// Vote is a follower's ballot response to a RequestVote.
type Vote struct {
	CandidateTermId     int64
	LogLeadershipTermId int64
	LogPosition         int64
	CandidateMemberId   int32
	FollowerMemberId    int32
	Granted             bool
}

func (m *Vote) Marshal() []byte {
	body := make([]byte, HeaderLength+33)
	putHeader(body, Header{SchemaId, TemplateVote, 33, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.CandidateTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogLeadershipTermId))
	binary.LittleEndian.PutUint64(b[16:24], uint64(m.LogPosition))
	binary.LittleEndian.PutUint32(b[24:28], uint32(m.CandidateMemberId))
	binary.LittleEndian.PutUint32(b[28:32], uint32(m.FollowerMemberId))
	b[32] = boolByte(m.Granted)
	return body
}

func DecodeVote(b []byte) (*Vote, error) {
	if len(b) < 33 {
		return nil, ErrShortBuffer
	}
	return &Vote{
		CandidateTermId:     int64(binary.LittleEndian.Uint64(b[0:8])),
		LogLeadershipTermId: int64(binary.LittleEndian.Uint64(b[8:16])),
		LogPosition:         int64(binary.LittleEndian.Uint64(b[16:24])),
		CandidateMemberId:   int32(binary.LittleEndian.Uint32(b[24:28])),
		FollowerMemberId:    int32(binary.LittleEndian.Uint32(b[28:32])),
		Granted:             b[32] != 0,
	}, nil
}

// NewLeadershipTerm is appended by a winning candidate and broadcast to
// followers to open the new term.
type NewLeadershipTerm struct {
	NextLeadershipTermId    int64
	NextTermBaseLogPosition int64
	NextLogPosition         int64
	CurrentLeadershipTermId int64
	LeaderRecordingId       int64
	Timestamp               int64
	LeaderMemberId          int32
	LogSessionId            int32
	AppVersion              int32
	IsStartup               bool
}

func (m *NewLeadershipTerm) Marshal() []byte {
	const blockLen = 61
	body := make([]byte, HeaderLength+blockLen)
	putHeader(body, Header{SchemaId, TemplateNewLeadershipTerm, blockLen, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.NextLeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.NextTermBaseLogPosition))
	binary.LittleEndian.PutUint64(b[16:24], uint64(m.NextLogPosition))
	binary.LittleEndian.PutUint64(b[24:32], uint64(m.CurrentLeadershipTermId))
	binary.LittleEndian.PutUint64(b[32:40], uint64(m.LeaderRecordingId))
	binary.LittleEndian.PutUint64(b[40:48], uint64(m.Timestamp))
	binary.LittleEndian.PutUint32(b[48:52], uint32(m.LeaderMemberId))
	binary.LittleEndian.PutUint32(b[52:56], uint32(m.LogSessionId))
	b[56] = boolByte(m.IsStartup)
	binary.LittleEndian.PutUint32(b[57:61], uint32(m.AppVersion))
	return body
}

func DecodeNewLeadershipTerm(b []byte) (*NewLeadershipTerm, error) {
	if len(b) < 61 {
		return nil, ErrShortBuffer
	}
	return &NewLeadershipTerm{
		NextLeadershipTermId:    int64(binary.LittleEndian.Uint64(b[0:8])),
		NextTermBaseLogPosition: int64(binary.LittleEndian.Uint64(b[8:16])),
		NextLogPosition:         int64(binary.LittleEndian.Uint64(b[16:24])),
		CurrentLeadershipTermId: int64(binary.LittleEndian.Uint64(b[24:32])),
		LeaderRecordingId:       int64(binary.LittleEndian.Uint64(b[32:40])),
		Timestamp:               int64(binary.LittleEndian.Uint64(b[40:48])),
		LeaderMemberId:          int32(binary.LittleEndian.Uint32(b[48:52])),
		LogSessionId:            int32(binary.LittleEndian.Uint32(b[52:56])),
		IsStartup:               b[56] != 0,
		AppVersion:              int32(binary.LittleEndian.Uint32(b[57:61])),
	}, nil
}

// AppendPosition is sent from a follower to the leader to report progress.
type AppendPosition struct {
	LeadershipTermId int64
	LogPosition      int64
	FollowerMemberId int32
	Flags            AppendPositionFlag
}

func (m *AppendPosition) Marshal() []byte {
	body := make([]byte, HeaderLength+21)
	putHeader(body, Header{SchemaId, TemplateAppendPosition, 21, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	binary.LittleEndian.PutUint32(b[16:20], uint32(m.FollowerMemberId))
	b[20] = byte(m.Flags)
	return body
}

func DecodeAppendPosition(b []byte) (*AppendPosition, error) {
	if len(b) < 21 {
		return nil, ErrShortBuffer
	}
	return &AppendPosition{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:      int64(binary.LittleEndian.Uint64(b[8:16])),
		FollowerMemberId: int32(binary.LittleEndian.Uint32(b[16:20])),
		Flags:            AppendPositionFlag(b[20]),
	}, nil
}

// CommitPosition is broadcast by the leader once the commit index advances.
type CommitPosition struct {
	LeadershipTermId int64
	LogPosition      int64
	LeaderMemberId   int32
}

func (m *CommitPosition) Marshal() []byte {
	body := make([]byte, HeaderLength+20)
	putHeader(body, Header{SchemaId, TemplateCommitPosition, 20, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	binary.LittleEndian.PutUint32(b[16:20], uint32(m.LeaderMemberId))
	return body
}

func DecodeCommitPosition(b []byte) (*CommitPosition, error) {
	if len(b) < 20 {
		return nil, ErrShortBuffer
	}
	return &CommitPosition{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:      int64(binary.LittleEndian.Uint64(b[8:16])),
		LeaderMemberId:   int32(binary.LittleEndian.Uint32(b[16:20])),
	}, nil
}

// CatchupPosition tells the leader where a catching-up follower has reached,
// and on what endpoint it can be replayed to.
type CatchupPosition struct {
	LeadershipTermId int64
	LogPosition      int64
	FollowerMemberId int32
	CatchupEndpoint  string
}

func (m *CatchupPosition) Marshal() []byte {
	body := make([]byte, HeaderLength+20)
	putHeader(body, Header{SchemaId, TemplateCatchupPosition, 20, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	binary.LittleEndian.PutUint32(b[16:20], uint32(m.FollowerMemberId))
	putString(&body, m.CatchupEndpoint)
	return body
}

func DecodeCatchupPosition(b []byte) (*CatchupPosition, error) {
	if len(b) < 20 {
		return nil, ErrShortBuffer
	}
	m := &CatchupPosition{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:      int64(binary.LittleEndian.Uint64(b[8:16])),
		FollowerMemberId: int32(binary.LittleEndian.Uint32(b[16:20])),
	}
	ep, _, err := getString(b[20:])
	if err != nil {
		return nil, err
	}
	m.CatchupEndpoint = ep
	return m, nil
}

// StopCatchup tells a follower to abandon its catchup replay and join live.
type StopCatchup struct {
	LeadershipTermId int64
	FollowerMemberId int32
}

func (m *StopCatchup) Marshal() []byte {
	body := make([]byte, HeaderLength+12)
	putHeader(body, Header{SchemaId, TemplateStopCatchup, 12, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint32(b[8:12], uint32(m.FollowerMemberId))
	return body
}

func DecodeStopCatchup(b []byte) (*StopCatchup, error) {
	if len(b) < 12 {
		return nil, ErrShortBuffer
	}
	return &StopCatchup{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		FollowerMemberId: int32(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// AddPassiveMember requests that a new, initially passive member be admitted.
type AddPassiveMember struct {
	CorrelationId int64
	MemberEndpoints string
}

func (m *AddPassiveMember) Marshal() []byte {
	body := make([]byte, HeaderLength+8)
	putHeader(body, Header{SchemaId, TemplateAddPassiveMember, 8, 0})
	binary.LittleEndian.PutUint64(body[HeaderLength:HeaderLength+8], uint64(m.CorrelationId))
	putString(&body, m.MemberEndpoints)
	return body
}

func DecodeAddPassiveMember(b []byte) (*AddPassiveMember, error) {
	if len(b) < 8 {
		return nil, ErrShortBuffer
	}
	m := &AddPassiveMember{CorrelationId: int64(binary.LittleEndian.Uint64(b[0:8]))}
	ep, _, err := getString(b[8:])
	if err != nil {
		return nil, err
	}
	m.MemberEndpoints = ep
	return m, nil
}

// ClusterMembersChange is appended as a ClusterAction replicating a JOIN or
// QUIT membership transition.
type ClusterMembersChange struct {
	LeadershipTermId int64
	ChangeType       MembershipChangeType
	MemberId         int32
	ClusterMembers   string
}

func (m *ClusterMembersChange) Marshal() []byte {
	body := make([]byte, HeaderLength+16)
	putHeader(body, Header{SchemaId, TemplateClusterMembersChange, 16, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint32(b[8:12], uint32(m.ChangeType))
	binary.LittleEndian.PutUint32(b[12:16], uint32(m.MemberId))
	putString(&body, m.ClusterMembers)
	return body
}

func DecodeClusterMembersChange(b []byte) (*ClusterMembersChange, error) {
	if len(b) < 16 {
		return nil, ErrShortBuffer
	}
	m := &ClusterMembersChange{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		ChangeType:       MembershipChangeType(binary.LittleEndian.Uint32(b[8:12])),
		MemberId:         int32(binary.LittleEndian.Uint32(b[12:16])),
	}
	s, _, err := getString(b[16:])
	if err != nil {
		return nil, err
	}
	m.ClusterMembers = s
	return m, nil
}

// RemoveMember requests removal of an active or passive member.
type RemoveMember struct {
	MemberId      int32
	CorrelationId int64
}

func (m *RemoveMember) Marshal() []byte {
	body := make([]byte, HeaderLength+12)
	putHeader(body, Header{SchemaId, TemplateRemoveMember, 12, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.MemberId))
	binary.LittleEndian.PutUint64(b[4:12], uint64(m.CorrelationId))
	return body
}

func DecodeRemoveMember(b []byte) (*RemoveMember, error) {
	if len(b) < 12 {
		return nil, ErrShortBuffer
	}
	return &RemoveMember{
		MemberId:      int32(binary.LittleEndian.Uint32(b[0:4])),
		CorrelationId: int64(binary.LittleEndian.Uint64(b[4:12])),
	}, nil
}

// JoinCluster is sent by a dynamically-joining member to request admission.
type JoinCluster struct {
	MemberId         int32
	LeadershipTermId int64
}

func (m *JoinCluster) Marshal() []byte {
	body := make([]byte, HeaderLength+12)
	putHeader(body, Header{SchemaId, TemplateJoinCluster, 12, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.MemberId))
	binary.LittleEndian.PutUint64(b[4:12], uint64(m.LeadershipTermId))
	return body
}

func DecodeJoinCluster(b []byte) (*JoinCluster, error) {
	if len(b) < 12 {
		return nil, ErrShortBuffer
	}
	return &JoinCluster{
		MemberId:         int32(binary.LittleEndian.Uint32(b[0:4])),
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[4:12])),
	}, nil
}

// TerminationPosition is appended by the leader and proxied to followers to
// drive a cooperative shutdown/abort.
type TerminationPosition struct {
	LeadershipTermId int64
	LogPosition      int64
}

func (m *TerminationPosition) Marshal() []byte {
	body := make([]byte, HeaderLength+16)
	putHeader(body, Header{SchemaId, TemplateTerminationPosition, 16, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	return body
}

func DecodeTerminationPosition(b []byte) (*TerminationPosition, error) {
	if len(b) < 16 {
		return nil, ErrShortBuffer
	}
	return &TerminationPosition{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:      int64(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

// TerminationAck is a member's acknowledgement that it reached the
// TerminationPosition.
type TerminationAck struct {
	LeadershipTermId int64
	LogPosition      int64
	MemberId         int32
}

func (m *TerminationAck) Marshal() []byte {
	body := make([]byte, HeaderLength+20)
	putHeader(body, Header{SchemaId, TemplateTerminationAck, 20, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	binary.LittleEndian.PutUint32(b[16:20], uint32(m.MemberId))
	return body
}

func DecodeTerminationAck(b []byte) (*TerminationAck, error) {
	if len(b) < 20 {
		return nil, ErrShortBuffer
	}
	return &TerminationAck{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:      int64(binary.LittleEndian.Uint64(b[8:16])),
		MemberId:         int32(binary.LittleEndian.Uint32(b[16:20])),
	}, nil
}

// SnapshotRecordingEntry describes a single per-service snapshot recording
// inside a SnapshotRecordings message.
type SnapshotRecordingEntry struct {
	RecordingId         int64
	LeadershipTermId    int64
	TermBaseLogPosition int64
	LogPosition         int64
	Timestamp           int64
	ServiceId           int32
}

// SnapshotRecordings announces the set of recordings making up a completed
// snapshot, one per service plus the consensus module itself.
type SnapshotRecordings struct {
	LeadershipTermId int64
	Entries          []SnapshotRecordingEntry
}

func (m *SnapshotRecordings) Marshal() []byte {
	body := make([]byte, HeaderLength+12)
	putHeader(body, Header{SchemaId, TemplateSnapshotRecordings, 12, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint32(b[8:12], uint32(len(m.Entries)))
	for _, e := range m.Entries {
		entry := make([]byte, 44)
		binary.LittleEndian.PutUint64(entry[0:8], uint64(e.RecordingId))
		binary.LittleEndian.PutUint64(entry[8:16], uint64(e.LeadershipTermId))
		binary.LittleEndian.PutUint64(entry[16:24], uint64(e.TermBaseLogPosition))
		binary.LittleEndian.PutUint64(entry[24:32], uint64(e.LogPosition))
		binary.LittleEndian.PutUint64(entry[32:40], uint64(e.Timestamp))
		binary.LittleEndian.PutUint32(entry[40:44], uint32(e.ServiceId))
		body = append(body, entry...)
	}
	return body
}

func DecodeSnapshotRecordings(b []byte) (*SnapshotRecordings, error) {
	if len(b) < 12 {
		return nil, ErrShortBuffer
	}
	m := &SnapshotRecordings{LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8]))}
	count := int(binary.LittleEndian.Uint32(b[8:12]))
	b = b[12:]
	for i := 0; i < count; i++ {
		if len(b) < 44 {
			return nil, ErrShortBuffer
		}
		m.Entries = append(m.Entries, SnapshotRecordingEntry{
			RecordingId:         int64(binary.LittleEndian.Uint64(b[0:8])),
			LeadershipTermId:    int64(binary.LittleEndian.Uint64(b[8:16])),
			TermBaseLogPosition: int64(binary.LittleEndian.Uint64(b[16:24])),
			LogPosition:         int64(binary.LittleEndian.Uint64(b[24:32])),
			Timestamp:           int64(binary.LittleEndian.Uint64(b[32:40])),
			ServiceId:           int32(binary.LittleEndian.Uint32(b[40:44])),
		})
		b = b[44:]
	}
	return m, nil
}

// BackupQuery is issued by a backup (non-member) node to poll cluster state.
type BackupQuery struct {
	CorrelationId    int64
	ResponseStreamId int32
	Version          int32
	ResponseChannel  string
}

func (m *BackupQuery) Marshal() []byte {
	body := make([]byte, HeaderLength+16)
	putHeader(body, Header{SchemaId, TemplateBackupQuery, 16, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.CorrelationId))
	binary.LittleEndian.PutUint32(b[8:12], uint32(m.ResponseStreamId))
	binary.LittleEndian.PutUint32(b[12:16], uint32(m.Version))
	putString(&body, m.ResponseChannel)
	return body
}

func DecodeBackupQuery(b []byte) (*BackupQuery, error) {
	if len(b) < 16 {
		return nil, ErrShortBuffer
	}
	m := &BackupQuery{
		CorrelationId:    int64(binary.LittleEndian.Uint64(b[0:8])),
		ResponseStreamId: int32(binary.LittleEndian.Uint32(b[8:12])),
		Version:          int32(binary.LittleEndian.Uint32(b[12:16])),
	}
	s, _, err := getString(b[16:])
	if err != nil {
		return nil, err
	}
	m.ResponseChannel = s
	return m, nil
}

// ChallengeResponse carries credentials back to the cluster in response to a
// CHALLENGED session state.
type ChallengeResponse struct {
	CorrelationId       int64
	ClusterSessionId    int64
	MemberId            int32
	EncodedCredentials  []byte
}

func (m *ChallengeResponse) Marshal() []byte {
	body := make([]byte, HeaderLength+20)
	putHeader(body, Header{SchemaId, TemplateChallengeResponse, 20, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.CorrelationId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.ClusterSessionId))
	binary.LittleEndian.PutUint32(b[16:20], uint32(m.MemberId))
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(m.EncodedCredentials)))
	body = append(body, lenBytes[:]...)
	body = append(body, m.EncodedCredentials...)
	return body
}

func DecodeChallengeResponse(b []byte) (*ChallengeResponse, error) {
	if len(b) < 20 {
		return nil, ErrShortBuffer
	}
	m := &ChallengeResponse{
		CorrelationId:    int64(binary.LittleEndian.Uint64(b[0:8])),
		ClusterSessionId: int64(binary.LittleEndian.Uint64(b[8:16])),
		MemberId:         int32(binary.LittleEndian.Uint32(b[16:20])),
	}
	rest := b[20:]
	if len(rest) < 4 {
		return nil, ErrShortBuffer
	}
	n := int(binary.LittleEndian.Uint32(rest[0:4]))
	rest = rest[4:]
	if len(rest) < n {
		return nil, ErrShortBuffer
	}
	m.EncodedCredentials = append([]byte(nil), rest[:n]...)
	return m, nil
}

// HeartbeatRequest lets a backup node's query find the current leader
// without joining the cluster.
type HeartbeatRequest struct {
	LeadershipTermId int64
	LeaderMemberId   int32
}

func (m *HeartbeatRequest) Marshal() []byte {
	body := make([]byte, HeaderLength+12)
	putHeader(body, Header{SchemaId, TemplateHeartbeatRequest, 12, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint32(b[8:12], uint32(m.LeaderMemberId))
	return body
}

func DecodeHeartbeatRequest(b []byte) (*HeartbeatRequest, error) {
	if len(b) < 12 {
		return nil, ErrShortBuffer
	}
	return &HeartbeatRequest{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LeaderMemberId:   int32(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// ControlToggle carries an operator request (suspend/resume/snapshot/
// shutdown/abort) from the operator tool to the node's consensus control
// channel.
type ControlToggle struct {
	Toggle int32
}

func (m *ControlToggle) Marshal() []byte {
	body := make([]byte, HeaderLength+4)
	putHeader(body, Header{SchemaId, TemplateControlToggle, 4, 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.Toggle))
	return body
}

func DecodeControlToggle(b []byte) (*ControlToggle, error) {
	if len(b) < 4 {
		return nil, ErrShortBuffer
	}
	return &ControlToggle{Toggle: int32(binary.LittleEndian.Uint32(b[0:4]))}, nil
}

// LogReplication carries one serialized log-stream entry from the leader to
// a follower over the consensus control channel, tagged with the
// leadership term and the position it occupies in that term's log.
// RecordingLog only indexes TERM/SNAPSHOT markers; the entry content itself
// rides inside Payload, opaque to this package.
type LogReplication struct {
	LeadershipTermId int64
	LogPosition      int64
	Payload          []byte
}

func (m *LogReplication) Marshal() []byte {
	blockLength := 16 + len(m.Payload)
	body := make([]byte, HeaderLength+blockLength)
	putHeader(body, Header{SchemaId, TemplateLogReplication, uint16(blockLength), 0})
	b := body[HeaderLength:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.LeadershipTermId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(m.LogPosition))
	copy(b[16:], m.Payload)
	return body
}

func DecodeLogReplication(b []byte) (*LogReplication, error) {
	if len(b) < 16 {
		return nil, ErrShortBuffer
	}
	return &LogReplication{
		LeadershipTermId: int64(binary.LittleEndian.Uint64(b[0:8])),
		LogPosition:      int64(binary.LittleEndian.Uint64(b[8:16])),
		Payload:          append([]byte(nil), b[16:]...),
	}, nil
}

// Decode dispatches on the frame's header and returns the concrete message.
func Decode(frame []byte) (TemplateId, interface{}, error) {
	h, err := DecodeHeader(frame)
	if err != nil {
		return 0, nil, err
	}
	body := frame[HeaderLength:]
	switch h.TemplateId {
	case TemplateCanvassPosition:
		v, err := DecodeCanvassPosition(body)
		return h.TemplateId, v, err
	case TemplateRequestVote:
		v, err := DecodeRequestVote(body)
		return h.TemplateId, v, err
	case TemplateVote:
		v, err := DecodeVote(body)
		return h.TemplateId, v, err
	case TemplateNewLeadershipTerm:
		v, err := DecodeNewLeadershipTerm(body)
		return h.TemplateId, v, err
	case TemplateAppendPosition:
		v, err := DecodeAppendPosition(body)
		return h.TemplateId, v, err
	case TemplateCommitPosition:
		v, err := DecodeCommitPosition(body)
		return h.TemplateId, v, err
	case TemplateCatchupPosition:
		v, err := DecodeCatchupPosition(body)
		return h.TemplateId, v, err
	case TemplateStopCatchup:
		v, err := DecodeStopCatchup(body)
		return h.TemplateId, v, err
	case TemplateAddPassiveMember:
		v, err := DecodeAddPassiveMember(body)
		return h.TemplateId, v, err
	case TemplateClusterMembersChange:
		v, err := DecodeClusterMembersChange(body)
		return h.TemplateId, v, err
	case TemplateRemoveMember:
		v, err := DecodeRemoveMember(body)
		return h.TemplateId, v, err
	case TemplateJoinCluster:
		v, err := DecodeJoinCluster(body)
		return h.TemplateId, v, err
	case TemplateTerminationPosition:
		v, err := DecodeTerminationPosition(body)
		return h.TemplateId, v, err
	case TemplateTerminationAck:
		v, err := DecodeTerminationAck(body)
		return h.TemplateId, v, err
	case TemplateSnapshotRecordings:
		v, err := DecodeSnapshotRecordings(body)
		return h.TemplateId, v, err
	case TemplateBackupQuery:
		v, err := DecodeBackupQuery(body)
		return h.TemplateId, v, err
	case TemplateChallengeResponse:
		v, err := DecodeChallengeResponse(body)
		return h.TemplateId, v, err
	case TemplateHeartbeatRequest:
		v, err := DecodeHeartbeatRequest(body)
		return h.TemplateId, v, err
	case TemplateControlToggle:
		v, err := DecodeControlToggle(body)
		return h.TemplateId, v, err
	case TemplateLogReplication:
		v, err := DecodeLogReplication(body)
		return h.TemplateId, v, err
	default:
		return h.TemplateId, nil, ErrUnknownTemplate
	}
}
