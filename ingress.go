package consensus

import (
	"encoding/binary"
	"fmt"
)

// IngressMessage is the generic envelope a client sends to the cluster. The
// consensus layer only needs to know which session and which service a
// message belongs to; Payload is opaque application content.
type IngressMessage struct {
	ClusterSessionId int64
	ServiceId        int32
	Payload          []byte
}

// Marshal frames the message as [sessionId int64][serviceId int32][len uint32][payload].
func (m *IngressMessage) Marshal() []byte {
	out := make([]byte, 16+len(m.Payload))
	binary.LittleEndian.PutUint64(out[0:8], uint64(m.ClusterSessionId))
	binary.LittleEndian.PutUint32(out[8:12], uint32(m.ServiceId))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(m.Payload)))
	copy(out[16:], m.Payload)
	return out
}

// DecodeIngressMessage parses one ingress frame.
func DecodeIngressMessage(b []byte) (*IngressMessage, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("ingress: short header")
	}
	n := binary.LittleEndian.Uint32(b[12:16])
	if uint32(len(b)-16) < n {
		return nil, fmt.Errorf("ingress: short payload")
	}
	return &IngressMessage{
		ClusterSessionId: int64(binary.LittleEndian.Uint64(b[0:8])),
		ServiceId:        int32(binary.LittleEndian.Uint32(b[8:12])),
		Payload:          append([]byte(nil), b[16:16+n]...),
	}, nil
}
