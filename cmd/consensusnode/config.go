package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nodeforge/consensus"
)

// nodeFlags holds the parsed command-line configuration for one cluster
// member: the running process needs an id, its collaborators' addresses,
// and a data directory, nothing more exotic.
type nodeFlags struct {
	memberId      int
	listenAddr    string
	metricsAddr   string
	clusterDir    string
	archiveDir    string
	members       string
	serviceCount  int
	consensusStreamId int
}

// memberSpec describes one peer parsed from the --members flag, formatted as
// "id=host:port" entries separated by commas.
type memberSpec struct {
	id   int32
	addr string
}

func parseMembers(raw string) ([]memberSpec, error) {
	var out []memberSpec
	if raw == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid --members entry %q, want id=host:port", part)
		}
		id, err := strconv.Atoi(kv[0])
		if err != nil {
			return nil, fmt.Errorf("invalid member id in %q: %w", part, err)
		}
		out = append(out, memberSpec{id: int32(id), addr: kv[1]})
	}
	return out, nil
}

func buildMemberTable(selfId int32, specs []memberSpec) *consensus.MemberTable {
	members := make([]*consensus.ClusterMember, 0, len(specs))
	for _, s := range specs {
		members = append(members, consensus.NewClusterMember(s.id, consensus.Endpoints{
			Consensus: s.addr,
			Log:       s.addr,
			Ingress:   s.addr,
			Catchup:   s.addr,
			Archive:   s.addr,
		}))
	}
	return consensus.NewMemberTable(selfId, members)
}
