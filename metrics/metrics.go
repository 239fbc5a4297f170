// Package metrics exposes the operator-visible counters as Prometheus
// gauges and counters, the read-only surface an operator tool or dashboard scrapes
// alongside the archive and transport metrics of the wider cluster.
// Counters exposed to other processes must only be accessed through
// atomic ordered loads/stores — here, a prometheus.Gauge's internal
// float64 plays that role.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters bundles every operator-facing gauge and counter for one consensus module
// instance.
type Counters struct {
	ModuleState         prometheus.Gauge
	ClusterRole         prometheus.Gauge
	CommitPosition      prometheus.Gauge
	AppendPosition      prometheus.Gauge
	ControlToggle       prometheus.Gauge
	SnapshotCounter      prometheus.Counter
	TimedOutClientCounter prometheus.Counter
	QueryDeadlineCounter prometheus.Counter
}

// NewCounters builds and registers a Counters set against reg, labeling
// every metric with the owning member's id.
func NewCounters(reg prometheus.Registerer, memberId int32) *Counters {
	labels := prometheus.Labels{"member_id": itoa(memberId)}
	c := &Counters{
		ModuleState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus", Name: "module_state", Help: "Current ConsensusModule.State enum value.", ConstLabels: labels,
		}),
		ClusterRole: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus", Name: "cluster_role", Help: "Current Cluster.Role enum value (FOLLOWER=0, CANDIDATE=1, LEADER=2).", ConstLabels: labels,
		}),
		CommitPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus", Name: "commit_position", Help: "Furthest log position confirmed replicated to a quorum.", ConstLabels: labels,
		}),
		AppendPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus", Name: "append_position", Help: "This member's local log append position.", ConstLabels: labels,
		}),
		ControlToggle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus", Name: "control_toggle", Help: "Pending operator control toggle enum value.", ConstLabels: labels,
		}),
		SnapshotCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus", Name: "snapshot_total", Help: "Number of snapshots taken.", ConstLabels: labels,
		}),
		TimedOutClientCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus", Name: "timed_out_client_total", Help: "Number of client sessions closed for inactivity.", ConstLabels: labels,
		}),
		QueryDeadlineCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus", Name: "query_deadline_total", Help: "Number of backup query deadlines exceeded.", ConstLabels: labels,
		}),
	}
	reg.MustRegister(c.ModuleState, c.ClusterRole, c.CommitPosition, c.AppendPosition, c.ControlToggle,
		c.SnapshotCounter, c.TimedOutClientCounter, c.QueryDeadlineCounter)
	return c
}

func itoa(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
