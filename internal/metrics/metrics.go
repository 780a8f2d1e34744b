package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmitsTotal counts submit_sm attempts towards upstream peers.
	SubmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smppgw_submits_total",
		Help: "submit_sm requests sent to upstream peers",
	}, []string{"peer", "result"})

	// DeliversTotal counts deliver_sm PDUs received from upstream peers.
	DeliversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smppgw_delivers_total",
		Help: "deliver_sm PDUs received from upstream peers",
	}, []string{"peer", "kind"})

	// ServerSubmitsTotal counts submit_sm PDUs accepted by the local server.
	ServerSubmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smppgw_server_submits_total",
		Help: "submit_sm PDUs handled by the local SMPP server",
	}, []string{"system_id", "result"})

	// EgressAttemptsTotal counts individual HTTP egress attempts.
	EgressAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smppgw_egress_attempts_total",
		Help: "HTTP egress attempts towards the SMSC",
	}, []string{"result"})

	// EgressFailuresTotal counts egress calls that exhausted all retries.
	EgressFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smppgw_egress_failures_total",
		Help: "HTTP egress calls that failed after all retries",
	})

	// PeerReconnectsTotal counts reconnect cycles per peer.
	PeerReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smppgw_peer_reconnects_total",
		Help: "reconnect cycles entered per peer session",
	}, []string{"peer"})
)

// BoundStater reports the current bound state per peer id. Implemented by
// the peer pool.
type BoundStater interface {
	BoundStates() map[string]bool
}

// PoolCollector exposes per-peer bound state as a gauge, reading the live
// pool at scrape time.
type PoolCollector struct {
	pool BoundStater
	desc *prometheus.Desc
}

// NewPoolCollector builds a collector over the given pool.
func NewPoolCollector(pool BoundStater) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		desc: prometheus.NewDesc("smppgw_peer_bound", "1 when the peer session is bound", []string{"peer"}, nil),
	}
}

// Describe sends the metric description to the Prometheus channel.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

// Collect gathers the bound gauge by examining pool state.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for peer, bound := range c.pool.BoundStates() {
		v := 0.0
		if bound {
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, v, peer)
	}
}

// Register attaches the pool collector to the default registry.
func Register(pool BoundStater) {
	prometheus.MustRegister(NewPoolCollector(pool))
}
