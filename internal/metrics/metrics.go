// Package metrics exposes the per-thread backlog-out meter and graph
// size gauges the worker reports at 1 Hz. A private prometheus.Registry
// is used instead of the default global one so that independent test
// runs (and independently started workers within one process) never
// collide on metric identity.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every gauge tracevis exports.
type Registry struct {
	reg *prometheus.Registry

	backlogOut      *prometheus.GaugeVec
	nodeCount       *prometheus.GaugeVec
	edgeCount       *prometheus.GaugeVec
	deferredBacklog *prometheus.GaugeVec
}

// NewRegistry creates and registers every gauge.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		backlogOut: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracevis_thread_backlog_out_items_per_second",
			Help: "Records drained per second by a thread worker, sampled at 1Hz.",
		}, []string{"thread"}),
		nodeCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracevis_thread_node_count",
			Help: "Live node count on a thread's graph.",
		}, []string{"thread"}),
		edgeCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracevis_thread_edge_count",
			Help: "Live edge count on a thread's graph.",
		}, []string{"thread"}),
		deferredBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracevis_thread_deferred_backlog",
			Help: "Queued deferred-work entries awaiting resolution, by kind.",
		}, []string{"thread", "kind"}),
	}
	reg.MustRegister(r.backlogOut, r.nodeCount, r.edgeCount, r.deferredBacklog)
	return r
}

// Gatherer exposes the registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func threadLabel(threadID uint64) string { return strconv.FormatUint(threadID, 10) }

// SetBacklogOut records the current items-processed-per-second rate.
func (r *Registry) SetBacklogOut(threadID uint64, v float64) {
	r.backlogOut.WithLabelValues(threadLabel(threadID)).Set(v)
}

// SetGraphSize records the current node/edge counts.
func (r *Registry) SetGraphSize(threadID uint64, nodes, edges float64) {
	r.nodeCount.WithLabelValues(threadLabel(threadID)).Set(nodes)
	r.edgeCount.WithLabelValues(threadLabel(threadID)).Set(edges)
}

// SetDeferredBacklog records the current pendingEdges/blockRepeatQueue
// depth for a thread.
func (r *Registry) SetDeferredBacklog(threadID uint64, kind string, v float64) {
	r.deferredBacklog.WithLabelValues(threadLabel(threadID), kind).Set(v)
}
