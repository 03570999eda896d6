// Package metrics exposes Prometheus counters for the archival daemon.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Set struct {
	registry        prometheus.Registerer
	LoopIterations  prometheus.Counter
	VisitsArchived  prometheus.Counter
	VisitsDeleted   prometheus.Counter
	URLsDeleted     *prometheus.CounterVec
	FaviconsExpired prometheus.Counter
}

// New registers the attic metric set on reg (or the default registerer
// when reg is nil).
func New(reg prometheus.Registerer) *Set {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Set{
		registry: reg,
		LoopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attic",
			Name:      "archival_iterations_total",
			Help:      "Total archival loop iterations",
		}),
		VisitsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attic",
			Name:      "visits_archived_total",
			Help:      "Visits copied into the archive store",
		}),
		VisitsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attic",
			Name:      "visits_deleted_total",
			Help:      "Visits removed from the main store",
		}),
		URLsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attic",
			Name:      "urls_deleted_total",
			Help:      "URL rows fully deleted from the main store",
		}, []string{"archived"}),
		FaviconsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attic",
			Name:      "favicons_expired_total",
			Help:      "Orphaned favicons removed",
		}),
	}

	reg.MustRegister(m.LoopIterations, m.VisitsArchived, m.VisitsDeleted,
		m.URLsDeleted, m.FaviconsExpired)
	return m
}
