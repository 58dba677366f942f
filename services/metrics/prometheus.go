// Package metricsvc exports the business events of the app as Prometheus metrics.
package metricsvc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/academia/core"
)

type PrometheusMetrics struct {
	actions   *prometheus.CounterVec
	mutations *prometheus.CounterVec
}

var _ core.Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collectors and registers them on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "academia",
			Subsystem: "workflow",
			Name:      "actions_total",
			Help:      "Approval actions processed, by entity type, action and resulting workflow status.",
		}, []string{"entity_type", "action", "status"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "academia",
			Subsystem: "entities",
			Name:      "mutations_total",
			Help:      "Curriculum entity mutations, by entity type and operation.",
		}, []string{"entity_type", "operation"}),
	}
	for _, c := range []prometheus.Collector{m.actions, m.mutations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) WorkflowActionProcessed(entityType, action, status string) {
	m.actions.WithLabelValues(entityType, action, status).Inc()
}

func (m *PrometheusMetrics) EntityMutated(entityType, operation string) {
	m.mutations.WithLabelValues(entityType, operation).Inc()
}
