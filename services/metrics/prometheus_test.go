package metricsvc

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	m.WorkflowActionProcessed("COURSE", "approve", "COMPLETED")
	m.WorkflowActionProcessed("COURSE", "approve", "COMPLETED")
	m.WorkflowActionProcessed("COHORT", "reject", "REJECTED")
	m.EntityMutated("PROGRAM", "create")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("COURSE", "approve", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("COHORT", "reject", "REJECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("PROGRAM", "create")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.actions))

	_, err = NewPrometheusMetrics(reg)
	assert.Error(t, err, "collectors are registered once per registry")
}
