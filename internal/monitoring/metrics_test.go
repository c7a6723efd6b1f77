package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/taxid-cli/internal/model"
)

func TestMetrics_ObserveLookup(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLookup(model.OriginStore)
	m.ObserveLookup(model.OriginStore)
	m.ObserveLookup(model.OriginNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lookups.WithLabelValues("store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("not_found")))
}

func TestMetrics_ObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(&model.Run{RecordsRead: 10, Excluded: 2, Unified: 7, SourcesFailed: 1, BatchesFailed: 1})
	m.IncRegistryFailure()

	assert.Equal(t, 10.0, testutil.ToFloat64(m.PipelineRecords.WithLabelValues("read")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelineRecords.WithLabelValues("excluded")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PipelineRecords.WithLabelValues("unified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourcesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryFailures))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLookup(model.OriginStore)
		m.IncRegistryFailure()
		m.ObserveRun(&model.Run{})
	})
}
