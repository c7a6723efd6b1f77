// Package monitoring exposes Prometheus counters and run-history snapshots.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/taxid-cli/internal/model"
)

// Metrics holds the Prometheus metrics for lookups and pipeline runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Lookups          *prometheus.CounterVec
	RegistryFailures prometheus.Counter
	PipelineRecords  *prometheus.CounterVec
	SourcesSkipped   prometheus.Counter
	BatchesFailed    prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taxid_lookups_total",
			Help: "Lookup results returned, by origin",
		}, []string{"origin"}),
		RegistryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "taxid_registry_failures_total",
			Help: "Live registry calls that errored or timed out",
		}),
		PipelineRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taxid_pipeline_records_total",
			Help: "Records seen by the pipeline, by stage",
		}, []string{"stage"}),
		SourcesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "taxid_pipeline_sources_skipped_total",
			Help: "Sources skipped after a fetch or schema failure",
		}),
		BatchesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "taxid_sink_batches_failed_total",
			Help: "Upsert batches the store rejected",
		}),
	}
}

// ObserveLookup counts one result by its origin.
func (m *Metrics) ObserveLookup(origin model.Origin) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(string(origin)).Inc()
}

// IncRegistryFailure counts a failed live registry call.
func (m *Metrics) IncRegistryFailure() {
	if m == nil {
		return
	}
	m.RegistryFailures.Inc()
}

// ObserveRun adds a finished run's counts.
func (m *Metrics) ObserveRun(run *model.Run) {
	if m == nil || run == nil {
		return
	}
	m.PipelineRecords.WithLabelValues("read").Add(float64(run.RecordsRead))
	m.PipelineRecords.WithLabelValues("excluded").Add(float64(run.Excluded))
	m.PipelineRecords.WithLabelValues("unified").Add(float64(run.Unified))
	m.SourcesSkipped.Add(float64(run.SourcesFailed))
	m.BatchesFailed.Add(float64(run.BatchesFailed))
}
