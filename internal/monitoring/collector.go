package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/store"
)

// Snapshot holds a point-in-time view of recent pipeline runs.
type Snapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsPartial  int     `json:"runs_partial"`
	RunsFailed   int     `json:"runs_failed"`
	FailRate     float64 `json:"fail_rate"`

	SourcesFailed int `json:"sources_failed"`
	BatchesFailed int `json:"batches_failed"`

	LastRun *model.Run `json:"last_run,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the store method needed by the collector.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run statistics from the store.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new run collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect summarizes runs started within the lookback window. A lookback of
// zero or less covers every recorded run.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	for i := range runs {
		r := runs[i]
		if lookbackHours > 0 && r.StartedAt.Before(cutoff) {
			continue
		}
		if snap.LastRun == nil || r.StartedAt.After(snap.LastRun.StartedAt) {
			snap.LastRun = &runs[i]
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
		snap.SourcesFailed += r.SourcesFailed
		snap.BatchesFailed += r.BatchesFailed
	}

	if snap.RunsTotal > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
	}
	return snap, nil
}
