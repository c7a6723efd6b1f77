// Package pipeline runs one offline reconciliation: fetch every source in
// order, normalize, resolve duplicates, export, and persist.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/monitoring"
	"github.com/sells-group/taxid-cli/internal/normalize"
	"github.com/sells-group/taxid-cli/internal/resolve"
	"github.com/sells-group/taxid-cli/internal/sink"
)

// Fetcher downloads and decodes one source feed.
type Fetcher interface {
	Fetch(ctx context.Context, src model.RawSource) (string, error)
}

// Persister writes unified records in batches.
type Persister interface {
	Persist(ctx context.Context, recs []model.UnifiedRecord) sink.BatchReport
}

// Exporter writes the duplicate report and unified table.
type Exporter interface {
	WriteDuplicates(groups []model.DuplicateGroup) ([]string, error)
	WriteUnified(recs []model.UnifiedRecord) ([]string, error)
}

// RunRecorder stores the run summary.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *model.Run) error
}

// Deps are the collaborators of a Pipeline. Only Fetcher is required; a nil
// Persister, Exporter, or Runs skips that step.
type Deps struct {
	Fetcher   Fetcher
	Persister Persister
	Exporter  Exporter
	Runs      RunRecorder
	Metrics   *monitoring.Metrics
}

// SourceResult is the outcome of fetching and normalizing one source.
type SourceResult struct {
	Label   string
	URL     string
	Records int
	Err     error // *fetcher.NetworkError, *normalize.SchemaError, or a decode error
}

// Skipped reports whether the source contributed no records because it failed.
func (s SourceResult) Skipped() bool { return s.Err != nil }

// Result is the outcome of a run.
type Result struct {
	Run       model.Run
	Sources   []SourceResult
	Resolved  resolve.Result
	Batches   sink.BatchReport
	Exported  []string
	ExportErr error
}

// Pipeline orchestrates a reconciliation run.
type Pipeline struct {
	deps Deps
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Run processes sources strictly in order; that order is the duplicate
// precedence. A failing source is logged and skipped. The returned error is
// non-nil only for invalid input or a cancelled context.
func (p *Pipeline) Run(ctx context.Context, sources []model.RawSource) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	if len(sources) == 0 {
		return nil, eris.New("pipeline: no sources configured")
	}
	if p.deps.Fetcher == nil {
		return nil, eris.New("pipeline: no fetcher configured")
	}

	res := &Result{Run: newRun()}
	var all []model.NormalizedRecord

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "pipeline: cancelled")
		}

		srcLog := log.With(zap.String("source", src.Label), zap.String("url", src.URL))
		sr := SourceResult{Label: src.Label, URL: src.URL}

		recs, err := p.loadSource(ctx, src)
		if err != nil {
			sr.Err = err
			res.Run.SourcesFailed++
			var se *normalize.SchemaError
			if errors.As(err, &se) {
				srcLog.Warn("skipping source: unexpected columns",
					zap.String("missing", se.Missing),
					zap.Strings("headers", se.Headers),
					zap.Error(err),
				)
			} else {
				srcLog.Warn("skipping source", zap.Error(err))
			}
		} else {
			res.Run.SourcesOK++
			srcLog.Info("source normalized", zap.Int("records", len(recs)))
		}

		sr.Records = len(recs)
		res.Sources = append(res.Sources, sr)
		all = append(all, recs...)
	}

	p.finish(ctx, res, all, true)
	return res, nil
}

// Import resolves and persists records that were loaded outside the fetcher,
// such as a previously exported table.
func (p *Pipeline) Import(ctx context.Context, label string, recs []model.NormalizedRecord) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled")
	}
	res := &Result{Run: newRun()}
	res.Run.SourcesOK = 1
	res.Sources = []SourceResult{{Label: label, Records: len(recs)}}
	p.finish(ctx, res, recs, false)
	return res, nil
}

func (p *Pipeline) loadSource(ctx context.Context, src model.RawSource) ([]model.NormalizedRecord, error) {
	text, err := p.deps.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return normalize.Normalize(text, src.Label)
}

func (p *Pipeline) finish(ctx context.Context, res *Result, all []model.NormalizedRecord, export bool) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", res.Run.ID))

	res.Run.RecordsRead = len(all)
	res.Resolved = resolve.Resolve(all)
	res.Run.Excluded = res.Resolved.Excluded
	res.Run.Unified = len(res.Resolved.Unified)
	res.Run.DuplicateGroups = len(res.Resolved.Duplicates)

	log.Info("records resolved",
		zap.Int("read", res.Run.RecordsRead),
		zap.Int("excluded", res.Run.Excluded),
		zap.Int("unified", res.Run.Unified),
		zap.Int("duplicate_groups", res.Run.DuplicateGroups),
	)

	if export && p.deps.Exporter != nil {
		res.Exported, res.ExportErr = p.export(res.Resolved)
		if res.ExportErr != nil {
			log.Error("export failed", zap.Error(res.ExportErr))
		}
	}

	if p.deps.Persister != nil && len(res.Resolved.Unified) > 0 {
		res.Batches = p.deps.Persister.Persist(ctx, res.Resolved.Unified)
		res.Run.BatchesFailed = len(res.Batches.Failures())
	}

	res.Run.Status = status(res)
	res.Run.CompletedAt = time.Now().UTC()
	p.deps.Metrics.ObserveRun(&res.Run)

	if p.deps.Runs != nil {
		if err := p.deps.Runs.RecordRun(ctx, &res.Run); err != nil {
			log.Error("failed to record run", zap.Error(err))
		}
	}

	log.Info("pipeline run complete",
		zap.String("status", string(res.Run.Status)),
		zap.Int("sources_ok", res.Run.SourcesOK),
		zap.Int("sources_failed", res.Run.SourcesFailed),
		zap.Int("batches_failed", res.Run.BatchesFailed),
		zap.Duration("elapsed", res.Run.Duration()),
	)
}

func (p *Pipeline) export(r resolve.Result) ([]string, error) {
	dupPaths, err := p.deps.Exporter.WriteDuplicates(r.Duplicates)
	if err != nil {
		return dupPaths, eris.Wrap(err, "pipeline: write duplicate report")
	}
	uniPaths, err := p.deps.Exporter.WriteUnified(r.Unified)
	paths := append(dupPaths, uniPaths...)
	if err != nil {
		return paths, eris.Wrap(err, "pipeline: write unified table")
	}
	return paths, nil
}

func newRun() model.Run {
	return model.Run{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

func status(res *Result) model.RunStatus {
	switch {
	case res.Run.SourcesOK == 0:
		return model.RunStatusFailed
	case res.Run.SourcesFailed > 0, res.Run.BatchesFailed > 0, res.ExportErr != nil:
		return model.RunStatusPartial
	default:
		return model.RunStatusComplete
	}
}
