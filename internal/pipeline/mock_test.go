package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/sink"
)

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, src model.RawSource) (string, error) {
	args := m.Called(ctx, src)
	return args.String(0), args.Error(1)
}

// --- Persister Fake ---

type fakePersister struct {
	got    [][]model.UnifiedRecord
	report sink.BatchReport
}

func (f *fakePersister) Persist(_ context.Context, recs []model.UnifiedRecord) sink.BatchReport {
	f.got = append(f.got, recs)
	if f.report.Batches == nil {
		return sink.BatchReport{Batches: []sink.BatchResult{{Offset: 0, Size: len(recs)}}, Succeeded: len(recs)}
	}
	return f.report
}

// --- Exporter Fake ---

type fakeExporter struct {
	dups    []model.DuplicateGroup
	unified []model.UnifiedRecord
	err     error
}

func (f *fakeExporter) WriteDuplicates(groups []model.DuplicateGroup) ([]string, error) {
	f.dups = groups
	return []string{"duplicate_report.csv"}, f.err
}

func (f *fakeExporter) WriteUnified(recs []model.UnifiedRecord) ([]string, error) {
	f.unified = recs
	return []string{"final_unified_ids_unique.csv"}, nil
}

// --- Run Recorder Fake ---

type fakeRuns struct {
	mu   sync.Mutex
	runs []model.Run
	err  error
}

func (f *fakeRuns) RecordRun(_ context.Context, run *model.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return f.err
}
