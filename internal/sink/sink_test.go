package sink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/store"
)

type fakeWriter struct {
	mu      sync.Mutex
	calls   [][]model.UnifiedRecord
	failAt  map[int]error // call index -> error
	blockOn int           // call index that waits for ctx
}

func (f *fakeWriter) UpsertRecords(ctx context.Context, recs []model.UnifiedRecord) (int64, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, recs)
	f.mu.Unlock()

	if f.blockOn > 0 && idx == f.blockOn-1 {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err, ok := f.failAt[idx]; ok {
		return 0, err
	}
	return int64(len(recs)), nil
}

func records(n int) []model.UnifiedRecord {
	out := make([]model.UnifiedRecord, n)
	for i := range out {
		out[i] = model.UnifiedRecord{TaxID: fmt.Sprintf("%08d", i), Name: fmt.Sprintf("n%d", i), Source: "s"}
	}
	return out
}

func TestPersist_Batches(t *testing.T) {
	w := &fakeWriter{}
	s := New(w, 1000, 0)

	report := s.Persist(context.Background(), records(2500))

	require.Len(t, w.calls, 3)
	assert.Len(t, w.calls[0], 1000)
	assert.Len(t, w.calls[1], 1000)
	assert.Len(t, w.calls[2], 500)
	assert.Equal(t, 2500, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Failures())
	assert.Equal(t, []BatchResult{
		{Offset: 0, Size: 1000},
		{Offset: 1000, Size: 1000},
		{Offset: 2000, Size: 500},
	}, report.Batches)
}

func TestPersist_FailedBatchIsolated(t *testing.T) {
	boom := errors.New("connection reset")
	w := &fakeWriter{failAt: map[int]error{1: boom}}
	s := New(w, 2, 0)

	report := s.Persist(context.Background(), records(5))

	assert.Len(t, w.calls, 3, "batches after the failure still run")
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 2, report.Failed)

	fails := report.Failures()
	require.Len(t, fails, 1)
	assert.Equal(t, 2, fails[0].Offset)
	assert.Equal(t, 2, fails[0].Size)
	assert.True(t, errors.Is(fails[0], boom))
	assert.Contains(t, fails[0].Error(), "offset 2")
}

func TestPersist_Empty(t *testing.T) {
	w := &fakeWriter{}
	report := New(w, 0, 0).Persist(context.Background(), nil)
	assert.Empty(t, w.calls)
	assert.Empty(t, report.Batches)
}

func TestPersist_BatchTimeout(t *testing.T) {
	w := &fakeWriter{blockOn: 1}
	s := New(w, 1, 20*time.Millisecond)

	report := s.Persist(context.Background(), records(2))

	require.Len(t, report.Failures(), 1)
	assert.True(t, errors.Is(report.Failures()[0], context.DeadlineExceeded))
	assert.Equal(t, 1, report.Succeeded)
}

func TestPersist_CancelledContext(t *testing.T) {
	w := &fakeWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(w, 1, 0).Persist(ctx, records(3))

	assert.Empty(t, w.calls)
	assert.Equal(t, 3, report.Failed)
	assert.Len(t, report.Failures(), 3)
}

func TestNew_Defaults(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, New(&fakeWriter{}, 0, 0).batchSize)
	assert.Equal(t, 10, New(&fakeWriter{}, 10, 0).batchSize)
}

func TestPersist_IdempotentAgainstSQLite(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sink.db"), "")
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	s := New(st, 2, time.Second)
	recs := records(5)
	first := s.Persist(ctx, recs)
	second := s.Persist(ctx, recs)
	assert.Equal(t, 5, first.Succeeded)
	assert.Equal(t, 5, second.Succeeded)

	all, err := st.SearchByName(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
