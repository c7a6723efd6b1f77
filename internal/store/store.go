// Package store persists unified tax-id records and pipeline run summaries.
package store

import (
	"context"
	"strings"

	"github.com/sells-group/taxid-cli/internal/model"
)

// DefaultTable is the record table created by the bundled migrations.
const DefaultTable = "unified_numbers"

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the reconciliation pipeline and lookup API.
type Store interface {
	// Records
	UpsertRecords(ctx context.Context, recs []model.UnifiedRecord) (int64, error)
	GetByTaxID(ctx context.Context, taxID string) (*model.StoredRecord, error)
	GetByTaxIDs(ctx context.Context, taxIDs []string) (map[string]model.StoredRecord, error)
	SearchByName(ctx context.Context, name string, limit int) ([]model.StoredRecord, error)

	// Runs
	RecordRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// likePattern builds a substring LIKE pattern with wildcards in s escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// uniqueNonEmpty drops blanks and repeats, keeping first-seen order.
func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func runLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
