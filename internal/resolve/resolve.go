// Package resolve merges normalized records from every source into one
// record per tax-id and reports the tax-ids that appeared more than once.
package resolve

import (
	"sort"

	"github.com/sells-group/taxid-cli/internal/model"
)

// Result is the outcome of resolving a record set.
type Result struct {
	// Unified holds one record per distinct tax-id, in order of first appearance.
	Unified []model.UnifiedRecord
	// Duplicates holds every tax-id seen more than once, sorted by tax-id.
	Duplicates []model.DuplicateGroup
	// Excluded counts input records dropped for an empty tax-id or name.
	Excluded int
}

// Resolve applies first-source-wins precedence. records must already be in
// source precedence order; the earliest valid record for a tax-id survives.
func Resolve(records []model.NormalizedRecord) Result {
	res := Result{
		Unified:    []model.UnifiedRecord{},
		Duplicates: []model.DuplicateGroup{},
	}

	groups := make(map[string][]model.NormalizedRecord)
	var order []string
	for _, rec := range records {
		if !rec.Valid() {
			res.Excluded++
			continue
		}
		if _, seen := groups[rec.TaxID]; !seen {
			order = append(order, rec.TaxID)
		}
		groups[rec.TaxID] = append(groups[rec.TaxID], rec)
	}

	for _, id := range order {
		g := model.DuplicateGroup{TaxID: id, Members: groups[id]}
		winner := g.Winner()
		res.Unified = append(res.Unified, model.UnifiedRecord{
			TaxID:  winner.TaxID,
			Name:   winner.Name,
			Source: winner.Source,
		})
		if len(g.Members) > 1 {
			res.Duplicates = append(res.Duplicates, g)
		}
	}

	sort.SliceStable(res.Duplicates, func(i, j int) bool {
		return res.Duplicates[i].TaxID < res.Duplicates[j].TaxID
	})

	return res
}

// DuplicateRows flattens duplicate groups into report rows, grouped by
// tax-id and in ingestion order within a group.
func DuplicateRows(groups []model.DuplicateGroup) []model.NormalizedRecord {
	var n int
	for _, g := range groups {
		n += len(g.Members)
	}
	out := make([]model.NormalizedRecord, 0, n)
	for _, g := range groups {
		out = append(out, g.Members...)
	}
	return out
}
