// Package model defines the records that flow through the reconciliation pipeline and the lookup API.
package model

import "time"

// RawSource is a configured open-data feed. Sources are processed in the order they are configured.
type RawSource struct {
	URL   string `json:"url" yaml:"url" mapstructure:"url"`
	Label string `json:"label" yaml:"label" mapstructure:"label"`
}

// NormalizedRecord is one row of a source feed after column mapping and trimming.
type NormalizedRecord struct {
	TaxID  string `json:"tax_id"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Valid reports whether both key fields are non-empty.
func (r NormalizedRecord) Valid() bool {
	return r.TaxID != "" && r.Name != ""
}

// UnifiedRecord is the single surviving record for a tax-id after deduplication.
type UnifiedRecord struct {
	TaxID  string `json:"tax_id"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// DuplicateGroup lists every record that shared a tax-id, in ingestion order.
// Members[0] is the record that won resolution.
type DuplicateGroup struct {
	TaxID   string             `json:"tax_id"`
	Members []NormalizedRecord `json:"members"`
}

// Winner returns the first member of the group.
func (g DuplicateGroup) Winner() NormalizedRecord {
	if len(g.Members) == 0 {
		return NormalizedRecord{TaxID: g.TaxID}
	}
	return g.Members[0]
}

// StoredRecord is a row of the persisted unified_numbers table.
type StoredRecord struct {
	TaxID     string    `json:"tax_id"`
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}
