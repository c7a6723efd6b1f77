package model

// Origin records which stage of the lookup chain produced a result.
type Origin string

const (
	OriginLiveRegistry Origin = "live_registry"
	OriginStore        Origin = "store"
	OriginNotFound     Origin = "not_found"
)

// LookupResult is the answer for one queried tax-id or one name match.
// Name is nil when nothing matched.
type LookupResult struct {
	TaxID  string  `json:"tax_id"`
	Name   *string `json:"name"`
	Source string  `json:"source_label"`
	Origin Origin  `json:"-"`
}

// Found reports whether the result carries a name.
func (r LookupResult) Found() bool {
	return r.Origin != OriginNotFound && r.Name != nil
}

// FromStored builds a store-origin result.
func FromStored(rec StoredRecord) LookupResult {
	name := rec.Name
	return LookupResult{
		TaxID:  rec.TaxID,
		Name:   &name,
		Source: rec.Source,
		Origin: OriginStore,
	}
}

// NotFound builds an empty result for a tax-id neither stage resolved.
func NotFound(taxID, label string) LookupResult {
	return LookupResult{
		TaxID:  taxID,
		Source: label,
		Origin: OriginNotFound,
	}
}
