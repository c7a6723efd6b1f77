// Package lookup answers tax-id and name queries, trying the live registry
// first and falling back to the persisted store.
package lookup

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/config"
	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/monitoring"
	"github.com/sells-group/taxid-cli/internal/registry"
)

// Registry resolves a tax-id against a live source.
type Registry interface {
	Lookup(ctx context.Context, taxID string) (name string, found bool, err error)
}

// Store is the read side of the record store.
type Store interface {
	GetByTaxID(ctx context.Context, taxID string) (*model.StoredRecord, error)
	GetByTaxIDs(ctx context.Context, taxIDs []string) (map[string]model.StoredRecord, error)
	SearchByName(ctx context.Context, name string, limit int) ([]model.StoredRecord, error)
}

// ValidationError reports a malformed query.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "lookup: " + e.Reason
}

// Query is a single lookup request. TaxID takes precedence over Name.
type Query struct {
	TaxID    string
	Name     string
	SkipLive bool
}

// Options configures a Service.
type Options struct {
	RegistryLabel string // source label on live hits
	NotFoundLabel string // source label on unresolved batch entries
	NameLimit     int
	MaxBatch      int
	// StoreErr is returned by store-backed paths when no store is configured.
	StoreErr error
	Metrics  *monitoring.Metrics
}

// Service implements the lookup chain.
type Service struct {
	registry Registry
	store    Store
	opts     Options
}

// New creates a Service. registry may be nil to disable live lookups; store
// may be nil, in which case store-backed paths fail with opts.StoreErr.
func New(registry Registry, store Store, opts Options) *Service {
	if opts.RegistryLabel == "" {
		opts.RegistryLabel = "經濟部商工登記"
	}
	if opts.NotFoundLabel == "" {
		opts.NotFoundLabel = "查無資料"
	}
	if opts.NameLimit <= 0 {
		opts.NameLimit = 50
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 500
	}
	if store == nil && opts.StoreErr == nil {
		opts.StoreErr = &config.ConfigError{Key: "store.database_url", Reason: "store not configured"}
	}
	return &Service{registry: registry, store: store, opts: opts}
}

// Lookup runs a single query.
func (s *Service) Lookup(ctx context.Context, q Query) ([]model.LookupResult, error) {
	taxID := strings.TrimSpace(q.TaxID)
	name := strings.TrimSpace(q.Name)
	if taxID == "" && name == "" {
		return nil, &ValidationError{Reason: "a tax id or name is required"}
	}

	if taxID != "" {
		if res, ok := s.live(ctx, taxID, q.SkipLive); ok {
			return s.observe([]model.LookupResult{res}), nil
		}
		if s.store == nil {
			return nil, s.opts.StoreErr
		}
		rec, err := s.store.GetByTaxID(ctx, taxID)
		if err != nil {
			return nil, eris.Wrapf(err, "lookup: store get %s", taxID)
		}
		if rec == nil {
			return s.observe([]model.LookupResult{model.NotFound(taxID, s.opts.NotFoundLabel)}), nil
		}
		return s.observe([]model.LookupResult{model.FromStored(*rec)}), nil
	}

	if s.store == nil {
		return nil, s.opts.StoreErr
	}
	recs, err := s.store.SearchByName(ctx, name, s.opts.NameLimit)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: store search")
	}
	if len(recs) == 0 {
		return s.observe([]model.LookupResult{model.NotFound("", s.opts.NotFoundLabel)}), nil
	}
	out := make([]model.LookupResult, len(recs))
	for i, rec := range recs {
		out[i] = model.FromStored(rec)
	}
	return s.observe(out), nil
}

// BatchLookup resolves ids in input order, one result per non-empty id.
// Each distinct id hits the registry at most once; the rest are resolved
// from the store in a single query.
func (s *Service) BatchLookup(ctx context.Context, ids []string, skipLive bool) ([]model.LookupResult, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) > s.opts.MaxBatch {
		return nil, &ValidationError{Reason: "batch exceeds " + strconv.Itoa(s.opts.MaxBatch) + " ids"}
	}
	if len(clean) == 0 {
		return []model.LookupResult{}, nil
	}

	resolved := make(map[string]model.LookupResult, len(clean))
	seen := make(map[string]bool, len(clean))
	var pending []string
	for _, id := range clean {
		if seen[id] {
			continue
		}
		seen[id] = true
		if res, ok := s.live(ctx, id, skipLive); ok {
			resolved[id] = res
			continue
		}
		pending = append(pending, id)
	}

	if len(pending) > 0 {
		if s.store == nil {
			return nil, s.opts.StoreErr
		}
		found, err := s.store.GetByTaxIDs(ctx, pending)
		if err != nil {
			return nil, eris.Wrap(err, "lookup: store batch get")
		}
		for _, id := range pending {
			if rec, ok := found[id]; ok {
				resolved[id] = model.FromStored(rec)
			} else {
				resolved[id] = model.NotFound(id, s.opts.NotFoundLabel)
			}
		}
	}

	out := make([]model.LookupResult, len(clean))
	for i, id := range clean {
		out[i] = resolved[id]
	}
	return s.observe(out), nil
}

// live queries the registry. Errors and misses are logged and reported as
// ok=false so the caller falls back to the store.
func (s *Service) live(ctx context.Context, taxID string, skip bool) (model.LookupResult, bool) {
	if skip || s.registry == nil || !registry.ValidTaxID(taxID) {
		return model.LookupResult{}, false
	}

	name, found, err := s.registry.Lookup(ctx, taxID)
	if err != nil {
		s.opts.Metrics.IncRegistryFailure()
		zap.L().Warn("lookup: live registry failed, falling back to store",
			zap.String("component", "lookup"),
			zap.String("tax_id", taxID),
			zap.Error(err),
		)
		return model.LookupResult{}, false
	}
	if !found || name == "" {
		return model.LookupResult{}, false
	}
	return model.LookupResult{
		TaxID:  taxID,
		Name:   &name,
		Source: s.opts.RegistryLabel,
		Origin: model.OriginLiveRegistry,
	}, true
}

func (s *Service) observe(results []model.LookupResult) []model.LookupResult {
	for _, r := range results {
		s.opts.Metrics.ObserveLookup(r.Origin)
		if !r.Found() {
			zap.L().Debug("lookup: no match", zap.String("tax_id", r.TaxID))
		}
	}
	return results
}
