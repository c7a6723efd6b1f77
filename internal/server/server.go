// Package server exposes the lookup service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/taxid-cli/internal/config"
	"github.com/sells-group/taxid-cli/internal/lookup"
	"github.com/sells-group/taxid-cli/internal/model"
)

// Lookuper is the lookup capability the handlers need.
type Lookuper interface {
	Lookup(ctx context.Context, q lookup.Query) ([]model.LookupResult, error)
	BatchLookup(ctx context.Context, ids []string, skipLive bool) ([]model.LookupResult, error)
}

type handler struct {
	svc Lookuper
	log *zap.Logger
}

// NewRouter wires the public endpoints. gatherer may be nil to omit /metrics.
func NewRouter(svc Lookuper, gatherer prometheus.Gatherer) http.Handler {
	h := &handler{svc: svc, log: zap.L().With(zap.String("component", "server"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/", h.handleHelp)
	r.Get("/api/lookup", h.handleLookup)
	r.Post("/api/lookup/batch", h.handleBatch)

	return r
}

type lookupResponse struct {
	Data  []model.LookupResult `json:"data"`
	Error *string              `json:"error"`
}

type batchResponse struct {
	Data  []model.LookupResult `json:"data"`
	Count int                  `json:"count"`
	Error *string              `json:"error"`
}

type batchRequest struct {
	IDs      json.RawMessage `json:"ids"`
	SkipLive bool            `json:"skip_live_registry"`
}

func (h *handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	q, ok := lookup.ParseParams(r.URL.Query())
	if !ok && r.URL.RawQuery == "" {
		h.handleHelp(w, r)
		return
	}

	results, err := h.svc.Lookup(r.Context(), q)
	if err != nil {
		status := statusFor(err)
		h.logFailure(r, status, err)
		writeJSON(w, status, lookupResponse{Data: []model.LookupResult{}, Error: errString(err)})
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{Data: results})
}

func (h *handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ids, skipLive, err := decodeBatch(w, r)
	if err != nil {
		msg := err.Error()
		writeJSON(w, http.StatusBadRequest, batchResponse{Data: []model.LookupResult{}, Error: &msg})
		return
	}

	results, err := h.svc.BatchLookup(r.Context(), ids, skipLive)
	if err != nil {
		status := statusFor(err)
		h.logFailure(r, status, err)
		writeJSON(w, status, batchResponse{Data: []model.LookupResult{}, Error: errString(err)})
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Data: results, Count: len(results)})
}

func decodeBatch(w http.ResponseWriter, r *http.Request) ([]string, bool, error) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		return nil, false, eris.New("request body must be a JSON object")
	}
	var ids []string
	if len(req.IDs) == 0 || string(req.IDs) == "null" {
		return nil, false, eris.New("ids must be a list of strings")
	}
	if err := json.Unmarshal(req.IDs, &ids); err != nil {
		return nil, false, eris.New("ids must be a list of strings")
	}
	return ids, req.SkipLive, nil
}

func (h *handler) logFailure(r *http.Request, status int, err error) {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("lookup failed", fields...)
		return
	}
	h.log.Debug("lookup rejected", fields...)
}

func statusFor(err error) int {
	var ve *lookup.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errString hides internal failure detail from clients.
func errString(err error) *string {
	var (
		ve *lookup.ValidationError
		ce *config.ConfigError
		s  string
	)
	switch {
	case errors.As(err, &ve):
		s = ve.Reason
	case errors.As(err, &ce):
		s = "configuration error"
	default:
		s = "internal error"
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
	})
	return g.Wait()
}
