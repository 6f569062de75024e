// Package api exposes brand normalization, duplicate checks, synchronous
// batches and breaker status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/spirits-cli/internal/batch"
	"github.com/sells-group/spirits-cli/internal/brand"
	"github.com/sells-group/spirits-cli/internal/model"
	"github.com/sells-group/spirits-cli/internal/resilience"
)

// DefaultMaxBatchItems caps synchronous batch requests.
const DefaultMaxBatchItems = 100

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// BrandNormalizer is the brand surface the API serves.
type BrandNormalizer interface {
	Normalize(raw string, cfg brand.Config) brand.Result
	BatchNormalize(raws []string, cfg brand.Config) map[string]brand.Result
}

// DuplicateChecker is the dedup surface the API serves.
type DuplicateChecker interface {
	Check(ctx context.Context, candidate model.Spirit) (model.DuplicateDecision, error)
}

// BatchRunner runs a synchronous batch.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, items []model.WorkItem, opts batch.Options) (*model.BatchResult, error)
}

// Server holds the collaborators behind the routes. Brands, Dedup and Batches
// are required; Breakers may be nil.
type Server struct {
	Brands   BrandNormalizer
	Dedup    DuplicateChecker
	Batches  BatchRunner
	Breakers *resilience.ServiceBreakers

	BrandConfig   brand.Config
	BatchOptions  batch.Options
	MaxBatchItems int
}

// Routes returns the chi router for s.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/brands/normalize", s.normalizeBrand)
		r.Post("/spirits/duplicate-check", s.checkDuplicate)
		r.Post("/batches", s.runBatch)
		r.Get("/circuits", s.circuits)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type normalizeRequest struct {
	Brand  string        `json:"brand"`
	Brands []string      `json:"brands,omitempty"`
	Config *brand.Config `json:"config,omitempty"`
}

func (s *Server) normalizeBrand(w http.ResponseWriter, r *http.Request) {
	cfg := s.BrandConfig
	req := normalizeRequest{Config: &cfg}
	if !decode(w, r, &req) {
		return
	}
	if req.Config == nil {
		req.Config = &cfg
	}

	if len(req.Brands) > 0 {
		writeJSON(w, http.StatusOK, s.Brands.BatchNormalize(req.Brands, *req.Config))
		return
	}
	if strings.TrimSpace(req.Brand) == "" {
		writeError(w, http.StatusBadRequest, "brand is required")
		return
	}
	writeJSON(w, http.StatusOK, s.Brands.Normalize(req.Brand, *req.Config))
}

type duplicateCheckRequest struct {
	Spirit model.Spirit `json:"spirit"`
}

func (s *Server) checkDuplicate(w http.ResponseWriter, r *http.Request) {
	var req duplicateCheckRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Spirit.Name) == "" {
		writeError(w, http.StatusBadRequest, "spirit.name is required")
		return
	}

	decision, err := s.Dedup.Check(r.Context(), req.Spirit)
	if err != nil {
		zap.L().Error("api: duplicate check failed",
			zap.String("name", req.Spirit.Name),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "duplicate check failed")
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type batchRequest struct {
	Items       []model.WorkItem `json:"items"`
	Concurrency int              `json:"concurrency,omitempty"`
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}
	limit := s.MaxBatchItems
	if limit <= 0 {
		limit = DefaultMaxBatchItems
	}
	if len(req.Items) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "too many items")
		return
	}
	for _, it := range req.Items {
		if strings.TrimSpace(it.Name) == "" {
			writeError(w, http.StatusBadRequest, "every item needs a name")
			return
		}
	}

	opts := s.BatchOptions
	if req.Concurrency < 0 {
		writeError(w, http.StatusBadRequest, "concurrency must be >= 0")
		return
	}
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}

	res, err := s.Batches.ProcessBatch(r.Context(), req.Items, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) circuits(w http.ResponseWriter, _ *http.Request) {
	if s.Breakers == nil {
		writeJSON(w, http.StatusOK, map[string]resilience.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.Breakers.Snapshots())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
