package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelconv/internal/pipeline"
	"modelconv/internal/servingcfg"
	"modelconv/internal/shape"
	"modelconv/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ResolveShapes(req pipeline.RunRequest) (inputs, outputs shape.Spec, err error)
	Validate(spec shape.Spec, cfg servingcfg.ModelConfig) servingcfg.Report
	Run(ctx context.Context, req pipeline.RunRequest) (pipeline.JobStatus, error)
	Jobs() []pipeline.JobStatus
	Job(id string) (pipeline.JobStatus, bool)
	Ready() bool
}

// resolveResponse carries resolved specs plus the converter clause form.
type resolveResponse struct {
	Inputs  shape.Spec `json:"inputs"`
	Outputs shape.Spec `json:"outputs"`
	Clauses []string   `json:"clauses"`
}

// validateRequest cross-checks shapes against an inline serving config.
type validateRequest struct {
	types.ResolveRequest
	Config servingcfg.ModelConfig `json:"config"`
}

// NewMux builds the daemon router: /resolve, /validate, /jobs, health and
// metrics endpoints.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(requestLogger)
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	// Resolve godoc
	// @Summary  Resolve concrete tensor shapes
	// @Accept   json
	// @Produce  json
	// @Param    request body types.ResolveRequest true "preset or clauses"
	// @Success  200 {object} resolveResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /resolve [post]
	r.Post("/resolve", func(w http.ResponseWriter, r *http.Request) {
		var req types.ResolveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		inputs, outputs, err := svc.ResolveShapes(runRequestFrom(req))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, resolveResponse{Inputs: inputs, Outputs: outputs, Clauses: inputs.Clauses()})
	})

	// Validate godoc
	// @Summary  Validate a serving config against resolved shapes
	// @Accept   json
	// @Produce  json
	// @Param    request body validateRequest true "shapes plus inline serving config"
	// @Success  200 {object} servingcfg.Report
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /validate [post]
	r.Post("/validate", func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		inputs, _, err := svc.ResolveShapes(runRequestFrom(req.ResolveRequest))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, svc.Validate(inputs, req.Config))
	})

	// RunJob godoc
	// @Summary  Run the full convert-and-validate workflow
	// @Accept   json
	// @Produce  json
	// @Param    request body pipeline.RunRequest true "workflow request"
	// @Success  200 {object} pipeline.JobStatus
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /jobs [post]
	r.Post("/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.RunRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		// Join server base context with request context so shutdown cancels work too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		st, err := svc.Run(joinedCtx, req)
		if err != nil && shape.IsInvalidDimension(err) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		// Tool failures and validation mismatches are data, not HTTP errors;
		// the status carries them.
		writeJSON(w, st)
	})

	r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"jobs": svc.Jobs()})
	})

	r.Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		st, ok := svc.Job(chi.URLParam(r, "id"))
		if !ok {
			writeJSONError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, st)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.StatusResponse{Ready: svc.Ready(), Jobs: len(svc.Jobs())})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func runRequestFrom(req types.ResolveRequest) pipeline.RunRequest {
	return pipeline.RunRequest{
		Model:   req.Model,
		Batch:   req.Batch,
		SeqLen:  req.SeqLen,
		Clauses: req.Clauses,
	}
}

// decodeJSON enforces content type and body size, decoding into dst.
// Writes the error response itself and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
