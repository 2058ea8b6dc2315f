package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idgaf/internal/engine"
	"idgaf/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	DiscoverModels() ([]types.ModelInfo, error)
	Status() types.StatusResponse
	LoadModel(ctx context.Context, pathOrURL string, opts types.LoadOptions) (*types.LoadedModel, error)
	UnloadModel(ctx context.Context, id string) error
	Infer(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error
	Embed(ctx context.Context, modelID, input string) ([]float32, error)
	Events() []engine.Event
	Ready() bool
}

// NewMux builds the daemon's router over a Service.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// List discovered model files and loaded instances.
	//
	// @Summary  List models
	// @Produce  json
	// @Success  200 {object} types.ModelsResponse
	// @Router   /models [get]
	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		available, err := svc.DiscoverModels()
		if err != nil {
			writeFault(w, err)
			return
		}
		resp := types.ModelsResponse{
			Available: available,
			Loaded:    svc.Status().Loaded,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	// @Summary  Runtime status
	// @Produce  json
	// @Success  200 {object} types.StatusResponse
	// @Router   /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	// @Summary  Load a model from a path or URL
	// @Accept   json
	// @Produce  json
	// @Param    request body types.LoadRequest true "load request"
	// @Success  200 {object} types.LoadedModelStatus
	// @Router   /load [post]
	r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSONError(w, http.StatusBadRequest, "path is required")
			return
		}
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		m, err := svc.LoadModel(joined, req.Path, types.LoadOptions{
			CacheKey:    req.CacheKey,
			ContextSize: req.ContextSize,
			Threads:     req.Threads,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.LoadedModelStatus{ID: m.ID, Info: m.Info, Ops: m.SupportedOps()})
	})

	// @Summary  Unload a loaded model
	// @Produce  json
	// @Param    id path string true "model id"
	// @Success  204
	// @Router   /models/{id} [delete]
	r.Delete("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.UnloadModel(joined, id); err != nil {
			writeFault(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// @Summary  Generate a completion, optionally streaming NDJSON tokens
	// @Accept   json
	// @Produce  application/x-ndjson
	// @Param    request body types.GenerateRequest true "generate request"
	// @Router   /generate [post]
	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		start := time.Now()
		// Optional logging of NDJSON tokens
		writer := io.Writer(w)
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		logStart(r, lvl, req.Model)
		// Join server base context with request context so shutdown cancels
		// in-flight generations too.
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.Infer(joined, req, writer, flush); err != nil {
			// Client disconnect or shutdown: nothing useful to write.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeFault(w, err)
			logEnd(r, lvl, statusForError(err), start, err)
			return
		}
		logEnd(r, lvl, http.StatusOK, start, nil)
	})

	// @Summary  Compute an embedding vector
	// @Accept   json
	// @Produce  json
	// @Param    request body types.EmbedRequest true "embed request"
	// @Success  200 {object} types.EmbedResponse
	// @Router   /embed [post]
	r.Post("/embed", func(w http.ResponseWriter, r *http.Request) {
		var req types.EmbedRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Input == "" {
			writeJSONError(w, http.StatusBadRequest, "input is required")
			return
		}
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		vec, err := svc.Embed(joined, req.Model, req.Input)
		if err != nil {
			writeFault(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.EmbedResponse{Model: req.Model, Embedding: vec})
	})

	// @Summary  Recent lifecycle events
	// @Produce  json
	// @Router   /events [get]
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		events := svc.Events()
		if events == nil {
			events = []engine.Event{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"events": events})
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
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodeJSON enforces content type and body size before decoding. Returns
// false after writing the error response.
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

func logStart(r *http.Request, lvl LogLevel, model string) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("model", model)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("generate start")
		return
	}
	log.Printf("generate start path=%s model=%s", r.URL.Path, model)
}

func logEnd(r *http.Request, lvl LogLevel, status int, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("generate end")
		return
	}
	log.Printf("generate end status=%d dur=%s err=%v", status, time.Since(start), err)
}
