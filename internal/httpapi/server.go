package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListNetworks() []types.NetworkInfo
	Status() types.StatusResponse
	Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error)
	StartAsync(ctx context.Context, req types.InferRequest) (string, error)
	Poll(id string, wait time.Duration) (types.AsyncStatus, error)
	CancelOp(id string) error
	Unload(name string) error
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Get("/networks", h.listNetworks)
	r.Delete("/networks/{name}", h.unload)
	r.Get("/status", h.status)
	r.Post("/infer", h.infer)
	r.Post("/infer/async", h.inferAsync)
	r.Get("/ops/{id}", h.poll)
	r.Post("/ops/{id}/cancel", h.cancelOp)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

type handlers struct {
	svc Service
}

// listNetworks godoc
// @Summary  List registered networks
// @Produce  json
// @Success  200 {object} types.NetworksResponse
// @Router   /networks [get]
func (h *handlers) listNetworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.NetworksResponse{Networks: h.svc.ListNetworks()})
}

// status godoc
// @Summary  Loaded networks, queues and counters
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// decodeInfer validates the content type and decodes an InferRequest body.
// It writes the error response itself and reports whether decoding succeeded.
func decodeInfer(w http.ResponseWriter, r *http.Request) (types.InferRequest, bool) {
	var req types.InferRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	// Limit body size (configurable)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// If exceeded size, MaxBytesReader may cause an error; still return 400 to avoid size leak details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if len(req.Inputs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "inputs are required")
		return req, false
	}
	return req, true
}

// infer godoc
// @Summary  Run one synchronous inference
// @Accept   json
// @Produce  json
// @Param    request body types.InferRequest true "inputs"
// @Success  200 {object} types.InferResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  404 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Router   /infer [post]
func (h *handlers) infer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInfer(w, r)
	if !ok {
		return
	}
	start := time.Now()
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		zlog.Debug().Str("network", req.Network).Int("inputs", len(req.Inputs)).Msg("infer start")
	}
	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := inferContext(r.Context())
	defer cancel()
	resp, err := h.svc.Infer(ctx, req)
	if err != nil {
		// If context was canceled (client disconnect), just return.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		code := writeError(w, err, "infer")
		logEnd(r, lvl, "infer end", code, start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	logEnd(r, lvl, "infer end", http.StatusOK, start, nil)
}

// inferAsync godoc
// @Summary  Start a background inference
// @Accept   json
// @Produce  json
// @Param    request body types.InferRequest true "inputs"
// @Success  202 {object} types.StartAsyncResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /infer/async [post]
func (h *handlers) inferAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInfer(w, r)
	if !ok {
		return
	}
	id, err := h.svc.StartAsync(r.Context(), req)
	if err != nil {
		writeError(w, err, "infer_async")
		return
	}
	w.Header().Set("Location", "/ops/"+id)
	writeJSON(w, http.StatusAccepted, types.StartAsyncResponse{ID: id})
}

// poll godoc
// @Summary  Report an async operation
// @Produce  json
// @Param    id      path  string true  "operation id"
// @Param    wait_ms query int    false "block up to this long for completion"
// @Success  200 {object} types.AsyncStatus
// @Failure  404 {object} types.ErrorResponse
// @Router   /ops/{id} [get]
func (h *handlers) poll(w http.ResponseWriter, r *http.Request) {
	var wait time.Duration
	if v := r.URL.Query().Get("wait_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			writeJSONError(w, http.StatusBadRequest, "wait_ms must be a non-negative integer")
			return
		}
		wait = min(time.Duration(ms)*time.Millisecond, maxPollWait)
	}
	st, err := h.svc.Poll(chi.URLParam(r, "id"), wait)
	if err != nil {
		writeError(w, err, "poll")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// cancelOp godoc
// @Summary  Cancel an async operation
// @Param    id path string true "operation id"
// @Success  202
// @Failure  404 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Router   /ops/{id}/cancel [post]
func (h *handlers) cancelOp(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelOp(chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "cancel")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// unload godoc
// @Summary  Drain and unload a network
// @Param    name path string true "network name"
// @Success  204
// @Failure  404 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Router   /networks/{name} [delete]
func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unload(chi.URLParam(r, "name")); err != nil {
		writeError(w, err, "unload")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
