package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
)

// HTTPConfig configures the HTTP handler.
type HTTPConfig struct {
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
	// Health, when set, is consulted by /health.
	Health func() error
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{MaxBodyBytes: 64 << 20}
}

// NewHTTPHandler routes the API under /v1.
func NewHTTPHandler(api *API, cfg HTTPConfig) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultHTTPConfig().MaxBodyBytes
	}
	logger := api.logger.With(zap.String("transport", "http"))

	mux := http.NewServeMux()
	for _, ep := range api.endpoints() {
		mux.Handle(ep.pattern, bodyHandler(logger, cfg.MaxBodyBytes, ep))
	}
	mux.Handle("GET /v1/ciphertexts/{id}", pathHandler(logger, func(ctx context.Context, id string) (any, error) {
		return api.Export(ctx, id)
	}))
	mux.Handle("GET /v1/jobs/{id}", pathHandler(logger, func(ctx context.Context, id string) (any, error) {
		return api.Job(ctx, id)
	}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				writeJSON(logger, w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
				return
			}
		}
		writeJSON(logger, w, http.StatusOK, HealthResponse{Status: "ok"})
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	return mux
}

func bodyHandler(logger *zap.Logger, limit int64, ep endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(logger, w, http.StatusRequestEntityTooLarge, ErrorResponse{
					Error: "request body too large",
					Code:  errs.CodeInvalidArgument.String(),
				})
				return
			}
			writeJSONError(logger, w, http.StatusBadRequest, ErrorResponse{
				Error: "could not read request body",
				Code:  errs.CodeInvalidArgument.String(),
			})
			return
		}

		resp, err := ep.call(r.Context(), body)
		respond(logger.With(zap.String("endpoint", ep.pattern)), w, start, resp, err)
	})
}

func pathHandler(logger *zap.Logger, fn func(context.Context, string) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp, err := fn(r.Context(), r.PathValue("id"))
		respond(logger.With(zap.String("endpoint", r.Pattern)), w, start, resp, err)
	})
}

func respond(logger *zap.Logger, w http.ResponseWriter, start time.Time, resp any, err error) {
	if err != nil {
		status, body := errorResponse(err)
		logger.Debug("request failed",
			zap.Int("status", status),
			zap.String("code", body.Code),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		writeJSONError(logger, w, status, body)
		return
	}
	writeJSON(logger, w, http.StatusOK, resp)
}

func writeJSONError(logger *zap.Logger, w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(logger, w, status, body)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		msg := "error marshalling JSON response"
		logger.Error(msg, zap.Error(err))
		status = http.StatusInternalServerError
		resp = []byte(`{"error":"` + msg + `","code":"INTERNAL_CRYPTO"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		logger.Error("error writing response", zap.Error(err))
	}
}
