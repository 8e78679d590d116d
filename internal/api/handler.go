package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querygate/querygate/internal/assistant"
	"github.com/querygate/querygate/internal/auth"
	"github.com/querygate/querygate/internal/config"
	"github.com/querygate/querygate/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// Assistant is the question answering service shared by the HTML and JSON
// routes.
type Assistant interface {
	Ask(ctx context.Context, question string) (assistant.Answer, error)
	Schema(ctx context.Context) (string, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		handleIndex(cfg, deps, w, r)
	})
	protected.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		handleQueryForm(cfg, deps, w, r)
	})
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(cfg, deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /{$}", protectedHandler)
	mux.Handle("POST /query", protectedHandler)
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("GET /v1/schema", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

type failure struct {
	status    int
	code      string
	retryable bool
	// detail is the safe summary shown when raw errors are hidden.
	detail string
}

func classifyFailure(err error) failure {
	switch {
	case errors.Is(err, assistant.ErrModel):
		return failure{status: http.StatusBadGateway, code: "MODEL_REQUEST_FAILED", retryable: true, detail: assistant.ErrModel.Error()}
	case errors.Is(err, assistant.ErrSchema):
		return failure{status: http.StatusInternalServerError, code: "SCHEMA_FETCH_FAILED", retryable: true, detail: assistant.ErrSchema.Error()}
	case errors.Is(err, assistant.ErrExecute):
		return failure{status: http.StatusInternalServerError, code: "QUERY_EXECUTION_FAILED", retryable: false, detail: assistant.ErrExecute.Error()}
	default:
		return failure{status: http.StatusInternalServerError, code: "INTERNAL_ERROR", retryable: false, detail: "internal error"}
	}
}

// failureMessage is the text shown to users for an external failure. The raw
// error is only included when the service is configured to expose it.
func failureMessage(cfg config.Config, err error) string {
	detail := classifyFailure(err).detail
	if cfg.Service.ExposeErrors {
		detail = err.Error()
	}
	return "Failed to process your request: " + detail
}

func logFailure(ctx context.Context, logger *slog.Logger, message string, err error) {
	if logger == nil {
		return
	}
	observability.LoggerWithTrace(ctx, logger).ErrorContext(ctx, message, slog.Any("error", err))
}

// encodingFailureBody replaces any payload encoding/json rejects.
const encodingFailureBody = `{"error_code":"RESPONSE_ENCODING_FAILED","message":"Failed to encode response","retryable":false}` + "\n"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(encodingFailureBody))
		return
	}
	w.WriteHeader(status)
	_, _ = body.WriteTo(w)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
