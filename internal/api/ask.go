package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/querygate/querygate/internal/assistant"
	"github.com/querygate/querygate/internal/auth"
	"github.com/querygate/querygate/internal/config"
	"github.com/querygate/querygate/internal/observability"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Verdict   string           `json:"verdict"`
	Reason    string           `json:"reason,omitempty"`
	SQL       string           `json:"sql,omitempty"`
	Columns   []string         `json:"columns"`
	Records   []map[string]any `json:"records"`
	Truncated bool             `json:"truncated,omitempty"`
	Message   string           `json:"message,omitempty"`
	ErrorCode string           `json:"error_code,omitempty"`
	TraceID   string           `json:"trace_id"`
}

func handleAsk(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	answer, err := deps.Assistant.Ask(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, assistant.ErrQuestionRequired) {
			writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
			return
		}
		logFailure(r.Context(), deps.Logger, "ask failed", err)
		f := classifyFailure(err)
		var extra map[string]any
		if cfg.Service.ExposeErrors {
			extra = map[string]any{"details": err.Error()}
		}
		writeError(r.Context(), w, f.status, f.code, failureMessage(cfg, err), f.retryable, extra)
		return
	}

	response := askResponse{
		Verdict: string(answer.Outcome.Verdict),
		Reason:  string(answer.Outcome.Reason),
		Columns: answer.Columns,
		Records: answer.Records,
		TraceID: observability.TraceIDFromContext(r.Context()),
	}
	if response.Columns == nil {
		response.Columns = []string{}
	}
	if response.Records == nil {
		response.Records = []map[string]any{}
	}
	if !answer.Outcome.Accepted() {
		response.Message = answer.Message()
		response.ErrorCode = "QUERY_REJECTED"
		writeJSON(w, http.StatusUnprocessableEntity, response)
		return
	}
	response.SQL = answer.Outcome.SQL
	response.Truncated = answer.Truncated
	writeJSON(w, http.StatusOK, response)
}

func handleSchema(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	schema, err := deps.Assistant.Schema(r.Context())
	if err != nil {
		logFailure(r.Context(), deps.Logger, "schema fetch failed", err)
		f := classifyFailure(err)
		writeError(r.Context(), w, f.status, f.code, failureMessage(cfg, err), f.retryable, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema})
}
