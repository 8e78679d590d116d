package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/querygate/querygate/internal/assistant"
	"github.com/querygate/querygate/internal/auth"
	"github.com/querygate/querygate/internal/config"
	"github.com/querygate/querygate/internal/safety"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Title    string
	Schema   string
	Question string
	SQL      string
	// RejectedSQL is the normalized model output that failed the safety check.
	RejectedSQL string
	Columns     []string
	Rows        [][]string
	Message     string
	Error       string
	Answered    bool
}

func handleIndex(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: cfg.Service.Name}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		data.Error = err.Error()
		renderPage(w, http.StatusForbidden, data)
		return
	}
	if deps.Assistant == nil {
		data.Error = "question answering is not configured"
		renderPage(w, http.StatusNotImplemented, data)
		return
	}

	schema, err := deps.Assistant.Schema(r.Context())
	if err != nil {
		logFailure(r.Context(), deps.Logger, "schema fetch failed", err)
		data.Error = failureMessage(cfg, err)
		renderPage(w, classifyFailure(err).status, data)
		return
	}
	data.Schema = schema
	renderPage(w, http.StatusOK, data)
}

func handleQueryForm(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: cfg.Service.Name}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		data.Error = err.Error()
		renderPage(w, http.StatusForbidden, data)
		return
	}
	if deps.Assistant == nil {
		data.Error = "question answering is not configured"
		renderPage(w, http.StatusNotImplemented, data)
		return
	}
	if err := r.ParseForm(); err != nil {
		data.Error = "invalid form submission"
		renderPage(w, http.StatusBadRequest, data)
		return
	}

	data.Question = r.PostFormValue("query")
	answer, err := deps.Assistant.Ask(r.Context(), data.Question)
	if err != nil {
		if errors.Is(err, assistant.ErrQuestionRequired) {
			data.Error = "Please enter a question."
			renderPage(w, http.StatusBadRequest, data)
			return
		}
		logFailure(r.Context(), deps.Logger, "ask failed", err)
		data.Error = failureMessage(cfg, err)
		if !errors.Is(err, assistant.ErrSchema) {
			data.Schema = displaySchema(r.Context(), deps)
		}
		renderPage(w, classifyFailure(err).status, data)
		return
	}

	data.Answered = true
	data.Schema = answer.Schema
	if !answer.Outcome.Accepted() {
		data.Message = answer.Message()
		if answer.Outcome.Reason == safety.ReasonUnsafeSQL {
			data.RejectedSQL = safety.Normalize(answer.Candidate)
		}
		if data.Schema == "" {
			data.Schema = displaySchema(r.Context(), deps)
		}
		renderPage(w, http.StatusOK, data)
		return
	}
	data.SQL = answer.Outcome.SQL
	data.Columns = answer.Columns
	data.Rows = tableRows(answer.Columns, answer.Records)
	renderPage(w, http.StatusOK, data)
}

// displaySchema fetches the schema for pages whose answer did not carry one.
// The page still renders without it.
func displaySchema(ctx context.Context, deps Dependencies) string {
	schema, err := deps.Assistant.Schema(ctx)
	if err != nil {
		logFailure(ctx, deps.Logger, "schema fetch failed", err)
		return ""
	}
	return schema
}

func tableRows(columns []string, records []map[string]any) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		row := make([]string, len(columns))
		for i, column := range columns {
			value := record[column]
			if value == nil {
				row[i] = "NULL"
				continue
			}
			row[i] = fmt.Sprint(value)
		}
		rows = append(rows, row)
	}
	return rows
}

func renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
