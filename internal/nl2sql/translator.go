package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/querygate/querygate/internal/safety"
)

type Request struct {
	Question string
	// Schema is the SchemaText summary of the target database.
	Schema string
	// Dialect is the engine name shown to the model, e.g. "MySQL".
	Dialect string
}

type Result struct {
	// Text is the raw model output. It has not been through the safety gate.
	Text     string
	Provider string
	Model    string
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

const promptTemplate = `You are a %s expert assistant.
Your job is to convert natural language into valid, plain SQL SELECT statements ONLY.
- Only return SELECT queries.
- NEVER generate INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE, or any harmful commands.
- If the user requests any harmful or non-SELECT SQL, respond only with the exact message:
%q
- Do NOT include markdown in your response.
- Do NOT explain anything.

Schema:
%s

Question:
%s

SQL Query:
`

// BuildPrompt fills the fixed instruction template with the schema and the
// user's question.
func BuildPrompt(req Request) string {
	dialect := strings.TrimSpace(req.Dialect)
	if dialect == "" {
		dialect = "SQL"
	}
	return fmt.Sprintf(promptTemplate, dialect, safety.RejectionSentinel, strings.TrimRight(req.Schema, "\n"), strings.TrimSpace(req.Question))
}
