// Package assistant answers natural-language questions: it builds the prompt
// from the live schema, asks the model for SQL, passes the reply through the
// safety gate and runs accepted statements.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querygate/querygate/internal/audit"
	"github.com/querygate/querygate/internal/database"
	"github.com/querygate/querygate/internal/nl2sql"
	"github.com/querygate/querygate/internal/observability"
	"github.com/querygate/querygate/internal/safety"
)

// UnsafeQueryMessage is shown when the model produced SQL that failed the
// safety check.
const UnsafeQueryMessage = "Unsafe query detected. Only SELECT statements are allowed."

var (
	ErrQuestionRequired = errors.New("question is required")
	ErrSchema           = errors.New("schema introspection failed")
	ErrModel            = errors.New("language model request failed")
	ErrExecute          = errors.New("query execution failed")
)

type SchemaSource interface {
	Schema(ctx context.Context) (database.Schema, error)
}

type QueryRunner interface {
	Run(ctx context.Context, sql string) (database.Result, error)
}

// Service is built once at startup and shared by every request. None of its
// fields are modified after construction.
type Service struct {
	Gate         safety.Gate
	Translator   nl2sql.Translator
	Introspector SchemaSource
	Runner       QueryRunner
	Recorder     audit.Recorder
	Logger       *slog.Logger
	// Dialect is the engine name used in the prompt, e.g. "MySQL".
	Dialect string
	// Model is recorded in audit entries.
	Model string
	Clock func() time.Time
}

type Answer struct {
	Question string
	Outcome  safety.Outcome
	// Schema is the summary the prompt was built from. It is empty when the
	// question was rejected before introspection.
	Schema    string
	Candidate string
	Columns   []string
	Records   []map[string]any
	Truncated bool
}

// Message is the user-facing text for a rejected answer and empty otherwise.
func (a Answer) Message() string {
	if a.Outcome.Accepted() {
		return ""
	}
	if a.Outcome.Reason == safety.ReasonUnsafeSQL {
		return UnsafeQueryMessage
	}
	return safety.RejectionSentinel
}

// Ask runs one question through the denylist, schema introspection, the
// model and the safety gate, and executes the statement when the gate accepts it.
// Rejections are returned as answers; failures of the database or the model
// are returned as errors wrapping ErrSchema, ErrModel or ErrExecute.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrQuestionRequired
	}

	entry := audit.Entry{
		TraceID:   observability.TraceIDFromContext(ctx),
		Question:  question,
		Model:     s.Model,
		StartedAt: s.now(),
	}
	answer, err := s.ask(ctx, question, &entry)
	entry.FinishedAt = s.now()
	if err != nil {
		entry.Error = err.Error()
	}
	s.record(ctx, entry)
	return answer, err
}

func (s *Service) ask(ctx context.Context, question string, entry *audit.Entry) (Answer, error) {
	logger := observability.LoggerWithTrace(ctx, s.logger())
	answer := Answer{Question: question}

	// The denylist runs before the database is touched.
	if outcome := s.Gate.CheckQuestion(question); !outcome.Accepted() {
		s.settle(&answer, outcome, entry)
		logger.InfoContext(ctx, "question rejected", slog.String("reason", string(outcome.Reason)))
		return answer, nil
	}

	schema, err := s.Introspector.Schema(ctx)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	answer.Schema = schema.Text()

	outcome, err := s.Gate.Decide(ctx, question, func(ctx context.Context) (string, error) {
		start := time.Now()
		result, err := s.Translator.Translate(ctx, nl2sql.Request{Question: question, Schema: answer.Schema, Dialect: s.Dialect})
		observability.ObserveModelCall(time.Since(start), err)
		if err != nil {
			return "", err
		}
		answer.Candidate = result.Text
		return result.Text, nil
	})
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrModel, err)
	}
	s.settle(&answer, outcome, entry)

	if !outcome.Accepted() {
		logger.InfoContext(ctx, "question rejected", slog.String("reason", string(outcome.Reason)))
		return answer, nil
	}

	entry.SQL = outcome.SQL
	start := time.Now()
	result, err := s.Runner.Run(ctx, outcome.SQL)
	observability.ObserveQueryExecution(len(result.Records), time.Since(start), err)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrExecute, err)
	}
	entry.RowCount = len(result.Records)

	answer.Columns = result.Columns
	answer.Records = result.Records
	answer.Truncated = result.Truncated
	logger.InfoContext(ctx, "question answered", slog.Int("rows", len(result.Records)), slog.Bool("truncated", result.Truncated))
	return answer, nil
}

// Schema returns the current schema summary for display.
func (s *Service) Schema(ctx context.Context) (string, error) {
	schema, err := s.Introspector.Schema(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return schema.Text(), nil
}

func (s *Service) settle(answer *Answer, outcome safety.Outcome, entry *audit.Entry) {
	answer.Outcome = outcome
	entry.Candidate = answer.Candidate
	entry.Verdict = string(outcome.Verdict)
	entry.Reason = string(outcome.Reason)
	observability.ObserveGateDecision(string(outcome.Verdict), string(outcome.Reason))
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		observability.IncrementAuditWriteFailure()
		observability.LoggerWithTrace(ctx, s.logger()).WarnContext(ctx, "audit record failed", slog.Any("error", err))
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock()
}
