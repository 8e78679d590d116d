// Package safety decides whether model-generated SQL text may be executed.
//
// The gate is a lexical filter. It works on text alone, never parses SQL, and
// is not an authorization layer. Substring matching misclassifies harmless
// identifiers such as "updated_at" or "insertions" as unsafe, and nothing here
// detects stacked statements, injection inside predicates or comment-based
// keyword obfuscation like "sel/**/ect".
package safety

import (
	"context"
	"strings"
)

// RejectionSentinel is the refusal text the model is told to emit and the
// text returned to callers on every rejection path.
const RejectionSentinel = "Agent cannot perform that operation."

// FallbackPattern is the no-op predicate the model sometimes emits instead of
// refusing outright.
const FallbackPattern = "where 1 = 0"

// Denylist holds the keywords checked as case-insensitive substrings.
var Denylist = []string{"drop", "delete", "update", "insert", "alter", "truncate"}

var rejectionSentinelLower = strings.ToLower(RejectionSentinel)

type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

type Reason string

const (
	ReasonNone               Reason = ""
	ReasonQuestionDenylisted Reason = "question_denylisted"
	ReasonModelRefused       Reason = "model_refused"
	ReasonUnsafeSQL          Reason = "unsafe_sql"
	ReasonFallbackPattern    Reason = "fallback_pattern"
)

// Outcome is the gate's decision for one question. SQL is only set when the
// verdict is accepted.
type Outcome struct {
	Verdict Verdict
	Reason  Reason
	SQL     string
}

func (o Outcome) Accepted() bool {
	return o.Verdict == VerdictAccepted
}

func accepted(sql string) Outcome {
	return Outcome{Verdict: VerdictAccepted, SQL: sql}
}

func rejected(reason Reason) Outcome {
	return Outcome{Verdict: VerdictRejected, Reason: reason}
}

// Normalize strips SQL code-fence markers and surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "```sql", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// ContainsDenylisted reports whether text contains any denylisted keyword
// anywhere, ignoring case.
func ContainsDenylisted(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range Denylist {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsSafe reports whether text starts with "select" and contains no
// denylisted keyword.
func IsSafe(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(lower, "select") && !ContainsDenylisted(lower)
}

type Options struct {
	// RejectFallbackPattern rejects accepted SQL that contains FallbackPattern.
	RejectFallbackPattern bool
}

// Gate is immutable after construction and safe for concurrent use.
type Gate struct {
	rejectFallback bool
}

func NewGate(opts Options) Gate {
	return Gate{rejectFallback: opts.RejectFallbackPattern}
}

// CheckQuestion rejects questions that name a denylisted keyword before any
// model call is made.
func (g Gate) CheckQuestion(question string) Outcome {
	if ContainsDenylisted(question) {
		return rejected(ReasonQuestionDenylisted)
	}
	return accepted("")
}

// CheckCandidate judges raw model output. Accepted SQL is normalized and
// lower-cased.
func (g Gate) CheckCandidate(candidate string) Outcome {
	sql := strings.ToLower(Normalize(candidate))
	if sql == rejectionSentinelLower {
		return rejected(ReasonModelRefused)
	}
	if !IsSafe(sql) {
		return rejected(ReasonUnsafeSQL)
	}
	if g.rejectFallback && strings.Contains(sql, FallbackPattern) {
		return rejected(ReasonFallbackPattern)
	}
	return accepted(sql)
}

// Generator produces a candidate for the question being decided.
type Generator func(ctx context.Context) (string, error)

// Decide runs the question pre-check and, only when it passes, calls generate
// once and judges its output. Generator errors are returned unchanged.
func (g Gate) Decide(ctx context.Context, question string, generate Generator) (Outcome, error) {
	if outcome := g.CheckQuestion(question); !outcome.Accepted() {
		return outcome, nil
	}
	candidate, err := generate(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return g.CheckCandidate(candidate), nil
}
