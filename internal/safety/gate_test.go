package safety

import (
	"context"
	"errors"
	"testing"
)

func TestIsSafeRequiresSelectPrefix(t *testing.T) {
	cases := []string{
		"",
		"show tables",
		"with x as (select 1) select * from x",
		"explain select 1",
		"-- comment\nselect 1",
		"sel/**/ect * from users",
	}
	for _, text := range cases {
		if IsSafe(text) {
			t.Fatalf("IsSafe(%q) = true, want false", text)
		}
	}
}

func TestIsSafeAcceptsSelectWithoutDenylistedWords(t *testing.T) {
	cases := []string{
		"SELECT * FROM customers",
		"  select name from users  ",
		"selectgarbage",
		"select 1; select 2",
		"select * from users where name = '' or 1=1",
	}
	for _, text := range cases {
		if !IsSafe(text) {
			t.Fatalf("IsSafe(%q) = false, want true", text)
		}
	}
}

func TestIsSafeRejectsDenylistedSubstrings(t *testing.T) {
	cases := []string{
		"select * from t; drop table t",
		"select updated_at from accounts",
		"select * from insertions",
		"select * from t where note = 'please DELETE me'",
		"select altered from t",
		"select * from truncated_logs",
	}
	for _, text := range cases {
		if IsSafe(text) {
			t.Fatalf("IsSafe(%q) = true, want false", text)
		}
	}
}

func TestNormalizeStripsFencesAndIsIdempotent(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT name FROM users\n```": "SELECT name FROM users",
		"  SELECT 1  ":                        "SELECT 1",
		"```SELECT 1```":                      "SELECT 1",
		"select '```' as tick":                "select '' as tick",
		"````sql x":                           "` x",
		"":                                    "",
	}
	for input, want := range cases {
		got := Normalize(input)
		if got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
		if again := Normalize(got); again != got {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", input, got, again)
		}
	}
}

func TestCheckCandidate(t *testing.T) {
	gate := NewGate(Options{RejectFallbackPattern: true})
	cases := []struct {
		name      string
		candidate string
		verdict   Verdict
		reason    Reason
		sql       string
	}{
		{name: "plain select", candidate: "SELECT * FROM customers", verdict: VerdictAccepted, sql: "select * from customers"},
		{name: "fenced", candidate: "```sql\nSELECT name FROM users\n```", verdict: VerdictAccepted, sql: "select name from users"},
		{name: "model refusal", candidate: "Agent cannot perform that operation.", verdict: VerdictRejected, reason: ReasonModelRefused},
		{name: "model refusal fenced", candidate: "```\nAGENT CANNOT PERFORM THAT OPERATION.\n```", verdict: VerdictRejected, reason: ReasonModelRefused},
		{name: "not select", candidate: "DELETE FROM users", verdict: VerdictRejected, reason: ReasonUnsafeSQL},
		{name: "false positive column", candidate: "SELECT updated_at FROM accounts", verdict: VerdictRejected, reason: ReasonUnsafeSQL},
		{name: "fallback pattern", candidate: "SELECT * FROM t WHERE 1 = 0", verdict: VerdictRejected, reason: ReasonFallbackPattern},
		{name: "empty", candidate: "   ", verdict: VerdictRejected, reason: ReasonUnsafeSQL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := gate.CheckCandidate(tc.candidate)
			if got.Verdict != tc.verdict || got.Reason != tc.reason || got.SQL != tc.sql {
				t.Fatalf("CheckCandidate(%q) = %+v", tc.candidate, got)
			}
		})
	}
}

func TestCheckCandidateFallbackPatternDisabled(t *testing.T) {
	gate := NewGate(Options{})
	got := gate.CheckCandidate("SELECT * FROM t WHERE 1 = 0")
	if !got.Accepted() {
		t.Fatalf("CheckCandidate() = %+v, want accepted", got)
	}
	if got.SQL != "select * from t where 1 = 0" {
		t.Fatalf("SQL = %q", got.SQL)
	}
}

func TestDecideShortCircuitsDenylistedQuestion(t *testing.T) {
	gate := NewGate(Options{RejectFallbackPattern: true})
	questions := []string{
		"please delete nothing",
		"drop the orders table",
		"show accounts updated yesterday",
		"INSERT a row",
	}
	for _, question := range questions {
		calls := 0
		outcome, err := gate.Decide(context.Background(), question, func(context.Context) (string, error) {
			calls++
			return "SELECT 1", nil
		})
		if err != nil {
			t.Fatalf("Decide(%q) error = %v", question, err)
		}
		if outcome.Verdict != VerdictRejected || outcome.Reason != ReasonQuestionDenylisted {
			t.Fatalf("Decide(%q) = %+v", question, outcome)
		}
		if calls != 0 {
			t.Fatalf("Decide(%q) made %d model calls", question, calls)
		}
	}
}

func TestDecideAcceptsSafeCandidate(t *testing.T) {
	gate := NewGate(Options{RejectFallbackPattern: true})
	calls := 0
	outcome, err := gate.Decide(context.Background(), "list all customers", func(context.Context) (string, error) {
		calls++
		return "SELECT * FROM customers", nil
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !outcome.Accepted() || outcome.SQL != "select * from customers" {
		t.Fatalf("Decide() = %+v", outcome)
	}
	if calls != 1 {
		t.Fatalf("model calls = %d", calls)
	}
}

func TestDecidePropagatesGeneratorError(t *testing.T) {
	gate := NewGate(Options{})
	boom := errors.New("upstream down")
	_, err := gate.Decide(context.Background(), "list customers", func(context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Decide() error = %v, want %v", err, boom)
	}
}
