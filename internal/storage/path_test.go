package storage

import (
	"strconv"
	"testing"
	"time"
)

func TestBuildAuditPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 0, 7, time.FixedZone("x", -5*3600))
	got := BuildAuditPath(ts, "trace-1")
	want := "audit/date=2026-02-19/hour=09/" + strconv.FormatInt(ts.UnixNano(), 10) + "-trace-1.parquet"
	if got != want {
		t.Fatalf("BuildAuditPath() = %q, want %q", got, want)
	}
}

func TestBuildAuditPathReplacesUnsafeTraceID(t *testing.T) {
	ts := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	for _, traceID := range []string{"", "../etc", "a/b"} {
		got := BuildAuditPath(ts, traceID)
		want := "audit/date=2026-03-01/hour=00/" + strconv.FormatInt(ts.UnixNano(), 10) + "-untraced.parquet"
		if got != want {
			t.Fatalf("BuildAuditPath(%q) = %q, want %q", traceID, got, want)
		}
	}
}
