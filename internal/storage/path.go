package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildAuditPath returns the object key for one audit record, partitioned by
// UTC date and hour. Trace ids that are not safe path components are replaced.
func BuildAuditPath(at time.Time, traceID string) string {
	if !pathComponentPattern.MatchString(traceID) {
		traceID = "untraced"
	}
	ts := at.UTC()
	return path.Join(
		"audit",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("%d-%s.parquet", ts.UnixNano(), traceID),
	)
}
