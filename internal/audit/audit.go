// Package audit records one entry per question answered by the service.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querygate/querygate/internal/storage"
)

type Entry struct {
	TraceID    string
	Question   string
	Candidate  string
	Verdict    string
	Reason     string
	SQL        string
	RowCount   int
	Error      string
	Model      string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }

type parquetEntry struct {
	TraceID          string `parquet:"trace_id"`
	Question         string `parquet:"question"`
	Candidate        string `parquet:"candidate"`
	Verdict          string `parquet:"verdict"`
	Reason           string `parquet:"reason"`
	SQL              string `parquet:"sql"`
	RowCount         int64  `parquet:"row_count"`
	Error            string `parquet:"error"`
	Model            string `parquet:"model"`
	StartedAtUnixMs  int64  `parquet:"started_at_unix_ms"`
	FinishedAtUnixMs int64  `parquet:"finished_at_unix_ms"`
}

const parquetContentType = "application/vnd.apache.parquet"

// ParquetRecorder writes every entry as its own single-row Parquet object.
type ParquetRecorder struct {
	store storage.ObjectStore
}

func NewParquetRecorder(store storage.ObjectStore) (*ParquetRecorder, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &ParquetRecorder{store: store}, nil
}

func (r *ParquetRecorder) Record(ctx context.Context, entry Entry) error {
	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	at := entry.StartedAt
	if at.IsZero() {
		at = time.Now()
	}
	key := storage.BuildAuditPath(at, entry.TraceID)
	if _, err := r.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType}); err != nil {
		return fmt.Errorf("write audit object: %w", err)
	}
	return nil
}

// EncodeEntry renders entry as a single-row Parquet file.
func EncodeEntry(entry Entry) ([]byte, error) {
	row := parquetEntry{
		TraceID:          entry.TraceID,
		Question:         entry.Question,
		Candidate:        entry.Candidate,
		Verdict:          entry.Verdict,
		Reason:           entry.Reason,
		SQL:              entry.SQL,
		RowCount:         int64(entry.RowCount),
		Error:            entry.Error,
		Model:            entry.Model,
		StartedAtUnixMs:  unixMilli(entry.StartedAt),
		FinishedAtUnixMs: unixMilli(entry.FinishedAt),
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write([]parquetEntry{row}); err != nil {
		return nil, fmt.Errorf("write parquet row: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func unixMilli(at time.Time) int64 {
	if at.IsZero() {
		return 0
	}
	return at.UnixMilli()
}
