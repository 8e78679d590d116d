package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querygate/querygate/internal/storage"
)

func TestEncodeEntryRoundTrip(t *testing.T) {
	started := time.Date(2026, time.February, 19, 10, 0, 0, 0, time.UTC)
	data, err := EncodeEntry(Entry{
		TraceID:    "trace-1",
		Question:   "list customers",
		Candidate:  "SELECT * FROM customers",
		Verdict:    "accepted",
		SQL:        "select * from customers",
		RowCount:   3,
		Model:      "deepseek/deepseek-r1:free",
		StartedAt:  started,
		FinishedAt: started.Add(250 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("EncodeEntry() error = %v", err)
	}

	reader := parquet.NewGenericReader[parquetEntry](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetEntry, 1)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("read rows = %d", count)
	}
	row := rows[0]
	if row.TraceID != "trace-1" || row.SQL != "select * from customers" || row.RowCount != 3 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.StartedAtUnixMs != started.UnixMilli() || row.FinishedAtUnixMs != started.Add(250*time.Millisecond).UnixMilli() {
		t.Fatalf("unexpected timestamps: %+v", row)
	}
}

func TestParquetRecorderWritesPartitionedObject(t *testing.T) {
	store := &fakeStore{}
	recorder, err := NewParquetRecorder(store)
	if err != nil {
		t.Fatalf("NewParquetRecorder() error = %v", err)
	}

	started := time.Date(2026, time.February, 19, 10, 30, 0, 0, time.UTC)
	err = recorder.Record(context.Background(), Entry{TraceID: "trace-9", Verdict: "rejected", Reason: "question_denylisted", StartedAt: started})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(store.key, "audit/date=2026-02-19/hour=10/") || !strings.HasSuffix(store.key, "-trace-9.parquet") {
		t.Fatalf("key = %q", store.key)
	}
	if store.contentType != parquetContentType {
		t.Fatalf("content type = %q", store.contentType)
	}
	if store.size != int64(len(store.body)) || len(store.body) == 0 {
		t.Fatalf("size = %d, body = %d bytes", store.size, len(store.body))
	}
}

func TestParquetRecorderWrapsStoreError(t *testing.T) {
	boom := errors.New("bucket offline")
	recorder, err := NewParquetRecorder(&fakeStore{err: boom})
	if err != nil {
		t.Fatalf("NewParquetRecorder() error = %v", err)
	}
	if err := recorder.Record(context.Background(), Entry{TraceID: "t"}); !errors.Is(err, boom) {
		t.Fatalf("Record() error = %v", err)
	}
}

func TestNewParquetRecorderRequiresStore(t *testing.T) {
	if _, err := NewParquetRecorder(nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

type fakeStore struct {
	key         string
	contentType string
	size        int64
	body        []byte
	err         error
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if f.err != nil {
		return storage.ObjectInfo{}, f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.key = key
	f.contentType = opts.ContentType
	f.size = size
	f.body = data
	return storage.ObjectInfo{Key: key, Size: size}, nil
}
