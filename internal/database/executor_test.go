package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	duckdb "github.com/marcboeker/go-duckdb/v2"
)

func TestExecutorReturnsRecordsByColumnName(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("select id, name from users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("ada")).
			AddRow(int64(2), "grace"))

	result, err := NewExecutor(db, 0).Run(context.Background(), "select id, name from users")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "id" || result.Columns[1] != "name" {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	if len(result.Records) != 2 {
		t.Fatalf("Records = %#v", result.Records)
	}
	if result.Records[0]["name"] != "ada" {
		t.Fatalf("byte values should become strings, got %#v", result.Records[0]["name"])
	}
	if result.Records[1]["id"] != int64(2) {
		t.Fatalf("Records[1][id] = %#v", result.Records[1]["id"])
	}
	if result.Truncated {
		t.Fatal("Truncated = true")
	}
	assertSQLMock(t, mock)
}

func TestExecutorReplacesNonFiniteFloats(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("select a, b, c, d from t")).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d"}).
			AddRow(math.NaN(), math.Inf(1), math.Inf(-1), 1.5))

	result, err := NewExecutor(db, 0).Run(context.Background(), "select a, b, c, d from t")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	record := result.Records[0]
	if record["a"] != "NaN" || record["b"] != "+Inf" || record["c"] != "-Inf" {
		t.Fatalf("record = %#v", record)
	}
	if record["d"] != 1.5 {
		t.Fatalf("finite floats should be kept, got %#v", record["d"])
	}
	if _, err := json.Marshal(result.Records); err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		value duckdb.Decimal
		want  string
	}{
		{duckdb.Decimal{Width: 5, Scale: 2, Value: big.NewInt(150)}, "1.50"},
		{duckdb.Decimal{Width: 5, Scale: 2, Value: big.NewInt(-5)}, "-0.05"},
		{duckdb.Decimal{Width: 4, Scale: 0, Value: big.NewInt(42)}, "42"},
		{duckdb.Decimal{Width: 4, Scale: 2}, "0"},
	}
	for _, tt := range tests {
		if got := formatDecimal(tt.value); got != tt.want {
			t.Errorf("formatDecimal(%v) = %q, want %q", tt.value.Value, got, tt.want)
		}
	}
}

func TestExecutorStopsAtMaxRows(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("select n from t")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1).AddRow(2).AddRow(3))

	result, err := NewExecutor(db, 2).Run(context.Background(), "select n from t")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Records) != 2 || !result.Truncated {
		t.Fatalf("Records = %d Truncated = %v", len(result.Records), result.Truncated)
	}
}

func TestExecutorWrapsDatabaseError(t *testing.T) {
	db, mock := newSQLMock(t)
	boom := errors.New("Unknown column 'nope'")
	mock.ExpectQuery(regexp.QuoteMeta("select nope from t")).WillReturnError(boom)

	_, err := NewExecutor(db, 0).Run(context.Background(), "select nope from t")
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecutorRequiresSQL(t *testing.T) {
	db, _ := newSQLMock(t)
	if _, err := NewExecutor(db, 0).Run(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty sql")
	}
}

func TestExecutorAgainstDuckDB(t *testing.T) {
	db := openDuckDB(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE customers (id INTEGER, name VARCHAR)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO customers VALUES (1, 'ada'), (2, 'grace')`); err != nil {
		t.Fatalf("seed table: %v", err)
	}

	result, err := NewExecutor(db, 0).Run(ctx, "select count(*) as c from customers")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Records) != 1 || result.Records[0]["c"] != int64(2) {
		t.Fatalf("Records = %#v", result.Records)
	}
}

func TestExecutorNormalizesDuckDBValues(t *testing.T) {
	db := openDuckDB(t)
	query := `select 'a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11'::UUID as u, 1.50::DECIMAL(5,2) as d, 'nan'::DOUBLE as n`

	result, err := NewExecutor(db, 0).Run(context.Background(), query)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	record := result.Records[0]
	if record["u"] != "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11" {
		t.Fatalf("u = %#v", record["u"])
	}
	if record["d"] != "1.50" {
		t.Fatalf("d = %#v", record["d"])
	}
	if record["n"] != "NaN" {
		t.Fatalf("n = %#v", record["n"])
	}
	if _, err := json.Marshal(result.Records); err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
}

func openDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, dialect, err := Open(context.Background(), Config{Driver: "duckdb"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if dialect.Name != "duckdb" {
		t.Fatalf("dialect = %q", dialect.Name)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations not met: %v", err)
	}
}
