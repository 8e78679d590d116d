package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	duckdb "github.com/marcboeker/go-duckdb/v2"
)

type Result struct {
	Columns []string
	Records []map[string]any
	// Truncated is set when MaxRows stopped the scan early.
	Truncated bool
	Duration  time.Duration
}

// Executor runs query text verbatim. There is no parameterization: the text
// handed to Run is the entire trust boundary, so callers must only pass
// statements that already went through the safety gate.
type Executor struct {
	db      *sql.DB
	maxRows int
}

// NewExecutor returns an executor that stops scanning after maxRows rows.
// Zero means unlimited.
func NewExecutor(db *sql.DB, maxRows int) *Executor {
	if maxRows < 0 {
		maxRows = 0
	}
	return &Executor{db: db, maxRows: maxRows}
}

func (e *Executor) Run(ctx context.Context, sqlText string) (Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if e.db == nil {
		return Result{}, fmt.Errorf("database is required")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}
	typeNames := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range columnTypes {
			if i < len(typeNames) {
				typeNames[i] = strings.ToUpper(columnType.DatabaseTypeName())
			}
		}
	}

	result := Result{Columns: columns, Records: make([]map[string]any, 0)}
	for rows.Next() {
		if e.maxRows > 0 && len(result.Records) >= e.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(typeNames[i], values[i])
		}
		result.Records = append(result.Records, record)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// normalizeValue converts driver values into something encoding/json can
// always represent.
func normalizeValue(typeName string, value any) any {
	switch typed := value.(type) {
	case []byte:
		if typeName == "UUID" && len(typed) == 16 {
			if id, err := uuid.FromBytes(typed); err == nil {
				return id.String()
			}
		}
		return string(typed)
	case float64:
		if text, ok := nonFiniteText(typed); ok {
			return text
		}
	case float32:
		if text, ok := nonFiniteText(float64(typed)); ok {
			return text
		}
	case duckdb.Decimal:
		return formatDecimal(typed)
	case *duckdb.Decimal:
		if typed == nil {
			return nil
		}
		return formatDecimal(*typed)
	}
	return value
}

func nonFiniteText(value float64) (string, bool) {
	switch {
	case math.IsNaN(value):
		return "NaN", true
	case math.IsInf(value, 1):
		return "+Inf", true
	case math.IsInf(value, -1):
		return "-Inf", true
	}
	return "", false
}

// formatDecimal renders the exact value with Scale fractional digits.
func formatDecimal(value duckdb.Decimal) string {
	if value.Value == nil {
		return "0"
	}
	digits := value.Value.String()
	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")
	scale := int(value.Scale)
	if scale > 0 {
		if len(digits) <= scale {
			digits = strings.Repeat("0", scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	}
	if negative {
		digits = "-" + digits
	}
	return digits
}
