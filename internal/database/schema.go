package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type Table struct {
	Name    string
	Columns []string
}

type Schema struct {
	Tables []Table
}

// Text renders the schema as repeated "Table: <name>\nColumns: <c1>, <c2>"
// blocks, the form the model prompt expects.
func (s Schema) Text() string {
	var b strings.Builder
	for _, table := range s.Tables {
		b.WriteString("Table: ")
		b.WriteString(table.Name)
		b.WriteString("\nColumns: ")
		b.WriteString(strings.Join(table.Columns, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

// Introspector enumerates tables and columns visible to the configured
// credentials. Nothing is cached; every call hits the database.
type Introspector struct {
	db      *sql.DB
	dialect Dialect
}

func NewIntrospector(db *sql.DB, dialect Dialect) *Introspector {
	return &Introspector{db: db, dialect: dialect}
}

func (i *Introspector) Schema(ctx context.Context) (Schema, error) {
	if i.db == nil {
		return Schema{}, fmt.Errorf("database is required")
	}
	rows, err := i.db.QueryContext(ctx, i.dialect.ColumnsQuery)
	if err != nil {
		return Schema{}, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schema Schema
	index := map[string]int{}
	for rows.Next() {
		var tableSchema, tableName, columnName string
		if err := rows.Scan(&tableSchema, &tableName, &columnName); err != nil {
			return Schema{}, fmt.Errorf("scan column: %w", err)
		}
		name := i.dialect.qualify(tableSchema, tableName)
		pos, ok := index[name]
		if !ok {
			pos = len(schema.Tables)
			index[name] = pos
			schema.Tables = append(schema.Tables, Table{Name: name})
		}
		schema.Tables[pos].Columns = append(schema.Tables[pos].Columns, columnName)
	}
	if err := rows.Err(); err != nil {
		return Schema{}, fmt.Errorf("iterate columns: %w", err)
	}
	return schema, nil
}
