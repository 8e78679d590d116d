package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Dialect describes how to reach one database engine and how to enumerate
// its tables.
type Dialect struct {
	// Name is the configuration value selecting the dialect.
	Name string
	// DisplayName is the engine name used in model prompts.
	DisplayName string
	// DriverName is the database/sql driver registration name.
	DriverName  string
	DefaultPort int
	// ColumnsQuery returns (table_schema, table_name, column_name) rows
	// ordered by table and ordinal position.
	ColumnsQuery string
	// DefaultSchema tables are listed unqualified. Empty means never qualify.
	DefaultSchema string
	buildDSN      func(cfg Config, port int) string
}

var dialects = map[string]Dialect{
	"mysql": {
		Name:        "mysql",
		DisplayName: "MySQL",
		DriverName:  "mysql",
		DefaultPort: 3306,
		ColumnsQuery: `SELECT table_schema, table_name, column_name
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`,
		buildDSN: mysqlDSN,
	},
	"postgres": {
		Name:        "postgres",
		DisplayName: "PostgreSQL",
		DriverName:  "pgx",
		DefaultPort: 5432,
		ColumnsQuery: `SELECT table_schema, table_name, column_name
FROM information_schema.columns
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
  AND table_schema NOT LIKE 'pg_toast%'
ORDER BY table_schema, table_name, ordinal_position`,
		DefaultSchema: "public",
		buildDSN:      postgresDSN,
	},
	"duckdb": {
		Name:        "duckdb",
		DisplayName: "DuckDB",
		DriverName:  "duckdb",
		ColumnsQuery: `SELECT table_schema, table_name, column_name
FROM information_schema.columns
WHERE table_catalog = current_database()
  AND table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_schema, table_name, ordinal_position`,
		DefaultSchema: "main",
		buildDSN:      duckdbDSN,
	},
}

func LookupDialect(name string) (Dialect, error) {
	dialect, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
	return dialect, nil
}

// DSN renders the driver-specific connection string for cfg.
func (d Dialect) DSN(cfg Config) string {
	port := cfg.Port
	if port <= 0 {
		port = d.DefaultPort
	}
	return d.buildDSN(cfg, port)
}

func (d Dialect) qualify(schema, table string) string {
	if d.DefaultSchema == "" || schema == "" || schema == d.DefaultSchema {
		return table
	}
	return schema + "." + table
}

func mysqlDSN(cfg Config, port int) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

func postgresDSN(cfg Config, port int) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}
	return u.String()
}

// duckdbDSN treats the database name as a file path. An empty name or
// ":memory:" opens an in-memory database.
func duckdbDSN(cfg Config, _ int) string {
	if cfg.Name == ":memory:" {
		return ""
	}
	return cfg.Name
}
