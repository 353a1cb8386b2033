// Package warehouse provides read-only access to the claims warehouse:
// bounded query execution and information-schema introspection.
package warehouse

import "context"

// Executor runs SELECT statements against the warehouse with a hard row
// bound. Implementations own their connections and must be closed when done.
type Executor interface {
	// Query runs a SELECT and returns bounded results. The statement is
	// wrapped with a dialect-specific limit; rows beyond the bound are
	// never fetched.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error)

	// QueryWithParams runs a parameterized SELECT with bounded results.
	// The SQL uses $1, $2, ... placeholders filled from params in order.
	QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryResult, error)

	// Close releases the connection pool.
	Close() error
}

// Introspector reads warehouse metadata for the schema catalogue.
type Introspector interface {
	// Tables returns all user tables with row-count estimates.
	Tables(ctx context.Context) ([]TableInfo, error)

	// Columns returns columns for a table.
	Columns(ctx context.Context, tableName string) ([]ColumnInfo, error)

	// ForeignKeys returns all foreign key relationships.
	ForeignKeys(ctx context.Context) ([]ForeignKeyInfo, error)
}

// TableInfo describes a warehouse table.
type TableInfo struct {
	Name         string
	RowCountHint int64
}

// ColumnInfo describes a warehouse column.
type ColumnInfo struct {
	Name       string
	DataType   string
	IsNullable bool
	IsPrimary  bool
}

// ForeignKeyInfo describes a foreign key relationship.
type ForeignKeyInfo struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// QueryResult holds the raw output of a warehouse query before any
// sanitization.
type QueryResult struct {
	Columns  []string
	Rows     []map[string]any
	RowCount int
}
