package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/logging"
	"github.com/carelens/carelens-engine/pkg/retry"
)

// Config holds connection settings for the warehouse pool.
type Config struct {
	ConnString         string
	MaxConnections     int32
	StatementTimeoutMS int
}

// Postgres is the pgx-backed warehouse client. The session is forced
// read-only and every statement carries the configured timeout.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres opens the warehouse connection pool. Transient connection
// failures at startup are retried with backoff.
func NewPostgres(ctx context.Context, cfg Config, logger *zap.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}

	// Read-only role enforcement and per-connection statement timeout.
	runtimeParams := poolCfg.ConnConfig.RuntimeParams
	runtimeParams["default_transaction_read_only"] = "on"
	if cfg.StatementTimeoutMS > 0 {
		runtimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeoutMS)
	}

	pool, err := retry.DoWithResult(ctx, nil, func() (*pgxpool.Pool, error) {
		return pgxpool.NewWithConfig(ctx, poolCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}

	logger.Info("warehouse pool ready",
		zap.String("dsn", logging.SanitizeConnectionString(cfg.ConnString)),
		zap.Int32("max_conns", poolCfg.MaxConns))

	return &Postgres{pool: pool, logger: logger.Named("warehouse")}, nil
}

// Query runs a SELECT with a hard row bound.
func (p *Postgres) Query(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error) {
	return p.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT with a hard row bound. The
// statement is wrapped in a subquery LIMIT so the bound holds regardless of
// what the generator produced.
func (p *Postgres) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryResult, error) {
	queryToRun := sqlQuery
	if limit > 0 {
		// Fetch one extra row so the caller can detect truncation.
		queryToRun = fmt.Sprintf("SELECT * FROM (%s) AS _bounded LIMIT %d", sqlQuery, limit+1)
	}

	p.logger.Debug("executing query", zap.String("sql", logging.SanitizeQuery(queryToRun)))

	rows, err := p.pool.Query(ctx, queryToRun, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// Tables returns all user tables with planner row estimates.
func (p *Postgres) Tables(ctx context.Context) ([]TableInfo, error) {
	const query = `
		SELECT
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_name
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.RowCountHint); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// Columns returns columns for a table, with primary keys detected via
// pg_index so ORM-created keys are found too.
func (p *Postgres) Columns(ctx context.Context, tableName string) ([]ColumnInfo, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(pk.is_pk, false) AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE t.relname = $1 AND ix.indisprimary
		) pk ON pk.column_name = c.column_name
		WHERE c.table_name = $1
		ORDER BY c.ordinal_position
	`

	rows, err := p.pool.Query(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// ForeignKeys returns all foreign key relationships in the warehouse.
func (p *Postgres) ForeignKeys(ctx context.Context) ([]ForeignKeyInfo, error) {
	const query = `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		ORDER BY tc.table_name, kcu.column_name
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKeyInfo
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ensure Postgres implements both interfaces at compile time.
var (
	_ Executor     = (*Postgres)(nil)
	_ Introspector = (*Postgres)(nil)
)
