package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/carelens/carelens-engine/pkg/conversation"
	"github.com/carelens/carelens-engine/pkg/schema"
	"github.com/carelens/carelens-engine/pkg/warehouse"
)

// mockWarehouse implements warehouse.Executor with canned results.
type mockWarehouse struct {
	result   *warehouse.QueryResult
	err      error
	lastSQL  string
	queries  int
	blockFor time.Duration
}

func (m *mockWarehouse) Query(ctx context.Context, sqlQuery string, limit int) (*warehouse.QueryResult, error) {
	m.queries++
	m.lastSQL = sqlQuery
	if m.blockFor > 0 {
		select {
		case <-time.After(m.blockFor):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &warehouse.QueryResult{Columns: []string{}, Rows: []map[string]any{}}, nil
}

func (m *mockWarehouse) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*warehouse.QueryResult, error) {
	return m.Query(ctx, sqlQuery, limit)
}

func (m *mockWarehouse) Close() error { return nil }

var _ warehouse.Executor = (*mockWarehouse)(nil)

// mockIntrospector serves the standard warehouse layout for catalogue tests.
type mockIntrospector struct{}

func (mockIntrospector) Tables(ctx context.Context) ([]warehouse.TableInfo, error) {
	return []warehouse.TableInfo{
		{Name: "claims"}, {Name: "diagnoses"}, {Name: "services"},
		{Name: "providers"}, {Name: "facilities"}, {Name: "users"}, {Name: "states"},
	}, nil
}

func (mockIntrospector) Columns(ctx context.Context, table string) ([]warehouse.ColumnInfo, error) {
	byTable := map[string][]warehouse.ColumnInfo{
		"claims": {
			{Name: "id", DataType: "uuid", IsPrimary: true},
			{Name: "user_id", DataType: "uuid"},
			{Name: "provider_id", DataType: "uuid"},
			{Name: "total_amount", DataType: "numeric"},
			{Name: "created_at", DataType: "timestamp"},
		},
		"diagnoses": {
			{Name: "id", DataType: "uuid", IsPrimary: true},
			{Name: "claim_id", DataType: "uuid"},
			{Name: "name", DataType: "text"},
		},
		"services": {
			{Name: "id", DataType: "uuid", IsPrimary: true},
			{Name: "claim_id", DataType: "uuid"},
			{Name: "name", DataType: "text"},
		},
		"providers": {
			{Name: "id", DataType: "uuid", IsPrimary: true},
			{Name: "name", DataType: "text"},
			{Name: "code", DataType: "text"},
		},
		"facilities": {
			{Name: "id", DataType: "uuid", IsPrimary: true},
			{Name: "name", DataType: "text"},
		},
		"users": {
			{Name: "id", DataType: "uuid", IsPrimary: true},
			{Name: "state_id", DataType: "uuid"},
			{Name: "email", DataType: "text"},
		},
		"states": {
			{Name: "id", DataType: "uuid", IsPrimary: true},
			{Name: "name", DataType: "text"},
		},
	}
	return byTable[table], nil
}

func (mockIntrospector) ForeignKeys(ctx context.Context) ([]warehouse.ForeignKeyInfo, error) {
	return []warehouse.ForeignKeyInfo{
		{Table: "diagnoses", Column: "claim_id", ReferencedTable: "claims", ReferencedColumn: "id"},
		{Table: "services", Column: "claim_id", ReferencedTable: "claims", ReferencedColumn: "id"},
		{Table: "claims", Column: "user_id", ReferencedTable: "users", ReferencedColumn: "id"},
		{Table: "claims", Column: "provider_id", ReferencedTable: "providers", ReferencedColumn: "id"},
		{Table: "users", Column: "state_id", ReferencedTable: "states", ReferencedColumn: "id"},
	}, nil
}

func testCatalogue(t *testing.T) *schema.Catalogue {
	t.Helper()
	c := schema.NewCatalogue(zaptest.NewLogger(t))
	require.NoError(t, c.Refresh(context.Background(), mockIntrospector{}))
	return c
}

func testConversations(t *testing.T) *conversation.Store {
	t.Helper()
	s := conversation.NewStore(conversation.Config{HistoryCap: 20, TTL: time.Hour}, zaptest.NewLogger(t))
	t.Cleanup(s.Stop)
	return s
}
