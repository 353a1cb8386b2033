// Package schema holds the warehouse schema catalogue: table and column
// metadata, domain tags, and the keyword index used for natural-language
// table hinting. The catalogue is read-only during request processing;
// refreshes swap the whole snapshot atomically.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/warehouse"
)

// Column describes one column of a catalogued table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// ForeignKey describes a relationship from a column to another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableSchema is the catalogued metadata for one table.
type TableSchema struct {
	Name         string
	Columns      []Column
	PrimaryKey   string
	ForeignKeys  []ForeignKey
	RowCountHint int64
}

// DomainTag classifies a table for the domain router. Tables outside the
// two analytical domains that still participate in joins (users, states)
// are tagged supporting.
type DomainTag string

const (
	TagClinical   DomainTag = "clinical_claims_diagnosis"
	TagProviders  DomainTag = "providers_facilities"
	TagSupporting DomainTag = "supporting"
	TagUnknown    DomainTag = "unknown"
)

// defaultDomainMap tags the warehouse tables. Tables introspected but not
// listed here come back TagUnknown and are never offered to the generator.
var defaultDomainMap = map[string]DomainTag{
	"claims":     TagClinical,
	"diagnoses":  TagClinical,
	"services":   TagClinical,
	"providers":  TagProviders,
	"facilities": TagProviders,
	"users":      TagSupporting,
	"states":     TagSupporting,
}

// defaultKeywordIndex maps utterance keywords to tables. Extended at build
// time with each table's own name and singular form.
var defaultKeywordIndex = map[string][]string{
	"diagnosis":  {"diagnoses"},
	"diagnoses":  {"diagnoses"},
	"disease":    {"diagnoses", "claims"},
	"diseases":   {"diagnoses", "claims"},
	"condition":  {"diagnoses"},
	"claim":      {"claims"},
	"claims":     {"claims"},
	"service":    {"services"},
	"services":   {"services"},
	"procedure":  {"services"},
	"treatment":  {"services"},
	"provider":   {"providers"},
	"providers":  {"providers"},
	"doctor":     {"providers"},
	"physician":  {"providers"},
	"hospital":   {"facilities"},
	"facility":   {"facilities"},
	"facilities": {"facilities"},
	"clinic":     {"facilities"},
	"state":      {"states"},
	"states":     {"states"},
	"region":     {"states"},
	"patient":    {"users"},
	"patients":   {"users"},
	"member":     {"users"},
	"enrollee":   {"users"},
}

// piiColumns are column names whose values are personally identifying.
// Exposure is blocked by the validator and masked by the sanitizer.
var piiColumns = map[string]bool{
	"email":         true,
	"phone":         true,
	"phone_number":  true,
	"date_of_birth": true,
	"dob":           true,
	"address":       true,
	"ssn":           true,
	"national_id":   true,
	"first_name":    true,
	"last_name":     true,
	"full_name":     true,
}

// snapshot is one immutable catalogue build. Refreshes replace the whole
// value.
type snapshot struct {
	tables       map[string]*TableSchema
	domains      map[string]DomainTag
	keywordIndex map[string][]string
}

// Catalogue is the process-wide schema catalogue.
type Catalogue struct {
	current atomic.Pointer[snapshot]
	logger  *zap.Logger
}

// NewCatalogue creates an empty catalogue. Call Refresh before serving.
func NewCatalogue(logger *zap.Logger) *Catalogue {
	c := &Catalogue{logger: logger.Named("catalogue")}
	c.current.Store(&snapshot{
		tables:       map[string]*TableSchema{},
		domains:      defaultDomainMap,
		keywordIndex: defaultKeywordIndex,
	})
	return c
}

// Refresh introspects the warehouse and swaps in a new snapshot. Requests
// in flight keep reading the old snapshot until the swap completes.
func (c *Catalogue) Refresh(ctx context.Context, intro warehouse.Introspector) error {
	tables, err := intro.Tables(ctx)
	if err != nil {
		return fmt.Errorf("introspect tables: %w", err)
	}

	fks, err := intro.ForeignKeys(ctx)
	if err != nil {
		return fmt.Errorf("introspect foreign keys: %w", err)
	}
	fksByTable := make(map[string][]ForeignKey)
	for _, fk := range fks {
		fksByTable[fk.Table] = append(fksByTable[fk.Table], ForeignKey{
			Column:    fk.Column,
			RefTable:  fk.ReferencedTable,
			RefColumn: fk.ReferencedColumn,
		})
	}

	next := &snapshot{
		tables:       make(map[string]*TableSchema, len(tables)),
		domains:      defaultDomainMap,
		keywordIndex: extendKeywordIndex(tables),
	}

	for _, t := range tables {
		cols, err := intro.Columns(ctx, t.Name)
		if err != nil {
			return fmt.Errorf("introspect columns for %s: %w", t.Name, err)
		}

		ts := &TableSchema{
			Name:         t.Name,
			RowCountHint: t.RowCountHint,
			ForeignKeys:  fksByTable[t.Name],
		}
		for _, col := range cols {
			ts.Columns = append(ts.Columns, Column{
				Name:     col.Name,
				Type:     col.DataType,
				Nullable: col.IsNullable,
			})
			if col.IsPrimary {
				ts.PrimaryKey = col.Name
			}
		}
		next.tables[t.Name] = ts
	}

	c.current.Store(next)
	c.logger.Info("schema catalogue refreshed", zap.Int("tables", len(next.tables)))
	return nil
}

// extendKeywordIndex copies the static index and adds each table's own name
// and its singular form as keywords for itself.
func extendKeywordIndex(tables []warehouse.TableInfo) map[string][]string {
	index := make(map[string][]string, len(defaultKeywordIndex)+2*len(tables))
	for k, v := range defaultKeywordIndex {
		index[k] = v
	}
	for _, t := range tables {
		name := strings.ToLower(t.Name)
		for _, kw := range []string{name, inflection.Singular(name)} {
			if _, ok := index[kw]; !ok {
				index[kw] = []string{t.Name}
			}
		}
	}
	return index
}

// Describe returns the schema for one table, or nil when unknown.
func (c *Catalogue) Describe(table string) *TableSchema {
	return c.current.Load().tables[strings.ToLower(table)]
}

// Tables returns all catalogued table names, sorted.
func (c *Catalogue) Tables() []string {
	snap := c.current.Load()
	names := make([]string, 0, len(snap.tables))
	for name := range snap.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DomainOf returns the domain tag for a table.
func (c *Catalogue) DomainOf(table string) DomainTag {
	if tag, ok := c.current.Load().domains[strings.ToLower(table)]; ok {
		return tag
	}
	return TagUnknown
}

// TablesFor scans the utterance for indexed keywords and returns the
// detected tables in first-mention order, without duplicates.
func (c *Catalogue) TablesFor(utterance string) []string {
	snap := c.current.Load()
	words := tokenize(utterance)

	seen := make(map[string]bool)
	var tables []string
	for _, word := range words {
		for _, table := range snap.keywordIndex[word] {
			if !seen[table] {
				seen[table] = true
				tables = append(tables, table)
			}
		}
	}
	return tables
}

// DomainTables returns the tables belonging to a pipeline domain, including
// supporting tables, sorted for stable prompt construction.
func (c *Catalogue) DomainTables(domain models.Domain) []string {
	var want DomainTag
	switch domain {
	case models.DomainClinicalClaims:
		want = TagClinical
	case models.DomainProvidersFacilities:
		want = TagProviders
	default:
		return nil
	}

	snap := c.current.Load()
	var tables []string
	for name := range snap.tables {
		tag := snap.domains[name]
		if tag == want || tag == TagSupporting {
			tables = append(tables, name)
		}
	}
	sort.Strings(tables)
	return tables
}

// PromptSchema renders the schema slice for the given tables in the compact
// form fed to the generator prompt.
func (c *Catalogue) PromptSchema(tables []string) string {
	snap := c.current.Load()
	var b strings.Builder
	for _, name := range tables {
		ts, ok := snap.tables[name]
		if !ok {
			continue
		}
		b.WriteString(ts.Name)
		b.WriteString(" (")
		for i, col := range ts.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			b.WriteString(" ")
			b.WriteString(col.Type)
		}
		b.WriteString(")")
		for _, fk := range ts.ForeignKeys {
			b.WriteString(fmt.Sprintf("\n  %s.%s -> %s.%s", ts.Name, fk.Column, fk.RefTable, fk.RefColumn))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// IsPIIColumn reports whether a column name is classified as personally
// identifying.
func IsPIIColumn(column string) bool {
	return piiColumns[strings.ToLower(column)]
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
}
