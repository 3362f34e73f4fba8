package types

import (
	"strings"
	"time"
)

// Row is a partial or complete table row keyed by column name.
type Row map[string]any

// RowSet accumulates rows per table across a whole generation run.
type RowSet map[string][]Row

// FieldMeta is the per-output-column metadata the driver reported for a
// captured query. TableOID is 0 for calculated columns.
type FieldMeta struct {
	Name       string `json:"name"`
	TableOID   uint32 `json:"tableOID"`
	ColumnAttr int    `json:"columnAttr"`
}

// CapturedQuery is one recorded query execution produced by the external
// interception layer. Consumed read-only.
type CapturedQuery struct {
	Query     string      `json:"query"`
	Params    []any       `json:"params"`
	Rows      []Row       `json:"rows"`
	Fields    []FieldMeta `json:"fields"`
	Database  string      `json:"database"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

type SchemaColumn struct {
	Name     string
	Type     string
	Nullable bool
}

type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

type UniqueIndex struct {
	Name    string
	Columns []string
}

type SchemaTable struct {
	Name          string
	Columns       []SchemaColumn
	PrimaryKey    []string
	ForeignKeys   []ForeignKey
	UniqueIndexes []UniqueIndex
}

func (t *SchemaTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// SelfReferences returns the foreign keys of t that point back at t itself.
func (t *SchemaTable) SelfReferences() []ForeignKey {
	var fks []ForeignKey
	for _, fk := range t.ForeignKeys {
		if strings.EqualFold(fk.RefTable, t.Name) {
			fks = append(fks, fk)
		}
	}
	return fks
}

// Schema is the live-schema snapshot, keyed by lowercased table name.
type Schema map[string]*SchemaTable

func (s Schema) Table(name string) *SchemaTable {
	return s[strings.ToLower(name)]
}

func (s Schema) Has(name string) bool {
	_, ok := s[strings.ToLower(name)]
	return ok
}

func (s Schema) Add(t *SchemaTable) {
	s[strings.ToLower(t.Name)] = t
}

type ValueShape string

const (
	ShapeScalar     ValueShape = "scalar"
	ShapeCollection ValueShape = "collection"
)

// ColumnMapping attributes a calculated output column to a real table and
// column, plus the sibling values needed to reconstruct a full row.
// Siblings maps an output column name of the same query to a column on the
// target table. ParamSiblings maps a target-table column to the 1-based
// positional parameter that carried its value. ParentLookups (manual
// overrides only) defers cross-table value resolution until after enrichment.
type ColumnMapping struct {
	Table         string            `yaml:"table" json:"table"`
	Column        string            `yaml:"column" json:"column"`
	Shape         ValueShape        `yaml:"shape" json:"shape"`
	Siblings      map[string]string `yaml:"siblings,omitempty" json:"siblings,omitempty"`
	ParamSiblings map[string]int    `yaml:"paramSiblings,omitempty" json:"paramSiblings,omitempty"`
	ParentLookups map[string]string `yaml:"parentLookups,omitempty" json:"parentLookups,omitempty"`
}
