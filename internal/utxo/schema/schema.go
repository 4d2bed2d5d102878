// Package schema describes ClickHouse tables, materialized views and selects as typed values.
// Identifiers are validated when a definition is built, so rendered SQL never carries unchecked names.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidIdent = errors.New("invalid identifier")
	ErrInvalidHash  = errors.New("invalid hash")
	ErrInvalidValue = errors.New("invalid value")
)

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)
	hashPattern  = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	// Column types are a closed vocabulary of ClickHouse type expressions.
	typePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*(\([A-Za-z0-9_ ,'=()-]*\))?$`)
)

// ValidIdent checks a table, column or alias name.
func ValidIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdent, name)
	}
	return nil
}

// ValidHash checks a 32-byte hex encoded hash.
func ValidHash(hash string) error {
	if !hashPattern.MatchString(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return nil
}

// ValidHashes checks every hash in the list.
func ValidHashes(hashes []string) error {
	for _, h := range hashes {
		if err := ValidHash(h); err != nil {
			return err
		}
	}
	return nil
}

// ValidHeight checks a block height fits the Int32 height columns.
func ValidHeight(height int64) error {
	if height < 0 || height > 1<<31-1 {
		return fmt.Errorf("%w: height %d", ErrInvalidValue, height)
	}
	return nil
}

// Column is a table column. A non-empty Alias makes it an ALIAS column that cannot be written.
type Column struct {
	Name  string
	Type  string
	Alias Expr
}

// Col declares a regular column.
func Col(name, typ string) Column {
	return Column{Name: name, Type: typ}
}

// AliasCol declares an ALIAS column computed from expr.
func AliasCol(name, typ string, expr Expr) Column {
	return Column{Name: name, Type: typ, Alias: expr}
}

// Writable reports whether the column accepts inserts.
func (c Column) Writable() bool {
	return c.Alias == ""
}

func (c Column) validate() error {
	if err := ValidIdent(c.Name); err != nil {
		return err
	}
	if !typePattern.MatchString(c.Type) {
		return fmt.Errorf("%w: column %s type %q", ErrInvalidValue, c.Name, c.Type)
	}
	return nil
}

func (c Column) definition() string {
	if c.Alias != "" {
		return fmt.Sprintf("%s %s ALIAS %s", c.Name, c.Type, c.Alias)
	}
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// Engine is a table engine clause.
type Engine interface {
	clause() string
	validate(t *Table) error
}

// ReplacingMergeTree keeps the row with the greatest Version column per ordering key.
type ReplacingMergeTree struct {
	Version string
}

func (e ReplacingMergeTree) clause() string {
	return fmt.Sprintf("ReplacingMergeTree(%s)", e.Version)
}

func (e ReplacingMergeTree) validate(t *Table) error {
	if _, ok := t.Column(e.Version); !ok {
		return fmt.Errorf("%w: version column %q missing from %s", ErrInvalidIdent, e.Version, t.name)
	}
	if len(t.orderBy) == 0 {
		return fmt.Errorf("%w: %s needs an ordering key", ErrInvalidValue, t.name)
	}
	return nil
}

// AggregatingMergeTree sums aggregate columns of rows sharing the ordering key.
type AggregatingMergeTree struct{}

func (AggregatingMergeTree) clause() string {
	return "AggregatingMergeTree()"
}

func (AggregatingMergeTree) validate(t *Table) error {
	if len(t.orderBy) == 0 {
		return fmt.Errorf("%w: %s needs an ordering key", ErrInvalidValue, t.name)
	}
	return nil
}

// Memory keeps rows in RAM; used for short-lived staging tables.
type Memory struct{}

func (Memory) clause() string {
	return "Memory"
}

func (Memory) validate(*Table) error {
	return nil
}

// Table is a validated table definition.
type Table struct {
	name    string
	columns []Column
	index   map[string]int
	engine  Engine
	orderBy []string
}

// NewTable validates and builds a table definition.
func NewTable(name string, engine Engine, orderBy []string, columns ...Column) (*Table, error) {
	if err := ValidIdent(name); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table %s has no columns", ErrInvalidValue, name)
	}
	t := &Table{
		name:    name,
		columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
		engine:  engine,
		orderBy: append([]string(nil), orderBy...),
	}
	for i, c := range columns {
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %s in %s", ErrInvalidIdent, c.Name, name)
		}
		t.index[c.Name] = i
	}
	for _, key := range orderBy {
		c, ok := t.Column(key)
		if !ok || !c.Writable() {
			return nil, fmt.Errorf("%w: ordering column %q missing from %s", ErrInvalidIdent, key, name)
		}
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: table %s has no engine", ErrInvalidValue, name)
	}
	if err := engine.validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// MustTable is NewTable for package level definitions.
func MustTable(name string, engine Engine, orderBy []string, columns ...Column) *Table {
	t, err := NewTable(name, engine, orderBy, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// OrderBy returns the ordering key columns.
func (t *Table) OrderBy() []string { return append([]string(nil), t.orderBy...) }

// Columns returns every column including aliases.
func (t *Table) Columns() []Column { return append([]Column(nil), t.columns...) }

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Has reports whether the table has a column with the name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Writable returns the names of insertable columns in declaration order.
func (t *Table) Writable() []string {
	out := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if c.Writable() {
			out = append(out, c.Name)
		}
	}
	return out
}

// Version returns the version column of a ReplacingMergeTree table, or "".
func (t *Table) Version() string {
	if e, ok := t.engine.(ReplacingMergeTree); ok {
		return e.Version
	}
	return ""
}

// Staging derives a Memory table with the writable columns of t under a new name.
func (t *Table) Staging(name string) (*Table, error) {
	columns := make([]Column, 0, len(t.columns))
	for _, c := range t.columns {
		if c.Writable() {
			columns = append(columns, c)
		}
	}
	return NewTable(name, Memory{}, nil, columns...)
}

// CreateSQL renders CREATE TABLE.
func (t *Table) CreateSQL(ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(t.name)
	b.WriteString(" (\n")
	for i, c := range t.columns {
		b.WriteString("\t")
		b.WriteString(c.definition())
		if i < len(t.columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(") ENGINE = ")
	b.WriteString(t.engine.clause())
	if len(t.orderBy) > 0 {
		b.WriteString("\nORDER BY (")
		b.WriteString(strings.Join(t.orderBy, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// DropSQL renders DROP TABLE IF EXISTS.
func (t *Table) DropSQL() string {
	return "DROP TABLE IF EXISTS " + t.name
}
