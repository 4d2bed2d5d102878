package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Projection is one output column of a select.
type Projection struct {
	Expr Expr
	As   string
}

// SelectQuery renders SELECT ... FROM table [FINAL] [WHERE ...].
// Construction errors are collected and reported by SQL.
type SelectQuery struct {
	from        *Table
	projections []Projection
	final       bool
	where       Expr
	err         error
}

// Select starts a select over the table.
func Select(from *Table) *SelectQuery {
	q := &SelectQuery{from: from}
	if from == nil {
		q.err = fmt.Errorf("%w: select without table", ErrInvalidValue)
	}
	return q
}

// Column adds expr AS as.
func (q *SelectQuery) Column(expr Expr, as string) *SelectQuery {
	if err := ValidIdent(as); err != nil {
		q.err = errors.Join(q.err, err)
		return q
	}
	q.projections = append(q.projections, Projection{Expr: expr, As: as})
	return q
}

// Columns adds every named column of the source table as itself.
func (q *SelectQuery) Columns(names ...string) *SelectQuery {
	for _, name := range names {
		if q.from != nil && !q.from.Has(name) {
			q.err = errors.Join(q.err, fmt.Errorf("%w: %s has no column %s", ErrInvalidIdent, q.from.Name(), name))
			continue
		}
		q.Column(Expr(name), name)
	}
	return q
}

// Final reads merged rows only.
func (q *SelectQuery) Final() *SelectQuery {
	q.final = true
	return q
}

// Where sets the filter.
func (q *SelectQuery) Where(cond Expr) *SelectQuery {
	q.where = cond
	return q
}

// Projections returns the configured output columns.
func (q *SelectQuery) Projections() []Projection {
	return append([]Projection(nil), q.projections...)
}

// SQL renders the query.
func (q *SelectQuery) SQL() (string, error) {
	if q.err != nil {
		return "", q.err
	}
	if len(q.projections) == 0 {
		return "", fmt.Errorf("%w: select from %s has no columns", ErrInvalidValue, q.from.Name())
	}
	parts := make([]string, len(q.projections))
	for i, p := range q.projections {
		parts[i] = fmt.Sprintf("\t%s AS %s", p.Expr, p.As)
	}
	var b strings.Builder
	b.WriteString("SELECT\n")
	b.WriteString(strings.Join(parts, ",\n"))
	b.WriteString("\nFROM ")
	b.WriteString(q.from.Name())
	if q.final {
		b.WriteString(" FINAL")
	}
	if q.where != "" {
		b.WriteString("\nWHERE ")
		b.WriteString(string(q.where))
	}
	return b.String(), nil
}

// MaterializedView forwards inserts into a source table to a target table through a select.
type MaterializedView struct {
	name  string
	to    *Table
	query *SelectQuery
}

// NewMaterializedView validates that the select produces every writable column of the target.
func NewMaterializedView(name string, to *Table, query *SelectQuery) (*MaterializedView, error) {
	if err := ValidIdent(name); err != nil {
		return nil, err
	}
	if query.err != nil {
		return nil, fmt.Errorf("view %s: %w", name, query.err)
	}
	produced := make(map[string]struct{}, len(query.projections))
	for _, p := range query.projections {
		if !to.Has(p.As) {
			return nil, fmt.Errorf("%w: view %s produces %s unknown to %s", ErrInvalidIdent, name, p.As, to.Name())
		}
		produced[p.As] = struct{}{}
	}
	for _, col := range to.Writable() {
		if _, ok := produced[col]; !ok {
			return nil, fmt.Errorf("%w: view %s does not produce %s.%s", ErrInvalidIdent, name, to.Name(), col)
		}
	}
	return &MaterializedView{name: name, to: to, query: query}, nil
}

// MustMaterializedView is NewMaterializedView for package level definitions.
func MustMaterializedView(name string, to *Table, query *SelectQuery) *MaterializedView {
	v, err := NewMaterializedView(name, to, query)
	if err != nil {
		panic(err)
	}
	return v
}

// Name returns the view name.
func (v *MaterializedView) Name() string { return v.name }

// Target returns the table receiving the view's rows.
func (v *MaterializedView) Target() *Table { return v.to }

// Query returns the view's select.
func (v *MaterializedView) Query() *SelectQuery { return v.query }

// CreateSQL renders CREATE MATERIALIZED VIEW IF NOT EXISTS.
func (v *MaterializedView) CreateSQL() (string, error) {
	sel, err := v.query.SQL()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s TO %s AS\n%s", v.name, v.to.Name(), sel), nil
}

// DropSQL renders DROP VIEW IF EXISTS.
func (v *MaterializedView) DropSQL() string {
	return "DROP VIEW IF EXISTS " + v.name
}

// InsertSelectSQL renders INSERT INTO target (cols) <select>.
func InsertSelectSQL(to *Table, query *SelectQuery) (string, error) {
	sel, err := query.SQL()
	if err != nil {
		return "", err
	}
	cols := make([]string, len(query.projections))
	for i, p := range query.projections {
		if !to.Has(p.As) {
			return "", fmt.Errorf("%w: %s has no column %s", ErrInvalidIdent, to.Name(), p.As)
		}
		cols[i] = p.As
	}
	return fmt.Sprintf("INSERT INTO %s (%s)\n%s", to.Name(), strings.Join(cols, ", "), sel), nil
}
