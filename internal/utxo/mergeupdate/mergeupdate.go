// Package mergeupdate updates rows of an insert-only ReplacingMergeTree table.
//
// Rows are staged in a temporary Memory table, joined against the latest stored version of each key
// and the combined rows are inserted as new versions. The steps are not transactional: a failure can
// leave an orphaned staging table, and a failed merge statement may have inserted the combined rows
// of some keys only. Callers re-apply the same deltas to finish a partial merge.
package mergeupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

// StagingPrefix starts the name of every staging table.
const StagingPrefix = "tmp_"

const selectionAlias = "selection"

// Store executes statements against the analytical store.
type Store interface {
	Exec(ctx context.Context, query string) error
	InsertRows(ctx context.Context, table *schema.Table, rows [][]any) error
}

// Row is one staged row. Values must follow the writable columns of the staging shape.
type Row interface {
	MergeKey() string
	Values() []any
}

// Deltas are rows sharing one staging shape.
type Deltas struct {
	Shape *schema.Table
	Rows  []Row
}

// Engine runs merge updates.
type Engine struct {
	store   Store
	newName func() string
}

// New creates an engine writing through store.
func New(store Store) *Engine {
	return &Engine{
		store: store,
		newName: func() string {
			return StagingPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// ApplyDeltas merges deltas into target. keys are the columns identifying a row in both tables.
// Rows with the same MergeKey collapse to the first one observed.
func (e *Engine) ApplyDeltas(ctx context.Context, target *schema.Table, keys []string, deltas Deltas, combiner Combiner) (err error) {
	rows := Dedupe(deltas.Rows)
	if len(rows) == 0 {
		return nil
	}
	if deltas.Shape == nil {
		return fmt.Errorf("%w: deltas for %s without staging shape", schema.ErrInvalidValue, target.Name())
	}

	staging, err := deltas.Shape.Staging(e.newName())
	if err != nil {
		return fmt.Errorf("staging table: %w", err)
	}
	query, err := MergeSQL(target, staging, keys, combiner)
	if err != nil {
		return err
	}

	width := len(staging.Writable())
	values := make([][]any, len(rows))
	for i, r := range rows {
		v := r.Values()
		if len(v) != width {
			return fmt.Errorf("%w: row %s has %d values, %s expects %d", schema.ErrInvalidValue, r.MergeKey(), len(v), deltas.Shape.Name(), width)
		}
		values[i] = v
	}

	if err := e.store.Exec(ctx, staging.CreateSQL(false)); err != nil {
		return fmt.Errorf("create %s: %w", staging.Name(), err)
	}
	defer func() {
		if dropErr := e.store.Exec(context.WithoutCancel(ctx), staging.DropSQL()); dropErr != nil {
			err = errors.Join(err, fmt.Errorf("drop %s: %w", staging.Name(), dropErr))
		}
	}()

	if err := e.store.InsertRows(ctx, staging, values); err != nil {
		return fmt.Errorf("stage %s rows: %w", deltas.Shape.Name(), err)
	}
	if err := e.store.Exec(ctx, query); err != nil {
		return fmt.Errorf("merge into %s: %w", target.Name(), err)
	}
	return nil
}

// Dedupe keeps the first row of every merge key, preserving order.
func Dedupe(rows []Row) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		k := r.MergeKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// MergeSQL renders the statement inserting combined rows of staging into target.
func MergeSQL(target, staging *schema.Table, keys []string, combiner Combiner) (string, error) {
	version := target.Version()
	if version == "" {
		return "", fmt.Errorf("%w: %s has no version column", schema.ErrInvalidValue, target.Name())
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: merge into %s without keys", schema.ErrInvalidValue, target.Name())
	}
	on := make([]string, len(keys))
	for i, k := range keys {
		if c, ok := target.Column(k); !ok || !c.Writable() {
			return "", fmt.Errorf("%w: %s has no key column %s", schema.ErrInvalidIdent, target.Name(), k)
		}
		if !staging.Has(k) {
			return "", fmt.Errorf("%w: %s has no key column %s", schema.ErrInvalidIdent, staging.Name(), k)
		}
		on[i] = fmt.Sprintf("%s.%s = %s.%s", selectionAlias, k, staging.Name(), k)
	}
	for col := range combiner {
		if !target.Has(col) {
			return "", fmt.Errorf("%w: combiner column %s unknown to %s", schema.ErrInvalidIdent, col, target.Name())
		}
	}
	for _, col := range staging.Writable() {
		if c, ok := target.Column(col); !ok || !c.Writable() {
			return "", fmt.Errorf("%w: staged column %s not writable in %s", schema.ErrInvalidIdent, col, target.Name())
		}
	}

	columns := target.Writable()
	exprs := make([]string, len(columns))
	for i, col := range columns {
		existing, err := schema.Qualified(selectionAlias, col)
		if err != nil {
			return "", err
		}
		expr := existing
		if staging.Has(col) {
			incoming, err := schema.Qualified(staging.Name(), col)
			if err != nil {
				return "", err
			}
			expr = incoming
			if rule, ok := combiner[col]; ok {
				expr = rule(existing, incoming)
			}
		}
		exprs[i] = fmt.Sprintf("\t%s AS %s", expr, col)
	}

	keyList := strings.Join(keys, ", ")
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", target.Name(), strings.Join(columns, ", "))
	b.WriteString("SELECT\n")
	b.WriteString(strings.Join(exprs, ",\n"))
	b.WriteString("\nFROM (\n")
	fmt.Fprintf(&b, "\tSELECT * FROM %s\n", target.Name())
	fmt.Fprintf(&b, "\tWHERE (%s) IN (SELECT %s FROM %s)\n", keyList, keyList, staging.Name())
	fmt.Fprintf(&b, "\tORDER BY %s, %s DESC\n", keyList, version)
	fmt.Fprintf(&b, "\tLIMIT 1 BY %s\n", keyList)
	fmt.Fprintf(&b, ") AS %s\n", selectionAlias)
	fmt.Fprintf(&b, "RIGHT JOIN %s ON %s", staging.Name(), strings.Join(on, " AND "))
	return b.String(), nil
}
