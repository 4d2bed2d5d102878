package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

const sumType = "SimpleAggregateFunction(sum, Int64)"

var aggregating = schema.AggregatingMergeTree{}

var (
	balancesTable = schema.MustTable("balances", aggregating, []string{"address"},
		schema.Col("address", "String"),
		schema.Col(coinstate.Balance.Name(), sumType),
	)
	addrIncomeTable = schema.MustTable("addrincome", aggregating, []string{"address", "date", "coinbase"},
		schema.Col("address", "String"),
		schema.Col("date", "Date"),
		schema.Col("coinbase", "Int8"),
		schema.Col(coinstate.Received.Name(), sumType),
	)
	txViewTable = schema.MustTable("txview", aggregating, []string{"txid", "type", "address", "coinbase"},
		schema.Col("txid", hashType),
		schema.Col("type", "Enum8('input' = 0, 'output' = 1)"),
		schema.Col("address", "String"),
		schema.Col("coinbase", "Int8"),
		schema.Col(coinstate.SpentCount.Name(), sumType),
		schema.Col(coinstate.Unconfirmed.Name(), sumType),
		schema.Col(coinstate.Received.Name(), sumType),
		schema.Col(coinstate.Spending.Name(), sumType),
		schema.Col(coinstate.Spent.Name(), sumType),
		schema.Col(coinstate.Burned.Name(), sumType),
	)
	votesTable = schema.MustTable("votes", aggregating, []string{"type", "candidate"},
		schema.Col("type", "Enum8('for' = 0, 'against' = 1)"),
		schema.Col("candidate", "String"),
		schema.Col(coinstate.Votes.Name(), sumType),
	)
)

// derivedView is a materialized view over coins. Its select is built twice: once over the stored
// transition for the view and once over the transition masked to "from nothing" to backfill
// the latest version of every output.
type derivedView struct {
	name  string
	build func(stateTr schema.Expr) *schema.SelectQuery
}

type derivedTable struct {
	table *schema.Table
	views []derivedView
}

var (
	stateTrCol = schema.MustIdent("stateTr")
	valueCol   = schema.MustIdent("value")
)

func weighted(agg coinstate.Aggregate, stateTr schema.Expr) (schema.Expr, string) {
	return agg.Weighted(valueCol, stateTr), agg.Name()
}

func derivedTables() []derivedTable {
	txview := func(txid, io string, filter schema.Expr) func(schema.Expr) *schema.SelectQuery {
		return func(s schema.Expr) *schema.SelectQuery {
			typ, _ := schema.Enum(io)
			q := schema.Select(coinsTable).
				Column(schema.MustIdent(txid), "txid").
				Column(typ, "type").
				Columns("address", "coinbase").
				Column(coinstate.SpentCount.Clause(s), coinstate.SpentCount.Name())
			for _, agg := range []coinstate.Aggregate{
				coinstate.Unconfirmed, coinstate.Received, coinstate.Spending, coinstate.Spent, coinstate.Burned,
			} {
				q.Column(weighted(agg, s))
			}
			return q.Where(filter)
		}
	}
	votes := func(column, kind string) func(schema.Expr) *schema.SelectQuery {
		return func(s schema.Expr) *schema.SelectQuery {
			typ, _ := schema.Enum(kind)
			return schema.Select(coinsTable).
				Column(typ, "type").
				Column(schema.MustIdent(column), "candidate").
				Column(weighted(coinstate.Votes, s))
		}
	}

	return []derivedTable{
		{
			table: balancesTable,
			views: []derivedView{{name: "balances_mv", build: func(s schema.Expr) *schema.SelectQuery {
				return schema.Select(coinsTable).Columns("address").Column(weighted(coinstate.Balance, s))
			}}},
		},
		{
			table: addrIncomeTable,
			views: []derivedView{{name: "addrincome_mv", build: func(s schema.Expr) *schema.SelectQuery {
				return schema.Select(coinsTable).
					Columns("address").
					Column(schema.Call("toDate", schema.MustIdent("mintTime")), "date").
					Columns("coinbase").
					Column(weighted(coinstate.Received, s))
			}}},
		},
		{
			table: txViewTable,
			views: []derivedView{
				{name: "txview_mv_out", build: txview("mintTxid", "output", "")},
				{name: "txview_mv_in", build: txview("spentTxid", "input", schema.Binary(schema.MustIdent("spentTxid"), "!=", "''"))},
			},
		},
		{
			table: votesTable,
			views: []derivedView{
				{name: "votes_for_mv", build: votes("voteFor", "for")},
				{name: "votes_against_mv", build: votes("voteAgainst", "against")},
			},
		},
	}
}

// DerivedTables returns the aggregate tables maintained by materialized views over coins.
func DerivedTables() []*schema.Table {
	return []*schema.Table{balancesTable, addrIncomeTable, txViewTable, votesTable}
}

// EnsureDerivedTables creates missing aggregate tables, backfills them from the latest version of
// every output and attaches their materialized views. A table with any view missing is dropped and
// rebuilt along with its views. With recompute every aggregate table and view is rebuilt.
func (r *Repository) EnsureDerivedTables(ctx context.Context, recompute bool) (err error) {
	start := time.Now()
	defer func() {
		r.observe("ensure_derived_tables", err, start)
	}()

	for _, d := range derivedTables() {
		if !recompute {
			var complete bool
			if complete, err = r.derivedComplete(ctx, d); err != nil {
				return err
			}
			if complete {
				continue
			}
		}
		if err = r.dropDerived(ctx, d); err != nil {
			return err
		}
		if err = r.buildDerived(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// derivedComplete reports whether the table of d and all its views exist.
func (r *Repository) derivedComplete(ctx context.Context, d derivedTable) (bool, error) {
	names := []string{d.table.Name()}
	for _, v := range d.views {
		names = append(names, v.name)
	}
	for _, name := range names {
		exists, err := r.tableExists(ctx, name)
		if err != nil || !exists {
			return false, err
		}
	}
	return true, nil
}

func (r *Repository) buildDerived(ctx context.Context, d derivedTable) error {
	if err := r.Exec(ctx, d.table.CreateSQL(false)); err != nil {
		return fmt.Errorf("create %s: %w", d.table.Name(), err)
	}
	for _, v := range d.views {
		backfill, err := schema.InsertSelectSQL(d.table, v.build(coinstate.MaskedFromNothing(stateTrCol)).Final())
		if err != nil {
			return fmt.Errorf("backfill %s: %w", v.name, err)
		}
		if err = r.Exec(ctx, backfill); err != nil {
			return fmt.Errorf("backfill %s: %w", d.table.Name(), err)
		}
		view, err := schema.NewMaterializedView(v.name, d.table, v.build(stateTrCol))
		if err != nil {
			return err
		}
		create, err := view.CreateSQL()
		if err != nil {
			return err
		}
		if err = r.Exec(ctx, create); err != nil {
			return fmt.Errorf("create view %s: %w", v.name, err)
		}
	}
	return nil
}

// dropDerived removes the views of d before its table.
func (r *Repository) dropDerived(ctx context.Context, d derivedTable) error {
	for _, v := range d.views {
		if err := r.Exec(ctx, "DROP VIEW IF EXISTS "+v.name); err != nil {
			return fmt.Errorf("drop view %s: %w", v.name, err)
		}
	}
	if err := r.Exec(ctx, d.table.DropSQL()); err != nil {
		return fmt.Errorf("drop %s: %w", d.table.Name(), err)
	}
	return nil
}

// Optimize forces merges of the base tables so every key holds a single version.
func (r *Repository) Optimize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		r.observe("optimize", err, start)
	}()

	for _, t := range BaseTables() {
		if err = r.Exec(ctx, fmt.Sprintf("OPTIMIZE TABLE %s FINAL", t.Name())); err != nil {
			return fmt.Errorf("optimize %s: %w", t.Name(), err)
		}
	}
	return nil
}

// SweepStaging drops staging tables left behind by interrupted merges.
func (r *Repository) SweepStaging(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() {
		r.observe("sweep_staging", err, start)
	}()

	rows, err := r.conn.Query(ctx, `
SELECT name FROM system.tables
WHERE database = currentDatabase() AND startsWith(name, ?)`, mergeupdate.StagingPrefix)
	if err != nil {
		return 0, fmt.Errorf("query staging tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan staging table: %w", err)
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate staging tables: %w", err)
	}
	if err = rows.Close(); err != nil {
		return 0, fmt.Errorf("close rows: %w", err)
	}

	for _, name := range names {
		if err = schema.ValidIdent(name); err != nil {
			return n, err
		}
		if err = r.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return n, fmt.Errorf("drop %s: %w", name, err)
		}
		n++
	}
	return n, nil
}

func (r *Repository) tableExists(ctx context.Context, name string) (exists bool, err error) {
	rows, err := r.conn.Query(ctx, `
SELECT count() FROM system.tables
WHERE database = currentDatabase() AND name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("query table %s: %w", name, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	var count uint64
	if !rows.Next() {
		return false, rows.Err()
	}
	if err = rows.Scan(&count); err != nil {
		return false, fmt.Errorf("scan table %s: %w", name, err)
	}
	return count > 0, nil
}
