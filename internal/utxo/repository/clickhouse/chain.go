package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

// latestEntries selects the latest state of every (height, hash) pair.
const latestEntries = `
SELECT
	height,
	hash,
	argMax(state, dateMs) AS latestState,
	max(dateMs) AS latestMs
FROM chain
GROUP BY height, hash`

// InsertChainEntries appends chain entry versions.
func (r *Repository) InsertChainEntries(ctx context.Context, entries []model.ChainEntry) (err error) {
	start := time.Now()
	defer func() {
		r.observe("insert_chain_entries", err, start)
	}()

	rows := make([][]any, len(entries))
	for i, e := range entries {
		if err = schema.ValidHeight(e.Height); err != nil {
			return fmt.Errorf("chain entry %s: %w", e.Hash, err)
		}
		rows[i] = []any{int32(e.Height), e.Hash, string(e.State), e.InsertedAtMs}
	}
	if err = r.InsertRows(ctx, chainTable, rows); err != nil {
		return fmt.Errorf("insert chain entries: %w", err)
	}
	return nil
}

// Tip returns the highest live block, committed or not, or model.EmptyTip.
func (r *Repository) Tip(ctx context.Context) (model.Tip, error) {
	return r.tip(ctx, "tip", "latestState != 'reverted'")
}

// CommittedTip returns the highest block whose coin deltas are fully applied, or model.EmptyTip.
func (r *Repository) CommittedTip(ctx context.Context) (model.Tip, error) {
	return r.tip(ctx, "committed_tip", "latestState = 'complete'")
}

func (r *Repository) tip(ctx context.Context, operation, cond string) (tip model.Tip, err error) {
	start := time.Now()
	defer func() {
		r.observe(operation, err, start)
	}()

	query := fmt.Sprintf(`
SELECT height, hash, toString(latestState)
FROM (%s)
WHERE %s
ORDER BY height DESC, latestMs DESC
LIMIT 1`, latestEntries, cond)

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return model.EmptyTip, fmt.Errorf("query %s: %w", operation, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return model.EmptyTip, fmt.Errorf("iterate %s: %w", operation, err)
		}
		return model.EmptyTip, nil
	}

	var (
		height int32
		hash   string
		state  string
	)
	if err = rows.Scan(&height, &hash, &state); err != nil {
		return model.EmptyTip, fmt.Errorf("scan %s: %w", operation, err)
	}
	return model.Tip{Height: int64(height), Hash: hash, State: model.ChainState(state)}, nil
}

// LiveEntriesAbove returns the non-reverted entries above height, lowest first.
func (r *Repository) LiveEntriesAbove(ctx context.Context, height int64) (entries []model.ChainEntry, err error) {
	start := time.Now()
	defer func() {
		r.observe("live_entries_above", err, start)
	}()

	query := fmt.Sprintf(`
SELECT height, hash, toString(latestState), latestMs
FROM (%s)
WHERE latestState != 'reverted' AND height > ?
ORDER BY height, latestMs`, latestEntries)

	rows, err := r.conn.Query(ctx, query, int32(max(height, -1)))
	if err != nil {
		return nil, fmt.Errorf("query live entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var (
			h     int32
			e     model.ChainEntry
			state string
		)
		if err = rows.Scan(&h, &e.Hash, &state, &e.InsertedAtMs); err != nil {
			return nil, fmt.Errorf("scan live entry: %w", err)
		}
		e.Height = int64(h)
		e.State = model.ChainState(state)
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live entries: %w", err)
	}
	return entries, nil
}

// MissingHeights returns up to limit heights in [0, tip] without a complete live entry.
func (r *Repository) MissingHeights(ctx context.Context, tip int64, limit int) (heights []int64, err error) {
	start := time.Now()
	defer func() {
		r.observe("missing_heights", err, start)
	}()

	if tip < 0 {
		return nil, nil
	}
	if err = schema.ValidHeight(tip); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT toInt32(number) AS h
FROM numbers(%d)
WHERE h NOT IN (
	SELECT height FROM (%s)
	WHERE latestState = 'complete'
)
ORDER BY h
LIMIT ?`, tip+1, latestEntries)

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query missing heights: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var h int32
		if err = rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan missing height: %w", err)
		}
		heights = append(heights, int64(h))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missing heights: %w", err)
	}
	return heights, nil
}
