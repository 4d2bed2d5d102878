// Package clickhouse stores chain state in ClickHouse.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

// Repository is the chain state store of one chain. Each chain uses its own database.
type Repository struct {
	conn    Conn
	metrics Metrics
	coin    model.Coin
	network model.Network
	merge   *mergeupdate.Engine
}

func NewRepository(dsn string, coin model.Coin, network model.Network, metrics Metrics) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("clickhouse dsn is required")
	}

	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return newRepository(driverConn{conn}, coin, network, metrics), nil
}

func newRepository(conn Conn, coin model.Coin, network model.Network, metrics Metrics) *Repository {
	r := &Repository{conn: conn, metrics: metrics, coin: coin, network: network}
	r.merge = mergeupdate.New(r)
	return r
}

// driverConn narrows driver.Conn to Conn.
type driverConn struct {
	conn driver.Conn
}

func (c driverConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c driverConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c driverConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (c driverConn) Close() error {
	return c.conn.Close()
}

// Close closes the connection.
func (r *Repository) Close() error {
	return r.conn.Close()
}

func (r *Repository) observe(operation string, err error, started time.Time) {
	r.metrics.Observe(operation, r.coin, r.network, err, started)
}

// Exec runs a statement without results.
func (r *Repository) Exec(ctx context.Context, query string) error {
	if err := r.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// InsertRows appends rows to the writable columns of table in one batch.
func (r *Repository) InsertRows(ctx context.Context, table *schema.Table, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES", table.Name(), strings.Join(table.Writable(), ", "))
	batch, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s batch: %w", table.Name(), err)
	}
	defer func() {
		_ = batch.Abort()
	}()

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("append %s row: %w", table.Name(), err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert %s: %w", table.Name(), err)
	}
	return nil
}
