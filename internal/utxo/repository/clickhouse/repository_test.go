package clickhouse

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

var (
	testCoin    = model.PKT
	testNetwork = model.Mainnet
)

func newMockedRepository(conn Conn, metrics Metrics) *Repository {
	return newRepository(conn, testCoin, testNetwork, metrics)
}

// expectObserve expects one observation of operation. A nil want expects success.
func expectObserve(t *testing.T, metrics *MockMetrics, operation string, want error) *gomock.Call {
	t.Helper()
	if want == nil {
		return metrics.EXPECT().
			Observe(operation, testCoin, testNetwork, nil, gomock.AssignableToTypeOf(time.Time{}))
	}
	return metrics.EXPECT().
		Observe(operation, testCoin, testNetwork, gomock.Any(), gomock.AssignableToTypeOf(time.Time{})).
		Do(func(_ string, _ model.Coin, _ model.Network, err error, _ time.Time) {
			if !errors.Is(err, want) {
				t.Errorf("unexpected error propagated to metrics: %v", err)
			}
		})
}

// expectRows yields records in order and then ends the result set.
func expectRows(ctrl *gomock.Controller, records [][]any, iterErr, closeErr error) *MockRows {
	rows := NewMockRows(ctrl)
	calls := make([]*gomock.Call, 0, 2*len(records)+3)
	for _, rec := range records {
		rec := rec
		calls = append(calls,
			rows.EXPECT().Next().Return(true),
			rows.EXPECT().Scan(anyArgs(len(rec))...).DoAndReturn(func(dest ...any) error {
				assign(dest, rec)
				return nil
			}),
		)
	}
	calls = append(calls,
		rows.EXPECT().Next().Return(false),
		rows.EXPECT().Err().Return(iterErr),
		rows.EXPECT().Close().Return(closeErr),
	)
	gomock.InOrder(calls...)
	return rows
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = gomock.Any()
	}
	return out
}

func assign(dest, values []any) {
	for i, v := range values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
}

type prefixMatcher string

// hasPrefix matches statements starting with p.
func hasPrefix(p string) gomock.Matcher {
	return prefixMatcher(p)
}

func (m prefixMatcher) Matches(x any) bool {
	s, ok := x.(string)
	return ok && strings.HasPrefix(s, string(m))
}

func (m prefixMatcher) String() string {
	return "has prefix " + strconv.Quote(string(m))
}

func checkErr(t *testing.T, op string, err error, wantErr bool, wantErrf string) {
	t.Helper()
	if (err != nil) != wantErr {
		t.Fatalf("%s() error = %v, wantErr %v", op, err, wantErr)
	}
	if err != nil && wantErrf != "" && !strings.Contains(err.Error(), wantErrf) {
		t.Fatalf("%s() error = %v, want contains %q", op, err, wantErrf)
	}
}
