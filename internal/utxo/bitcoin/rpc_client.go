package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// ErrTimeout is returned when a single request exceeds the call timeout.
var ErrTimeout = errors.New("rpc call timed out")

// RPCConfig tunes request pacing.
type RPCConfig struct {
	Timeout           time.Duration
	RetryInterval     time.Duration
	RequestsPerSecond int
}

// RPCClient retries JSON-RPC requests at a fixed interval until they succeed, fail with a terminal
// error code or ctx ends. A request that outlives its timeout is abandoned and its result dropped.
type RPCClient struct {
	client  RawRequester
	timeout time.Duration
	retry   time.Duration
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

// NewRPCClient wraps client with retries, timeouts and rate limiting.
func NewRPCClient(client RawRequester, cfg RPCConfig, logger *zap.Logger) *RPCClient {
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &RPCClient{
		client:  client,
		timeout: cfg.Timeout,
		retry:   cfg.RetryInterval,
		limiter: limiter,
		logger:  logger,
	}
}

// Call invokes method and decodes the result into out. RPC errors with one of the terminal codes
// are returned wrapped in model.ErrNotFound without retrying.
func (r *RPCClient) Call(ctx context.Context, method string, params []any, out any, terminal ...btcjson.RPCErrorCode) error {
	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("%s: marshal param %d: %w", method, i, err)
		}
		raw[i] = b
	}

	attempt := 0
	res, err := backoff.RetryWithData(func() (json.RawMessage, error) {
		attempt++
		res, err := r.once(ctx, method, raw)
		if err == nil {
			return res, nil
		}
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) && slices.Contains(terminal, rpcErr.Code) {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w: %w", method, model.ErrNotFound, err))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, backoff.Permanent(ctxErr)
		}
		r.logger.Warn("rpc call failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return nil, err
	}, backoff.WithContext(backoff.NewConstantBackOff(r.retry), ctx))
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (r *RPCClient) once(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	r.limiter.Take()

	type result struct {
		raw json.RawMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := r.client.RawRequest(method, params)
		done <- result{raw: raw, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.raw, res.err
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w after %s", method, ErrTimeout, r.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
