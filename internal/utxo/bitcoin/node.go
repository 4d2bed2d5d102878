package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// Dialect selects the verbose block and transaction formats of the node software.
type Dialect string

const (
	// DialectPktd reports resolved previous outputs in rawtx with amounts in atomic units.
	DialectPktd Dialect = "pktd"
	// DialectBitcoind reports resolved previous outputs at getblock verbosity 3 with amounts in BTC.
	DialectBitcoind Dialect = "bitcoind"
)

// ParseDialect validates a dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case DialectPktd, DialectBitcoind:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported node dialect %q", name)
	}
}

// Node reads blocks, transactions and the mempool from a full node.
type Node struct {
	rpc     *RPCClient
	dialect dialect
}

// NewNode builds a Node. decoder is only consulted by the bitcoind dialect and may be nil for pktd.
func NewNode(rpc *RPCClient, d Dialect, decoder ScriptDecoder) (*Node, error) {
	switch d {
	case DialectPktd:
		return &Node{rpc: rpc, dialect: pktdDialect{}}, nil
	case DialectBitcoind:
		if decoder == nil {
			return nil, fmt.Errorf("dialect %s needs a script decoder", d)
		}
		return &Node{rpc: rpc, dialect: bitcoindDialect{decoder: decoder}}, nil
	default:
		return nil, fmt.Errorf("unsupported node dialect %q", d)
	}
}

// BlockHash returns the hash of the active chain block at height.
// A height above the node tip yields model.ErrNotFound.
func (n *Node) BlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	err := n.rpc.Call(ctx, "getblockhash", []any{height}, &hash,
		btcjson.ErrRPCOutOfRange, btcjson.ErrRPCInvalidParameter)
	if err != nil {
		return "", err
	}
	if err := validHash(hash); err != nil {
		return "", fmt.Errorf("getblockhash %d: %w", height, err)
	}
	return hash, nil
}

// BlockByHash fetches a block with its transactions and resolved previous outputs.
func (n *Node) BlockByHash(ctx context.Context, hash string) (model.NodeBlock, error) {
	if err := validHash(hash); err != nil {
		return model.NodeBlock{}, err
	}
	var raw json.RawMessage
	if err := n.rpc.Call(ctx, "getblock", n.dialect.blockParams(hash), &raw, btcjson.ErrRPCBlockNotFound); err != nil {
		return model.NodeBlock{}, err
	}
	var block model.NodeBlock
	if err := n.dialect.decodeBlock(raw, &block); err != nil {
		return model.NodeBlock{}, fmt.Errorf("getblock %s: %w", hash, err)
	}
	if block.Hash != hash {
		return model.NodeBlock{}, fmt.Errorf("getblock %s: node returned block %s", hash, block.Hash)
	}
	return block, nil
}

// BlockByHeight fetches the active chain block at height.
func (n *Node) BlockByHeight(ctx context.Context, height int64) (model.NodeBlock, error) {
	hash, err := n.BlockHash(ctx, height)
	if err != nil {
		return model.NodeBlock{}, err
	}
	return n.BlockByHash(ctx, hash)
}

// MempoolTxids lists the transactions in the node's mempool.
func (n *Node) MempoolTxids(ctx context.Context) ([]string, error) {
	var txids []string
	if err := n.rpc.Call(ctx, "getrawmempool", nil, &txids); err != nil {
		return nil, err
	}
	return txids, nil
}

// RawTransaction fetches a transaction with resolved previous outputs. A transaction that left the
// mempool yields model.ErrNotFound.
func (n *Node) RawTransaction(ctx context.Context, txid string) (model.NodeTx, error) {
	if err := validHash(txid); err != nil {
		return model.NodeTx{}, err
	}
	var raw json.RawMessage
	if err := n.rpc.Call(ctx, "getrawtransaction", n.dialect.txParams(txid), &raw, btcjson.ErrRPCNoTxInfo); err != nil {
		return model.NodeTx{}, err
	}
	var tx model.NodeTx
	if err := n.dialect.decodeTx(raw, &tx); err != nil {
		return model.NodeTx{}, fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}
	return tx, nil
}
