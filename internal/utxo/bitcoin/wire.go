package bitcoin

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// wireHeader holds the verbose getblock fields common to pktd and bitcoind.
// The PacketCrypt and steward fields are only reported by pktd.
type wireHeader struct {
	Hash                     string   `json:"hash"`
	Confirmations            int64    `json:"confirmations"`
	Size                     int64    `json:"size"`
	Height                   int64    `json:"height"`
	Version                  int32    `json:"version"`
	MerkleRoot               string   `json:"merkleroot"`
	Time                     int64    `json:"time"`
	Nonce                    uint32   `json:"nonce"`
	Bits                     string   `json:"bits"`
	Difficulty               float64  `json:"difficulty"`
	PreviousBlockHash        string   `json:"previousblockhash"`
	NextBlockHash            string   `json:"nextblockhash"`
	PacketCryptVersion       *int8    `json:"packetcryptversion"`
	PacketCryptAnnCount      int64    `json:"packetcryptanncount"`
	PacketCryptAnnDifficulty float64  `json:"packetcryptanndifficulty"`
	PacketCryptBlkDifficulty float64  `json:"packetcryptblkdifficulty"`
	NetworkSteward           string   `json:"networksteward"`
	BlocksUntilRetarget      int32    `json:"blocksuntilretarget"`
	RetargetEstimate         *float64 `json:"retargetestimate"`
}

type wireTxHeader struct {
	TxID     string `json:"txid"`
	Size     int32  `json:"size"`
	VSize    int32  `json:"vsize"`
	Version  int32  `json:"version"`
	LockTime uint32 `json:"locktime"`
}

func (h wireTxHeader) tx(inputs []model.NodeTxIn, outputs []model.NodeTxOut) (model.NodeTx, error) {
	if err := validHash(h.TxID); err != nil {
		return model.NodeTx{}, fmt.Errorf("transaction: %w", err)
	}
	return model.NodeTx{
		TxID:     h.TxID,
		Size:     h.Size,
		VSize:    h.VSize,
		Version:  h.Version,
		LockTime: h.LockTime,
		Inputs:   inputs,
		Outputs:  outputs,
	}, nil
}

// pktd: getblock <hash> true true, getrawtransaction <txid> 1.

type pktdBlock struct {
	wireHeader
	RawTx []pktdTx `json:"rawtx"`
}

type pktdTx struct {
	wireTxHeader
	Vin  []pktdTxIn  `json:"vin"`
	Vout []pktdTxOut `json:"vout"`
}

type pktdTxIn struct {
	Coinbase string       `json:"coinbase"`
	TxID     string       `json:"txid"`
	Vout     uint32       `json:"vout"`
	Sequence uint32       `json:"sequence"`
	PrevOut  *pktdPrevOut `json:"prevOut"`
}

type pktdPrevOut struct {
	Address string `json:"address"`
	SValue  string `json:"svalue"`
}

type pktdTxOut struct {
	N       uint32    `json:"n"`
	Address string    `json:"address"`
	SValue  string    `json:"svalue"`
	Vote    *pktdVote `json:"vote"`
}

type pktdVote struct {
	For     string `json:"for"`
	Against string `json:"against"`
}

func (t pktdTx) model() (model.NodeTx, error) {
	inputs := make([]model.NodeTxIn, len(t.Vin))
	for i, in := range t.Vin {
		inputs[i] = model.NodeTxIn{Coinbase: in.Coinbase, TxID: in.TxID, Vout: in.Vout, Sequence: in.Sequence}
		if in.PrevOut == nil {
			continue
		}
		value, err := ParseUnits(in.PrevOut.SValue)
		if err != nil {
			return model.NodeTx{}, fmt.Errorf("tx %s input %d value: %w", t.TxID, i, err)
		}
		inputs[i].PrevAddress = in.PrevOut.Address
		inputs[i].PrevValue = value
		inputs[i].HasPrevOut = true
	}

	outputs := make([]model.NodeTxOut, len(t.Vout))
	for i, out := range t.Vout {
		value, err := ParseUnits(out.SValue)
		if err != nil {
			return model.NodeTx{}, fmt.Errorf("tx %s output %d value: %w", t.TxID, out.N, err)
		}
		outputs[i] = model.NodeTxOut{N: out.N, Address: out.Address, Value: value}
		if out.Vote != nil {
			outputs[i].VoteFor = out.Vote.For
			outputs[i].VoteAgainst = out.Vote.Against
		}
	}
	return t.tx(inputs, outputs)
}

// bitcoind: getblock <hash> 3, getrawtransaction <txid> 2. Amounts are BTC floats.

type bitcoindBlock struct {
	wireHeader
	Tx []bitcoindTx `json:"tx"`
}

type bitcoindTx struct {
	wireTxHeader
	Vin  []bitcoindTxIn `json:"vin"`
	Vout []btcjson.Vout `json:"vout"`
}

type bitcoindTxIn struct {
	Coinbase string           `json:"coinbase"`
	TxID     string           `json:"txid"`
	Vout     uint32           `json:"vout"`
	Sequence uint32           `json:"sequence"`
	Prevout  *bitcoindPrevout `json:"prevout"`
}

type bitcoindPrevout struct {
	Value        float64                    `json:"value"`
	ScriptPubKey btcjson.ScriptPubKeyResult `json:"scriptPubKey"`
}

func (t bitcoindTx) model(decoder ScriptDecoder) (model.NodeTx, error) {
	inputs := make([]model.NodeTxIn, len(t.Vin))
	for i, in := range t.Vin {
		inputs[i] = model.NodeTxIn{Coinbase: in.Coinbase, TxID: in.TxID, Vout: in.Vout, Sequence: in.Sequence}
		if in.Prevout == nil {
			continue
		}
		out, err := bitcoindOutput(decoder, btcjson.Vout{Value: in.Prevout.Value, N: in.Vout, ScriptPubKey: in.Prevout.ScriptPubKey})
		if err != nil {
			return model.NodeTx{}, fmt.Errorf("tx %s input %d: %w", t.TxID, i, err)
		}
		inputs[i].PrevAddress = out.Address
		inputs[i].PrevValue = out.Value
		inputs[i].HasPrevOut = true
	}

	outputs := make([]model.NodeTxOut, len(t.Vout))
	for i, vout := range t.Vout {
		out, err := bitcoindOutput(decoder, vout)
		if err != nil {
			return model.NodeTx{}, fmt.Errorf("tx %s output %d: %w", t.TxID, vout.N, err)
		}
		outputs[i] = out
	}
	return t.tx(inputs, outputs)
}

func bitcoindOutput(decoder ScriptDecoder, vout btcjson.Vout) (model.NodeTxOut, error) {
	value, err := BtcToSatoshis(vout.Value)
	if err != nil {
		return model.NodeTxOut{}, fmt.Errorf("value: %w", err)
	}
	return model.NodeTxOut{N: vout.N, Address: decoder.ownerKey(vout.ScriptPubKey), Value: value}, nil
}

type dialect interface {
	blockParams(hash string) []any
	txParams(txid string) []any
	decodeBlock(raw json.RawMessage, out *model.NodeBlock) error
	decodeTx(raw json.RawMessage, out *model.NodeTx) error
}

type pktdDialect struct{}

func (pktdDialect) blockParams(hash string) []any { return []any{hash, true, true} }

func (pktdDialect) txParams(txid string) []any { return []any{txid, 1} }

func (pktdDialect) decodeBlock(raw json.RawMessage, out *model.NodeBlock) error {
	var b pktdBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return err
	}
	txs := make([]model.NodeTx, len(b.RawTx))
	for i, tx := range b.RawTx {
		t, err := tx.model()
		if err != nil {
			return fmt.Errorf("block %s: %w", b.Hash, err)
		}
		txs[i] = t
	}
	nb, err := nodeBlock(b.wireHeader, txs)
	if err != nil {
		return err
	}
	*out = nb
	return nil
}

func (pktdDialect) decodeTx(raw json.RawMessage, out *model.NodeTx) error {
	var tx pktdTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return err
	}
	t, err := tx.model()
	if err != nil {
		return err
	}
	*out = t
	return nil
}

type bitcoindDialect struct {
	decoder ScriptDecoder
}

func (bitcoindDialect) blockParams(hash string) []any { return []any{hash, 3} }

func (bitcoindDialect) txParams(txid string) []any { return []any{txid, 2} }

func (d bitcoindDialect) decodeBlock(raw json.RawMessage, out *model.NodeBlock) error {
	var b bitcoindBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return err
	}
	txs := make([]model.NodeTx, len(b.Tx))
	for i, tx := range b.Tx {
		t, err := tx.model(d.decoder)
		if err != nil {
			return fmt.Errorf("block %s: %w", b.Hash, err)
		}
		txs[i] = t
	}
	nb, err := nodeBlock(b.wireHeader, txs)
	if err != nil {
		return err
	}
	*out = nb
	return nil
}

func (d bitcoindDialect) decodeTx(raw json.RawMessage, out *model.NodeTx) error {
	var tx bitcoindTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return err
	}
	t, err := tx.model(d.decoder)
	if err != nil {
		return err
	}
	*out = t
	return nil
}
