// Package bitcoin reads blocks, transactions and the mempool from bitcoin-family nodes.
package bitcoin

import (
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/pkg/safe"
)

// BtcToSatoshis converts BTC amount to satoshis with overflow checks.
func BtcToSatoshis(value float64) (int64, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return 0, err
	}
	if amt < 0 {
		return 0, fmt.Errorf("negative amount: %d", amt)
	}
	return int64(amt), nil
}

// ParseUnits parses a decimal amount in atomic units, as pktd reports it in svalue.
func ParseUnits(value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative amount: %d", v)
	}
	return v, nil
}

// ParseBits parses a bits string into a 32-bit value.
func ParseBits(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(parsed), nil
}

func validHash(h string) error {
	_, err := chainhash.NewHashFromStr(h)
	if err != nil || len(h) != chainhash.MaxHashStringSize {
		return fmt.Errorf("invalid hash %q", h)
	}
	return nil
}

// block maps the shared header fields of a verbose getblock result.
func (h wireHeader) block(txCount int) (model.Block, error) {
	if err := validHash(h.Hash); err != nil {
		return model.Block{}, fmt.Errorf("block %d: %w", h.Height, err)
	}
	bits, err := ParseBits(h.Bits)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %d bits parse: %w", h.Height, err)
	}
	if _, err := safe.Int32(h.Height); err != nil {
		return model.Block{}, fmt.Errorf("block height %d overflow: %w", h.Height, err)
	}
	if h.Height < 0 || h.Size < 0 {
		return model.Block{}, fmt.Errorf("block %s: negative height or size", h.Hash)
	}
	if _, err := safe.Int32(h.Size); err != nil {
		return model.Block{}, fmt.Errorf("block %d size overflow: %w", h.Height, err)
	}

	pcVersion := int8(-1)
	if h.PacketCryptVersion != nil {
		pcVersion = *h.PacketCryptVersion
	}
	retarget := 0.0
	if h.RetargetEstimate != nil {
		retarget = *h.RetargetEstimate
	}

	return model.Block{
		Hash:                h.Hash,
		Height:              h.Height,
		Version:             h.Version,
		Size:                h.Size,
		MerkleRoot:          h.MerkleRoot,
		Time:                time.Unix(h.Time, 0).UTC(),
		Nonce:               h.Nonce,
		Bits:                bits,
		Difficulty:          h.Difficulty,
		PreviousBlockHash:   h.PreviousBlockHash,
		TransactionCount:    txCount,
		PcAnnCount:          h.PacketCryptAnnCount,
		PcAnnDifficulty:     h.PacketCryptAnnDifficulty,
		PcBlkDifficulty:     h.PacketCryptBlkDifficulty,
		PcVersion:           pcVersion,
		NetworkSteward:      h.NetworkSteward,
		BlocksUntilRetarget: h.BlocksUntilRetarget,
		RetargetEstimate:    retarget,
	}, nil
}

func nodeBlock(h wireHeader, txs []model.NodeTx) (model.NodeBlock, error) {
	b, err := h.block(len(txs))
	if err != nil {
		return model.NodeBlock{}, err
	}
	return model.NodeBlock{
		Block:         b,
		NextBlockHash: h.NextBlockHash,
		Confirmations: h.Confirmations,
		Transactions:  txs,
	}, nil
}
