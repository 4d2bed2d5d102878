package bitcoin

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// scriptAddressPrefix keys outputs that do not pay exactly one standard address.
const scriptAddressPrefix = "script:"

var networkParams = map[model.Network]*chaincfg.Params{
	model.Mainnet: &chaincfg.MainNetParams,
	model.Testnet: &chaincfg.TestNet3Params,
	model.Regtest: &chaincfg.RegressionNetParams,
	"signet":      &chaincfg.SigNetParams,
}

// scriptDecoder names the owner of a bitcoind output for the coins table.
type scriptDecoder struct {
	params *chaincfg.Params
}

// NewScriptDecoder returns a decoder using the address encoding of network.
func NewScriptDecoder(network model.Network) (ScriptDecoder, error) {
	params, ok := networkParams[network]
	if !ok {
		return nil, fmt.Errorf("no address parameters for network %q", network)
	}
	return &scriptDecoder{params: params}, nil
}

// ownerKey returns the single standard address paid by the script. Bare multisig, null data
// and non-standard scripts are keyed by their hex so they stay distinct coins.
func (d *scriptDecoder) ownerKey(spk btcjson.ScriptPubKeyResult) string {
	switch {
	case spk.Address != "":
		return spk.Address
	case len(spk.Addresses) == 1:
		return spk.Addresses[0]
	case len(spk.Addresses) > 1:
		return scriptAddressPrefix + spk.Hex
	}

	script, err := hex.DecodeString(spk.Hex)
	if err != nil || len(script) == 0 {
		return scriptAddressPrefix + spk.Hex
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, d.params)
	if err != nil || len(addrs) != 1 {
		return scriptAddressPrefix + spk.Hex
	}
	return addrs[0].EncodeAddress()
}
