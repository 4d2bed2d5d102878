package bitcoin

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcjson"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	RawRequester interface {
		RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
	}

	ScriptDecoder interface {
		ownerKey(spk btcjson.ScriptPubKeyResult) string
	}
)
