// Package config loads the chains file: one table per chain the syncer can follow.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/bitcoin"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

var ErrUnknownChain = errors.New("unknown chain")

// Chain describes one chain: its store, its node and how to talk to it.
type Chain struct {
	Coin          model.Coin    `toml:"coin"`
	Network       model.Network `toml:"network"`
	ClickhouseDSN string        `toml:"clickhouse_dsn"`
	RPCURL        string        `toml:"rpc_url"`
	RPCUser       string        `toml:"rpc_user"`
	RPCPassword   string        `toml:"rpc_password"`
	Dialect       string        `toml:"dialect"`
	ZMQAddr       string        `toml:"zmq_addr"`
}

// File is the decoded chains file.
type File struct {
	Chains map[string]Chain `toml:"chains"`
}

// Load decodes path. Keys the file does not define are rejected so typos do not pass silently.
func Load(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	for name, chain := range f.Chains {
		if err := chain.Validate(); err != nil {
			return nil, fmt.Errorf("chain %q: %w", name, err)
		}
	}
	return &f, nil
}

// Chain returns the named chain.
func (f *File) Chain(name string) (Chain, error) {
	chain, ok := f.Chains[name]
	if !ok {
		return Chain{}, fmt.Errorf("%w %q, have %s", ErrUnknownChain, name, strings.Join(f.Names(), ", "))
	}
	return chain, nil
}

// Names lists the configured chains in order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Chains))
	for name := range f.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the required fields and the node dialect.
func (c Chain) Validate() error {
	switch {
	case c.Coin == "":
		return errors.New("coin is required")
	case c.Network == "":
		return errors.New("network is required")
	case c.ClickhouseDSN == "":
		return errors.New("clickhouse_dsn is required")
	case c.RPCURL == "":
		return errors.New("rpc_url is required")
	}
	if _, err := bitcoin.ParseDialect(c.NodeDialect()); err != nil {
		return err
	}
	return nil
}

// NodeDialect returns the configured dialect; PKT nodes default to pktd and every other coin to bitcoind.
func (c Chain) NodeDialect() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	if c.Coin == model.PKT {
		return string(bitcoin.DialectPktd)
	}
	return string(bitcoin.DialectBitcoind)
}
