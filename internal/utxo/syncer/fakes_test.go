package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

var errInjected = errors.New("injected failure")

// memLedger keeps the ledger in memory with the same version semantics as the ClickHouse tables:
// every write appends a version and the latest version per key wins.
type memLedger struct {
	mu       sync.Mutex
	entries  []model.ChainEntry
	coins    map[model.CoinKey][]model.CoinVersion
	blocks   []model.Block
	blockTxs []model.BlockTx
	txs      []model.Transaction

	failOp   string
	failSkip int

	swept      int
	recomputed bool
	optimized  int
}

func newMemLedger() *memLedger {
	return &memLedger{coins: make(map[model.CoinKey][]model.CoinVersion)}
}

// failNext makes the call of op after skip successful ones fail.
func (l *memLedger) failNext(op string, skip int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOp, l.failSkip = op, skip
}

func (l *memLedger) fail(op string) error {
	if l.failOp != op {
		return nil
	}
	if l.failSkip > 0 {
		l.failSkip--
		return nil
	}
	l.failOp = ""
	return fmt.Errorf("%s: %w", op, errInjected)
}

type entryKey struct {
	height int64
	hash   string
}

func (l *memLedger) latestEntries() []model.ChainEntry {
	latest := make(map[entryKey]model.ChainEntry)
	for _, e := range l.entries {
		k := entryKey{e.Height, e.Hash}
		if cur, ok := latest[k]; !ok || e.InsertedAtMs >= cur.InsertedAtMs {
			latest[k] = e
		}
	}
	out := make([]model.ChainEntry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height < out[j].Height
		}
		return out[i].InsertedAtMs < out[j].InsertedAtMs
	})
	return out
}

func (l *memLedger) tip(keep func(model.ChainState) bool) model.Tip {
	tip := model.EmptyTip
	for _, e := range l.latestEntries() {
		if keep(e.State) {
			tip = model.Tip{Height: e.Height, Hash: e.Hash, State: e.State}
		}
	}
	return tip
}

func (l *memLedger) Tip(context.Context) (model.Tip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip(func(s model.ChainState) bool { return s != model.ChainReverted }), l.fail("Tip")
}

func (l *memLedger) CommittedTip(context.Context) (model.Tip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip(func(s model.ChainState) bool { return s == model.ChainComplete }), nil
}

func (l *memLedger) LiveEntriesAbove(_ context.Context, height int64) ([]model.ChainEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.ChainEntry
	for _, e := range l.latestEntries() {
		if e.Height > height && e.State != model.ChainReverted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) MissingHeights(_ context.Context, tip int64, limit int) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	complete := make(map[int64]bool)
	for _, e := range l.latestEntries() {
		if e.State == model.ChainComplete {
			complete[e.Height] = true
		}
	}
	var out []int64
	for h := int64(0); h <= tip && len(out) < limit; h++ {
		if !complete[h] {
			out = append(out, h)
		}
	}
	return out, nil
}

// dropEntries forgets every chain entry at height.
func (l *memLedger) dropEntries(height int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = slices.DeleteFunc(l.entries, func(e model.ChainEntry) bool { return e.Height == height })
}

func (l *memLedger) InsertChainEntries(_ context.Context, entries []model.ChainEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("InsertChainEntries"); err != nil {
		return err
	}
	l.entries = append(l.entries, entries...)
	return nil
}

func (l *memLedger) InsertBlocks(_ context.Context, blocks []model.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("InsertBlocks"); err != nil {
		return err
	}
	l.blocks = append(l.blocks, blocks...)
	return nil
}

func (l *memLedger) InsertBlockTxs(_ context.Context, txs []model.BlockTx) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("InsertBlockTxs"); err != nil {
		return err
	}
	l.blockTxs = append(l.blockTxs, txs...)
	return nil
}

func (l *memLedger) InsertTransactions(_ context.Context, txs []model.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("InsertTransactions"); err != nil {
		return err
	}
	l.txs = append(l.txs, txs...)
	return nil
}

func (l *memLedger) latest(key model.CoinKey) (model.CoinVersion, bool) {
	versions := l.coins[key]
	if len(versions) == 0 {
		return model.CoinVersion{CoinKey: key}, false
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if v.InsertedAtMs >= best.InsertedAtMs {
			best = v
		}
	}
	return best, true
}

func isNoRegress(c mergeupdate.Combiner) bool {
	rule, ok := c["stateTr"]
	return ok && rule("e", "i") == coinstate.NoRegress("e", "i")
}

// merge appends a version for key moving it to state, like one row of a merge-update.
func (l *memLedger) merge(key model.CoinKey, to model.CoinState, stamp uint64, noRegress bool, set func(*model.CoinVersion)) {
	v, _ := l.latest(key)
	from := v.CurrentState()
	if noRegress && from >= to {
		to = from
	}
	seen := v.SeenTime
	set(&v)
	if !seen.IsZero() {
		v.SeenTime = seen
	}
	v.StateTr = int8(coinstate.NewTransition(from, to))
	v.InsertedAtMs = stamp
	l.coins[key] = append(l.coins[key], v)
}

func (l *memLedger) ApplyMints(_ context.Context, mints []model.CoinMint, combiner mergeupdate.Combiner) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("ApplyMints"); err != nil {
		return err
	}
	noRegress := isNoRegress(combiner)
	done := make(map[model.CoinKey]bool)
	for _, m := range mints {
		if done[m.CoinKey] {
			continue
		}
		done[m.CoinKey] = true
		l.merge(m.CoinKey, m.State(), m.InsertedAtMs, noRegress, func(v *model.CoinVersion) {
			v.Value = m.Value
			v.Coinbase = m.Coinbase
			v.VoteFor = m.VoteFor
			v.VoteAgainst = m.VoteAgainst
			v.SeenTime = m.SeenTime
			if m.Block != nil {
				v.MintBlockHash = m.Block.Hash
				v.MintHeight = int32(m.Block.Height)
				v.MintTime = m.Block.Time
			}
		})
	}
	return nil
}

func (l *memLedger) ApplySpends(_ context.Context, spends []model.CoinSpend, combiner mergeupdate.Combiner) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("ApplySpends"); err != nil {
		return err
	}
	noRegress := isNoRegress(combiner)
	done := make(map[model.CoinKey]bool)
	for _, s := range spends {
		if done[s.CoinKey] {
			continue
		}
		done[s.CoinKey] = true
		l.merge(s.CoinKey, s.State(), s.InsertedAtMs, noRegress, func(v *model.CoinVersion) {
			v.Value = s.Value
			v.SpentTxid = s.SpentTxid
			v.SpentTxinNum = s.SpentTxinNum
			v.SpentSequence = s.SpentSequence
			if s.Block != nil {
				v.SpentBlockHash = s.Block.Hash
				v.SpentHeight = int32(s.Block.Height)
				v.SpentTime = s.Block.Time
			}
		})
	}
	return nil
}

func (l *memLedger) latestWhere(match func(model.CoinVersion) bool) []model.CoinKey {
	var keys []model.CoinKey
	for key := range l.coins {
		if v, ok := l.latest(key); ok && match(v) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (l *memLedger) RevertSpends(_ context.Context, hashes []string, stamp uint64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("RevertSpends"); err != nil {
		return 0, err
	}
	keys := l.latestWhere(func(v model.CoinVersion) bool { return slices.Contains(hashes, v.SpentBlockHash) })
	for _, key := range keys {
		l.merge(key, model.StateBlock, stamp, false, func(v *model.CoinVersion) {
			v.SpentTxid, v.SpentTxinNum, v.SpentSequence = "", 0, 0
			v.SpentBlockHash, v.SpentHeight, v.SpentTime = "", 0, time.Time{}
		})
	}
	return len(keys), nil
}

func (l *memLedger) RevertMints(_ context.Context, hashes []string, stamp uint64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail("RevertMints"); err != nil {
		return 0, err
	}
	keys := l.latestWhere(func(v model.CoinVersion) bool { return slices.Contains(hashes, v.MintBlockHash) })
	for _, key := range keys {
		l.merge(key, model.StateMempool, stamp, false, func(v *model.CoinVersion) {
			v.MintBlockHash, v.MintHeight, v.MintTime = "", 0, time.Time{}
		})
	}
	return len(keys), nil
}

func (l *memLedger) BurnGovernancePayouts(_ context.Context, below int64, stamp uint64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := l.latestWhere(func(v model.CoinVersion) bool {
		return v.Coinbase == model.GovernancePayout && int64(v.MintHeight) < below && v.CurrentState() == model.StateBlock
	})
	for _, key := range keys {
		l.merge(key, model.StateBurned, stamp, false, func(*model.CoinVersion) {})
	}
	return len(keys), nil
}

func (l *memLedger) MempoolTxids(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for key := range l.coins {
		v, _ := l.latest(key)
		txid := ""
		switch v.CurrentState() {
		case model.StateMempool:
			txid = v.MintTxid
		case model.StateSpending:
			txid = v.SpentTxid
		}
		if txid != "" && !seen[txid] {
			seen[txid] = true
			out = append(out, txid)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *memLedger) SweepStaging(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.swept++
	return 0, nil
}

func (l *memLedger) EnsureDerivedTables(_ context.Context, recompute bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recomputed = l.recomputed || recompute
	return nil
}

func (l *memLedger) Optimize(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.optimized++
	return nil
}

// aggregate sums value times the aggregate delta of every stored version per address, which is
// what the derived tables hold.
func (l *memLedger) aggregate(agg coinstate.Aggregate) map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64)
	for key, versions := range l.coins {
		for _, v := range versions {
			out[key.Address] += v.Value * agg.Delta(coinstate.Transition(v.StateTr))
		}
	}
	for addr, sum := range out {
		if sum == 0 {
			delete(out, addr)
		}
	}
	return out
}

func (l *memLedger) state(key model.CoinKey) model.CoinState {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, _ := l.latest(key)
	return v.CurrentState()
}

func (l *memLedger) versions(key model.CoinKey) []model.CoinVersion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.CoinVersion(nil), l.coins[key]...)
}

// memNode serves an active chain and a mempool.
type memNode struct {
	mu      sync.Mutex
	chain   []model.NodeBlock
	mempool []model.NodeTx
	calls   map[string]int
}

func newMemNode(chain []model.NodeBlock) *memNode {
	return &memNode{chain: chain, calls: make(map[string]int)}
}

func (n *memNode) setChain(chain []model.NodeBlock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chain = chain
}

func (n *memNode) setMempool(txs ...model.NodeTx) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mempool = txs
}

func (n *memNode) called(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *memNode) at(height int64) model.NodeBlock {
	b := n.chain[height]
	b.NextBlockHash = ""
	if height+1 < int64(len(n.chain)) {
		b.NextBlockHash = n.chain[height+1].Hash
	}
	return b
}

func (n *memNode) BlockHash(_ context.Context, height int64) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["BlockHash"]++
	if height < 0 || height >= int64(len(n.chain)) {
		return "", fmt.Errorf("height %d: %w", height, model.ErrNotFound)
	}
	return n.chain[height].Hash, nil
}

func (n *memNode) BlockByHeight(_ context.Context, height int64) (model.NodeBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["BlockByHeight"]++
	if height < 0 || height >= int64(len(n.chain)) {
		return model.NodeBlock{}, fmt.Errorf("height %d: %w", height, model.ErrNotFound)
	}
	return n.at(height), nil
}

func (n *memNode) BlockByHash(_ context.Context, hash string) (model.NodeBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["BlockByHash"]++
	for h, b := range n.chain {
		if b.Hash == hash {
			return n.at(int64(h)), nil
		}
	}
	return model.NodeBlock{}, fmt.Errorf("block %s: %w", hash, model.ErrNotFound)
}

func (n *memNode) MempoolTxids(context.Context) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.mempool))
	for i, tx := range n.mempool {
		out[i] = tx.TxID
	}
	return out, nil
}

func (n *memNode) RawTransaction(_ context.Context, txid string) (model.NodeTx, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["RawTransaction"]++
	for _, tx := range n.mempool {
		if tx.TxID == txid {
			return tx, nil
		}
	}
	return model.NodeTx{}, fmt.Errorf("tx %s: %w", txid, model.ErrNotFound)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(error, time.Time) {}
func (nopMetrics) ObserveCommit(error, int, time.Time) {}
func (nopMetrics) ObserveRollback(int) {}
func (nopMetrics) ObserveMempool(error, int, time.Time) {}
func (nopMetrics) ObserveBurn(int) {}
func (nopMetrics) ObserveRepair(error, int, time.Time) {}
func (nopMetrics) SetTip(int64) {}

func hashOf(parts ...any) string {
	sum := sha256.Sum256([]byte(fmt.Sprint(parts...)))
	return hex.EncodeToString(sum[:])
}

// outRef points at an output created by an earlier transaction.
type outRef struct {
	txid    string
	n       uint32
	address string
	value   int64
}

func (o outRef) key() model.CoinKey {
	return model.CoinKey{Address: o.address, MintTxid: o.txid, MintIndex: int32(o.n)}
}

func output(tx model.NodeTx, n uint32) outRef {
	o := tx.Outputs[n]
	return outRef{txid: tx.TxID, n: n, address: o.Address, value: o.Value}
}

func payment(id string, from []outRef, outs ...model.NodeTxOut) model.NodeTx {
	tx := model.NodeTx{TxID: hashOf("tx", id), Size: 200, VSize: 200, Version: 1, Outputs: outs}
	for i, o := range from {
		tx.Inputs = append(tx.Inputs, model.NodeTxIn{
			TxID:        o.txid,
			Vout:        o.n,
			Sequence:    uint32(i),
			PrevAddress: o.address,
			PrevValue:   o.value,
			HasPrevOut:  true,
		})
	}
	for i := range tx.Outputs {
		tx.Outputs[i].N = uint32(i)
	}
	return tx
}

// chainBuilder extends a chain with blocks paying a coinbase to miner.
type chainBuilder struct {
	salt   string
	blocks []model.NodeBlock
}

func newChain(salt string) *chainBuilder {
	return &chainBuilder{salt: salt}
}

// fork starts a new builder sharing the first n blocks.
func (c *chainBuilder) fork(salt string, n int) *chainBuilder {
	return &chainBuilder{salt: salt, blocks: slices.Clone(c.blocks[:n])}
}

func (c *chainBuilder) add(coinbaseOuts []model.NodeTxOut, txs ...model.NodeTx) model.NodeBlock {
	height := int64(len(c.blocks))
	prev := ""
	if height > 0 {
		prev = c.blocks[height-1].Hash
	}
	if coinbaseOuts == nil {
		coinbaseOuts = []model.NodeTxOut{{Address: "miner", Value: 50}}
	}
	cb := model.NodeTx{
		TxID:    hashOf("coinbase", c.salt, height),
		Size:    100,
		VSize:   100,
		Version: 1,
		Inputs:  []model.NodeTxIn{{Coinbase: fmt.Sprintf("%x", height), Sequence: 0xffffffff}},
		Outputs: coinbaseOuts,
	}
	for i := range cb.Outputs {
		cb.Outputs[i].N = uint32(i)
	}

	b := model.NodeBlock{
		Block: model.Block{
			Hash:              hashOf("block", c.salt, height),
			Height:            height,
			Version:           1,
			Size:              1000,
			Time:              time.Unix(1_700_000_000+height*60, 0).UTC(),
			PreviousBlockHash: prev,
			PcVersion:         -1,
		},
		Transactions: append([]model.NodeTx{cb}, txs...),
	}
	b.TransactionCount = len(b.Transactions)
	c.blocks = append(c.blocks, b)
	return b
}

func (c *chainBuilder) chain() []model.NodeBlock {
	return slices.Clone(c.blocks)
}
