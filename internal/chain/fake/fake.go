// Package fake provides FakeChainClient, an in-memory chain.ChainClient used
// by component and integration tests to drive end-to-end scenarios (grid
// placement, fills, reconciliation, rotation) without a live chain.
package fake

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridmm/internal/chain"
	"gridmm/internal/core"
)

var _ chain.ChainClient = (*FakeChainClient)(nil)

type openOrder struct {
	order core.ChainOrder
}

// FakeChainClient simulates one account's order book and fill stream
// in-process. Tests push synthetic fills via PushFill; ExecuteBatch applies
// creates/updates/cancels to the simulated book exactly as a real chain
// would, including minting chain_order_ids for creates.
type FakeChainClient struct {
	mu       sync.Mutex
	byID     map[string]*openOrder
	subs     map[string][]func([]core.FillEvent)
	meta     map[string]chain.AssetMetadata
	fees     chain.AssetFees
	batches  []ExecutedBatch
	failNext error
}

// ExecutedBatch records one call to ExecuteBatch, for test assertions.
type ExecutedBatch struct {
	Account        string
	IdempotencyKey string
	Ops            []core.ChainOp
}

// New builds an empty FakeChainClient reporting the given asset metadata
// and fee schedule.
func New(meta map[string]chain.AssetMetadata, fees chain.AssetFees) *FakeChainClient {
	return &FakeChainClient{
		byID: make(map[string]*openOrder),
		subs: make(map[string][]func([]core.FillEvent)),
		meta: meta,
		fees: fees,
	}
}

// FailNextBatch makes the next ExecuteBatch call return err instead of
// executing, to exercise the batch executor's failure path.
func (f *FakeChainClient) FailNextBatch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

func (f *FakeChainClient) ReadOpenOrders(_ context.Context, _ string) ([]core.ChainOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]core.ChainOrder, 0, len(f.byID))
	for _, o := range f.byID {
		out = append(out, o.order)
	}
	return out, nil
}

func (f *FakeChainClient) BuildCreateOp(_ string, side core.Side, price, size decimal.Decimal) core.ChainOp {
	return core.ChainOp{Kind: core.ChainOpCreate, Side: side, Price: price, Size: size, ClientOrderID: uuid.NewString()}
}

func (f *FakeChainClient) BuildUpdateOp(chainOrderID string, side core.Side, price, size decimal.Decimal) core.ChainOp {
	return core.ChainOp{Kind: core.ChainOpUpdate, Side: side, Price: price, Size: size, ChainOrderID: chainOrderID}
}

func (f *FakeChainClient) BuildCancelOp(chainOrderID string) core.ChainOp {
	return core.ChainOp{Kind: core.ChainOpCancel, ChainOrderID: chainOrderID}
}

// ExecuteBatch applies ops to the simulated book in order and returns
// results positionally, mirroring a real chain's atomic-batch contract.
func (f *FakeChainClient) ExecuteBatch(_ context.Context, account, idempotencyKey string, ops []core.ChainOp) ([]chain.OpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}

	f.batches = append(f.batches, ExecutedBatch{Account: account, IdempotencyKey: idempotencyKey, Ops: append([]core.ChainOp(nil), ops...)})

	results := make([]chain.OpResult, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case core.ChainOpCreate:
			id := "fake-" + uuid.NewString()
			f.byID[id] = &openOrder{order: core.ChainOrder{ChainOrderID: id, Side: op.Side, Price: op.Price, Size: op.Size, Remaining: op.Size}}
			results[i] = chain.OpResult{ChainOrderID: id}
		case core.ChainOpUpdate:
			if existing, ok := f.byID[op.ChainOrderID]; ok {
				existing.order.Price = op.Price
				existing.order.Size = op.Size
				existing.order.Remaining = op.Size
			}
			results[i] = chain.OpResult{ChainOrderID: op.ChainOrderID}
		case core.ChainOpCancel:
			delete(f.byID, op.ChainOrderID)
			results[i] = chain.OpResult{ChainOrderID: op.ChainOrderID}
		}
	}
	return results, nil
}

// Subscribe registers callback for account's simulated fill stream and
// returns an UnsubscribeFunc that removes it.
func (f *FakeChainClient) Subscribe(_ context.Context, account string, callback func([]core.FillEvent)) (chain.UnsubscribeFunc, error) {
	f.mu.Lock()
	f.subs[account] = append(f.subs[account], callback)
	idx := len(f.subs[account]) - 1
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.subs[account]) {
			f.subs[account][idx] = nil
		}
	}, nil
}

// PushFill removes the matching order's remaining size (or the whole order,
// for a full fill) from the simulated book and delivers fill to every live
// subscriber on account.
func (f *FakeChainClient) PushFill(account string, fill core.FillEvent) {
	f.mu.Lock()
	if o, ok := f.byID[fill.ChainOrderID]; ok {
		o.order.Remaining = o.order.Remaining.Sub(fill.FilledSize)
		if o.order.Remaining.LessThanOrEqual(decimal.Zero) {
			delete(f.byID, fill.ChainOrderID)
		}
	}
	callbacks := append([]func([]core.FillEvent){}, f.subs[account]...)
	f.mu.Unlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb([]core.FillEvent{fill})
		}
	}
}

func (f *FakeChainClient) AssetMeta(_ context.Context, asset string) (chain.AssetMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta[asset], nil
}

func (f *FakeChainClient) GetAssetFees(_ context.Context, _ string) (chain.AssetFees, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fees, nil
}

// Batches returns every ExecuteBatch call observed so far, for assertions.
func (f *FakeChainClient) Batches() []ExecutedBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExecutedBatch(nil), f.batches...)
}
