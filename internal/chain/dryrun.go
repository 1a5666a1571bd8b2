package chain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridmm/internal/core"
)

var _ ChainClient = (*DryRunClient)(nil)

// DryRunClient is a no-op bookkeeping ChainClient for app.dry_run=true: it
// never broadcasts anything, reports no open orders or fills, and mints a
// fresh client-visible order id for every create so the rest of the
// pipeline (reconcile, rebalance, batchplan) runs exactly as it would
// against a live chain.
type DryRunClient struct {
	Logger    core.ILogger
	Fees      AssetFees
	BaseMeta  AssetMetadata
	QuoteMeta AssetMetadata
}

// NewDryRunClient builds a DryRunClient reporting the given static asset
// metadata and fee schedule for every lookup.
func NewDryRunClient(logger core.ILogger, baseMeta, quoteMeta AssetMetadata, fees AssetFees) *DryRunClient {
	return &DryRunClient{Logger: logger, BaseMeta: baseMeta, QuoteMeta: quoteMeta, Fees: fees}
}

func (d *DryRunClient) ReadOpenOrders(_ context.Context, account string) ([]core.ChainOrder, error) {
	d.Logger.Debug("dry-run: read open orders", "account", account)
	return nil, nil
}

func (d *DryRunClient) BuildCreateOp(_ string, side core.Side, price, size decimal.Decimal) core.ChainOp {
	return core.ChainOp{Kind: core.ChainOpCreate, Side: side, Price: price, Size: size, ClientOrderID: uuid.NewString()}
}

func (d *DryRunClient) BuildUpdateOp(chainOrderID string, side core.Side, price, size decimal.Decimal) core.ChainOp {
	return core.ChainOp{Kind: core.ChainOpUpdate, Side: side, Price: price, Size: size, ChainOrderID: chainOrderID}
}

func (d *DryRunClient) BuildCancelOp(chainOrderID string) core.ChainOp {
	return core.ChainOp{Kind: core.ChainOpCancel, ChainOrderID: chainOrderID}
}

// ExecuteBatch logs the batch it would have submitted and mints a synthetic
// chain_order_id for every Create so downstream state transitions see a
// real-looking id.
func (d *DryRunClient) ExecuteBatch(_ context.Context, account, idempotencyKey string, ops []core.ChainOp) ([]OpResult, error) {
	results := make([]OpResult, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case core.ChainOpCreate:
			results[i] = OpResult{ChainOrderID: "dryrun-" + uuid.NewString()}
		case core.ChainOpUpdate:
			results[i] = OpResult{ChainOrderID: op.ChainOrderID}
		case core.ChainOpCancel:
			results[i] = OpResult{ChainOrderID: op.ChainOrderID}
		}
	}
	d.Logger.Info("dry-run: executed batch", "account", account, "idempotency_key", idempotencyKey, "ops", len(ops))
	return results, nil
}

// Subscribe never invokes callback: a dry-run bot never receives real fills.
func (d *DryRunClient) Subscribe(_ context.Context, account string, _ func([]core.FillEvent)) (UnsubscribeFunc, error) {
	d.Logger.Debug("dry-run: subscribe", "account", account)
	return func() {}, nil
}

func (d *DryRunClient) AssetMeta(_ context.Context, asset string) (AssetMetadata, error) {
	if asset == d.QuoteMeta.Symbol {
		return d.QuoteMeta, nil
	}
	return d.BaseMeta, nil
}

func (d *DryRunClient) GetAssetFees(_ context.Context, _ string) (AssetFees, error) {
	return d.Fees, nil
}
