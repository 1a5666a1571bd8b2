// Package chain defines the sole seam between the order manager and the
// outside world: the ChainClient interface consumed by the trigger loop,
// reconciler, and batch executor. The core never implements a live client
// itself — only a bookkeeping DryRunClient for dryRun mode and, in the
// fake subpackage, a test double — the way the teacher's exchange adapters
// were a thin, signing/parsing shim over one shared HTTP/WS base.
package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"gridmm/internal/core"
)

// AssetMetadata is the precision/symbol pair the chain reports for an asset.
type AssetMetadata struct {
	Precision int
	Symbol    string
}

// AssetFees is the fee schedule the chain reports for a trading pair.
type AssetFees struct {
	MarketFeeBps   decimal.Decimal
	MaxMarketFee   decimal.Decimal
	TakerFeeBps    decimal.Decimal
	MakerRefundPct decimal.Decimal
}

// OpResult is the outcome of one op within an executed batch, positional
// with the input slice. A Create op's result carries the new chain order id.
type OpResult struct {
	ChainOrderID string
	Err          error
}

// UnsubscribeFunc stops a fill subscription. The chain client reference-
// counts subscriptions per account, so calling it only drops this caller's
// interest — the underlying account subscription stays open for others.
type UnsubscribeFunc func()

// ChainClient is the external collaborator per spec §6: connection,
// subscription, signing, broadcast, and precision/asset metadata all live
// behind it. Every method is a cooperative suspension point.
type ChainClient interface {
	// ReadOpenOrders returns the account's currently-open orders, parsed
	// into the shape the reconciler matches against grid slots.
	ReadOpenOrders(ctx context.Context, account string) ([]core.ChainOrder, error)

	// BuildCreateOp, BuildUpdateOp, and BuildCancelOp produce serializable
	// op descriptors; they do not themselves touch the network.
	BuildCreateOp(account string, side core.Side, price, size decimal.Decimal) core.ChainOp
	BuildUpdateOp(chainOrderID string, side core.Side, price, size decimal.Decimal) core.ChainOp
	BuildCancelOp(chainOrderID string) core.ChainOp

	// ExecuteBatch broadcasts ops atomically as one transaction and returns
	// results in the same order as the input, keyed by idempotencyKey so a
	// retried call after a timeout does not double-submit.
	ExecuteBatch(ctx context.Context, account, idempotencyKey string, ops []core.ChainOp) ([]OpResult, error)

	// Subscribe registers callback for this account's fill stream. The
	// returned UnsubscribeFunc releases this caller's interest.
	Subscribe(ctx context.Context, account string, callback func([]core.FillEvent)) (UnsubscribeFunc, error)

	// AssetMeta and GetAssetFees report static-ish chain metadata, each
	// cacheable by the caller for the lifetime of a bot.
	AssetMeta(ctx context.Context, asset string) (AssetMetadata, error)
	GetAssetFees(ctx context.Context, symbol string) (AssetFees, error)
}
