package trigger

import (
	"time"

	"github.com/shopspring/decimal"

	"gridmm/internal/core"
	"gridmm/internal/ledger"
	"gridmm/internal/orderstore"
)

// buildSnapshot assembles the durable snapshot for one bot from its live
// order store and ledger, the way the grid coordinator folded slot-manager
// state and the anchor price into a pb.State before saving it.
func buildSnapshot(botKey string, refPrice, incrementPercent decimal.Decimal, store *orderstore.Store, l *ledger.Ledger, lastFillID string) *core.PersistedSnapshot {
	buyFunds, sellFunds := l.Snapshot()

	return &core.PersistedSnapshot{
		BotKey: botKey,
		Grid: core.Grid{
			BotKey:           botKey,
			RefPrice:         refPrice,
			IncrementPercent: incrementPercent,
			Slots:            store.All(),
			BaseFunds:        sellFunds,
			QuoteFunds:       buyFunds,
		},
		LastFillID: lastFillID,
		SavedAt:    time.Now(),
	}
}

// restoreStore builds an orderstore.Store from a persisted snapshot, or an
// empty one if snap is nil (no prior save), feeding reconcile.Reconcile's
// store.Len()==0 "empty persisted" branch.
func restoreStore(snap *core.PersistedSnapshot) *orderstore.Store {
	if snap == nil {
		return orderstore.New(nil)
	}
	return orderstore.New(snap.Grid.Slots)
}

// restoreLedger seeds a Ledger from a persisted snapshot's exact funds, or
// fresh totals if snap is nil (first-ever start for this bot).
func restoreLedger(snap *core.PersistedSnapshot, buyTotal, sellTotal decimal.Decimal) *ledger.Ledger {
	if snap == nil {
		return ledger.New(buyTotal, sellTotal)
	}
	return ledger.Restore(snap.Grid.QuoteFunds, snap.Grid.BaseFunds)
}
