package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridmm/internal/core"
)

func TestNewSeedsAvailableToTotal(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.NewFromInt(10))

	buy, sell := l.Snapshot()
	assert.True(t, buy.Available.Equal(decimal.NewFromInt(1000)))
	assert.True(t, buy.Total.Equal(decimal.NewFromInt(1000)))
	assert.True(t, sell.Available.Equal(decimal.NewFromInt(10)))
}

func TestSetVirtualReservedReducesAvailable(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.Zero)
	l.SetVirtualReserved(core.SideBuy, decimal.NewFromInt(400))

	f := l.Side(core.SideBuy)
	assert.True(t, f.VirtualReserved.Equal(decimal.NewFromInt(400)))
	assert.True(t, f.Available.Equal(decimal.NewFromInt(600)))
}

func TestCommitMovesFundsFromVirtualReservedToCommitted(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.Zero)
	l.SetVirtualReserved(core.SideBuy, decimal.NewFromInt(400))

	l.Commit(core.SideBuy, decimal.NewFromInt(100))

	f := l.Side(core.SideBuy)
	assert.True(t, f.Committed.Equal(decimal.NewFromInt(100)))
	assert.True(t, f.VirtualReserved.Equal(decimal.NewFromInt(300)))
	assert.True(t, f.Available.Equal(decimal.NewFromInt(600)))
	assertInvariant(t, f)
}

func TestReleaseCommittedFreesFundsBackToAvailable(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.Zero)
	l.Commit(core.SideBuy, decimal.NewFromInt(100))

	err := l.ReleaseCommitted(core.SideBuy, decimal.NewFromInt(100))
	assert.NoError(t, err)

	f := l.Side(core.SideBuy)
	assert.True(t, f.Committed.IsZero())
	assert.True(t, f.Available.Equal(decimal.NewFromInt(1000)))
}

func TestReleaseCommittedRejectsOverRelease(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.Zero)
	l.Commit(core.SideBuy, decimal.NewFromInt(50))

	err := l.ReleaseCommitted(core.SideBuy, decimal.NewFromInt(100))
	assert.Error(t, err)
}

func TestCreditProceedsGoesToMirrorSide(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.NewFromInt(10))

	// A SELL fill's proceeds (quote asset) credit the buy side.
	l.CreditProceeds(core.SideSell, decimal.NewFromInt(50))
	buy := l.Side(core.SideBuy)
	assert.True(t, buy.PendingProceeds.Equal(decimal.NewFromInt(50)))

	// A BUY fill's proceeds (base asset) credit the sell side.
	l.CreditProceeds(core.SideBuy, decimal.NewFromFloat(0.5))
	sell := l.Side(core.SideSell)
	assert.True(t, sell.PendingProceeds.Equal(decimal.NewFromFloat(0.5)))
}

func TestConsumeProceedsPrefersProceedsBeforeAvailable(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.Zero)
	l.CreditProceeds(core.SideSell, decimal.NewFromInt(30))

	consumed := l.ConsumeProceeds(core.SideBuy, decimal.NewFromInt(100))
	assert.True(t, consumed.Equal(decimal.NewFromInt(100)))

	f := l.Side(core.SideBuy)
	assert.True(t, f.PendingProceeds.IsZero())
	assert.True(t, f.Committed.Equal(decimal.NewFromInt(100)))
	assertInvariant(t, f)
}

func TestConsumeProceedsPartialWhenInsufficientFunds(t *testing.T) {
	l := New(decimal.NewFromInt(40), decimal.Zero)
	l.CreditProceeds(core.SideSell, decimal.NewFromInt(10))

	consumed := l.ConsumeProceeds(core.SideBuy, decimal.NewFromInt(100))
	assert.True(t, consumed.Equal(decimal.NewFromInt(50)))

	f := l.Side(core.SideBuy)
	assert.True(t, f.Available.IsZero())
	assertInvariant(t, f)
}

func TestAddFeesAccrues(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.Zero)
	l.AddFees(core.SideBuy, decimal.NewFromFloat(0.1))
	l.AddFees(core.SideBuy, decimal.NewFromFloat(0.2))

	f := l.Side(core.SideBuy)
	assert.True(t, f.FeesOwed.Equal(decimal.NewFromFloat(0.3)))
}

func TestResetClearsProceedsFeesAndCache(t *testing.T) {
	l := New(decimal.NewFromInt(1000), decimal.Zero)
	l.CreditProceeds(core.SideSell, decimal.NewFromInt(10))
	l.AddFees(core.SideBuy, decimal.NewFromFloat(0.1))
	l.SetCacheFunds(core.SideBuy, decimal.NewFromInt(5))

	l.Reset(core.SideBuy)

	f := l.Side(core.SideBuy)
	assert.True(t, f.PendingProceeds.IsZero())
	assert.True(t, f.FeesOwed.IsZero())
	assert.True(t, f.CacheFunds.IsZero())
}

func assertInvariant(t *testing.T, f core.Funds) {
	t.Helper()
	sum := f.Committed.Add(f.Available).Add(f.VirtualReserved)
	assert.True(t, sum.Equal(f.Total), "committed+available+virtualReserved should equal total, got %s vs total %s", sum, f.Total)
}
