package batchplan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridmm/internal/core"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func op(kind core.ChainOpKind, side core.Side, tag string) PlannedOp {
	return PlannedOp{ChainOp: core.ChainOp{Kind: kind, Side: side, Price: d(100), Size: d(1)}, Tag: tag}
}

func TestBuild_OrdersPartialMovesThenRotationsThenCreatesThenCancels(t *testing.T) {
	partial := []PlannedOp{op(core.ChainOpUpdate, core.SideSell, "partial-1")}
	rotations := []PlannedOp{op(core.ChainOpUpdate, core.SideBuy, "rotation-1")}
	creates := []PlannedOp{op(core.ChainOpCreate, core.SideSell, "create-1")}
	cancels := []PlannedOp{op(core.ChainOpCancel, core.SideBuy, "cancel-1")}

	batch := Build(partial, rotations, creates, cancels, 8, 8)
	assert.Len(t, batch.Ops, 4)
	assert.Equal(t, "partial-1", batch.Ops[0].Tag)
	assert.Equal(t, "rotation-1", batch.Ops[1].Tag)
	assert.Equal(t, "create-1", batch.Ops[2].Tag)
	assert.Equal(t, "cancel-1", batch.Ops[3].Tag)
	assert.Empty(t, batch.Dropped)
}

func TestBuild_DropsOpsOutOfRepresentableRange(t *testing.T) {
	huge := op(core.ChainOpCreate, core.SideSell, "huge")
	huge.Size = decimal.NewFromFloat(1e30)

	batch := Build(nil, nil, []PlannedOp{huge}, nil, 8, 8)
	assert.Empty(t, batch.Ops)
	assert.Len(t, batch.Dropped, 1)
	assert.Equal(t, "huge", batch.Dropped[0].Op.Tag)
}

func TestBuild_CancelsAlwaysPassValidation(t *testing.T) {
	cancel := PlannedOp{ChainOp: core.ChainOp{Kind: core.ChainOpCancel, ChainOrderID: "x"}, Tag: "cancel-1"}
	batch := Build(nil, nil, nil, []PlannedOp{cancel}, 8, 8)
	assert.Len(t, batch.Ops, 1)
}

func TestNudgeZeroDelta_GrowsByOneUnitTowardMarket(t *testing.T) {
	o := op(core.ChainOpUpdate, core.SideSell, "nudge-1")
	nudged := NudgeZeroDelta(o, o.Size, 8, true)
	assert.True(t, nudged.Size.GreaterThan(o.Size))
	assert.True(t, nudged.Size.Sub(o.Size).Equal(decimal.NewFromFloat(0.00000001)))
}

func TestNudgeZeroDelta_ShrinksByOneUnitWhenGrowthNotAllowed(t *testing.T) {
	o := op(core.ChainOpUpdate, core.SideSell, "nudge-2")
	nudged := NudgeZeroDelta(o, o.Size, 8, false)
	assert.True(t, nudged.Size.LessThan(o.Size))
}

func TestNudgeZeroDelta_NoOpWhenSizeAlreadyDiffers(t *testing.T) {
	o := op(core.ChainOpUpdate, core.SideSell, "nudge-3")
	o.Size = d(2)
	nudged := NudgeZeroDelta(o, d(1), 8, true)
	assert.True(t, nudged.Size.Equal(d(2)))
}

func TestDedupRotations_DropsSecondRotationSharingSourceChainOrderID(t *testing.T) {
	a := PlannedOp{ChainOp: core.ChainOp{Kind: core.ChainOpUpdate, ChainOrderID: "dup"}, Tag: "a"}
	b := PlannedOp{ChainOp: core.ChainOp{Kind: core.ChainOpUpdate, ChainOrderID: "dup"}, Tag: "b"}
	c := PlannedOp{ChainOp: core.ChainOp{Kind: core.ChainOpUpdate, ChainOrderID: "unique"}, Tag: "c"}

	out := DedupRotations([]PlannedOp{a, b, c})
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Tag)
	assert.Equal(t, "c", out[1].Tag)
}
