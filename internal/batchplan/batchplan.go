// Package batchplan assembles rebalancer decisions into an ordered list of
// chain operations, the way the order executor batched placements and
// cancels — but here ordering and validation happen before anything is
// dispatched, since the chain client is an external collaborator.
package batchplan

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gridmm/internal/core"
	"gridmm/internal/precision"
	apperrors "gridmm/pkg/errors"
)

// PlannedOp is one chain operation plus the context tag the batch executor
// uses to map results back to the originating grid slot.
type PlannedOp struct {
	core.ChainOp
	Tag string // the GridSlot.ID this op targets
}

// Batch is an ordered set of operations ready for a BatchExecutor:
// partial-moves, then rotations, then creates, then cancels of excess
// orders appended last, per §4.5/§5's ordering guarantee.
type Batch struct {
	Ops     []PlannedOp
	Dropped []DroppedOp
}

// DroppedOp records an op that failed validation and was excluded from the
// batch, along with why — §4.7 requires these be logged, not silently lost.
type DroppedOp struct {
	Op     PlannedOp
	Reason string
}

// Build concatenates the four op groups in the mandated order and validates
// each against the chain's representable integer range at the given
// per-side decimals, dropping (and reporting) any that don't fit.
func Build(partialMoves, rotations, creates, cancels []PlannedOp, baseDecimals, quoteDecimals int) Batch {
	ordered := make([]PlannedOp, 0, len(partialMoves)+len(rotations)+len(creates)+len(cancels))
	ordered = append(ordered, partialMoves...)
	ordered = append(ordered, rotations...)
	ordered = append(ordered, creates...)
	ordered = append(ordered, cancels...)

	batch := Batch{}
	for _, op := range ordered {
		decimals := baseDecimals
		if op.Side == core.SideBuy {
			decimals = quoteDecimals
		}
		if err := validateRange(op, decimals); err != nil {
			batch.Dropped = append(batch.Dropped, DroppedOp{Op: op, Reason: err.Error()})
			continue
		}
		batch.Ops = append(batch.Ops, op)
	}
	return batch
}

// validateRange checks that an op's price and size both fit the chain's
// representable integer range at the given precision. Cancels carry no
// price/size and always pass.
func validateRange(op PlannedOp, decimals int) error {
	if op.Kind == core.ChainOpCancel {
		return nil
	}
	if _, err := precision.ToChainInt(op.Size, decimals); err != nil {
		return fmt.Errorf("size out of range: %v: %w", err, apperrors.ErrValidationRange)
	}
	if _, err := precision.ToChainInt(op.Price, decimals); err != nil {
		return fmt.Errorf("price out of range: %v: %w", err, apperrors.ErrValidationRange)
	}
	return nil
}

// NudgeZeroDelta resolves Ambiguity (a): a pure-price UPDATE whose computed
// size is unchanged from the slot's previous resting size gets a ±1
// smallest-unit nudge so the chain accepts it as a real revision. The size
// grows by one unit whenever the caller allows it (allowGrow=true), and
// shrinks by one unit (not below zero) when growing would overflow the
// side's available funds (allowGrow=false). The direction does not depend
// on which way the price moved.
func NudgeZeroDelta(op PlannedOp, oldSize decimal.Decimal, decimals int, allowGrow bool) PlannedOp {
	if op.Kind != core.ChainOpUpdate || !op.Size.Equal(oldSize) {
		return op
	}
	unit := precision.SmallestUnit(decimals)
	if allowGrow {
		op.Size = op.Size.Add(unit)
	} else {
		op.Size = op.Size.Sub(unit)
		if op.Size.IsNegative() {
			op.Size = decimal.Zero
		}
	}
	return op
}

// DedupRotations drops any rotation op after the first that shares a source
// chain_order_id, per §4.5's "two rotations cannot share a source
// chain_order_id in one batch".
func DedupRotations(ops []PlannedOp) []PlannedOp {
	seen := make(map[string]bool, len(ops))
	out := make([]PlannedOp, 0, len(ops))
	for _, op := range ops {
		if op.ChainOrderID != "" {
			if seen[op.ChainOrderID] {
				continue
			}
			seen[op.ChainOrderID] = true
		}
		out = append(out, op)
	}
	return out
}
