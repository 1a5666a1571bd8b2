// Package core defines the domain types and interfaces shared across the
// grid order manager: the slot state machine, the funds ledger, the batch
// operation descriptors, and the logger interface that every other package
// depends on. The chain client interface lives in internal/chain.
package core

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Side is a grid order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// GridSlotState is the state machine for a single grid price level.
// A slot starts Virtual (no resting order), becomes Active once an order is
// resting on the chain, Partial once some of that order has filled, and
// Filled once it has fully executed and awaits rotation to the other side.
type GridSlotState string

const (
	SlotVirtual GridSlotState = "VIRTUAL"
	SlotActive  GridSlotState = "ACTIVE"
	SlotPartial GridSlotState = "PARTIAL"
	SlotFilled  GridSlotState = "FILLED"
)

// GridSlotSide is the side a slot occupies in the ladder: SELL and BUY book
// orders, SPREAD marks the reserved inner band never placed on chain.
type GridSlotSide string

const (
	SlotSideSell   GridSlotSide = "SELL"
	SlotSideBuy    GridSlotSide = "BUY"
	SlotSideSpread GridSlotSide = "SPREAD"
)

// ChainOpKind is the kind of operation a batch assembles for the chain client.
type ChainOpKind string

const (
	ChainOpCreate ChainOpKind = "CREATE"
	ChainOpUpdate ChainOpKind = "UPDATE"
	ChainOpCancel ChainOpKind = "CANCEL"
)

// Asset identifies one side of the traded pair.
type Asset struct {
	Symbol   string
	Decimals int // on-chain smallest-unit decimals
}

// GridSlot is one price level of the grid: a fixed price with a state
// machine tracking whatever order currently occupies it. Always handled by
// pointer; Mu guards the fields below it and is acquired only after the
// order store's own map-level mutex, per the locking hierarchy documented on
// orderstore.Store.
type GridSlot struct {
	// ID is the stable symbolic key "<side>-<index>" assigned at grid
	// creation and never reused within a grid's lifetime.
	ID    string
	Price decimal.Decimal
	Side  GridSlotSide

	Mu sync.RWMutex `json:"-"`

	State GridSlotState
	// Size is the target amount in the sold asset: A for SELL, B for BUY.
	Size          decimal.Decimal
	ChainOrderID  string
	ClientOrderID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the slot's map key, stable across restarts.
func (s *GridSlot) Key() string {
	return s.ID
}

// OrderSide returns the order side to submit to the chain client for this
// slot. SPREAD slots never reach this call.
func (s *GridSlot) OrderSide() Side {
	if s.Side == SlotSideBuy {
		return SideBuy
	}
	return SideSell
}

// Funds is the fund accounting ledger for one bot, tracked per side so a
// restart can reconstruct exactly how much is free to commit to new orders.
// Invariant: Committed + Available + VirtualReserved == Total, up to rounding
// at asset precision.
type Funds struct {
	Side            Side
	Total           decimal.Decimal // max funds committable on this side
	Committed       decimal.Decimal // locked in ACTIVE+PARTIAL orders
	Available       decimal.Decimal // Total - Committed - VirtualReserved
	VirtualReserved decimal.Decimal // sum of sizes of VIRTUAL slots on this side
	CacheFunds      decimal.Decimal // residual from a resize that did not fit a whole slot
	PendingProceeds decimal.Decimal // proceeds from a fill not yet rotated into a new order
	FeesOwed        decimal.Decimal // accrued fees not yet netted out
}

// Grid is the full ladder for one bot: SELL slots above the reference price,
// BUY slots below, and a reserved SPREAD band between them, plus the ledger
// for each asset. Slots is the canonical store, in generation order: SELL
// slots innermost to outermost, then BUY slots innermost to outermost;
// BySide/ByID views are built by orderstore.Store.
type Grid struct {
	BotKey           string
	RefPrice         decimal.Decimal
	IncrementPercent decimal.Decimal
	Slots            []*GridSlot
	BaseFunds        Funds // asset A, sold by SELL slots
	QuoteFunds       Funds // asset B, sold by BUY slots
}

// FillEvent is a single fill reported by the chain client's fill stream.
type FillEvent struct {
	ChainOrderID  string
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	FilledSize    decimal.Decimal // amount paid, in the slot's sold asset
	ReceivedSize  decimal.Decimal // amount received, in the opposite asset
	IsMaker       bool
	BlockHeight   uint64
	HistoryID     string // exchange/chain-assigned id, used for fill dedup
	Timestamp     time.Time
}

// ChainOrder is one open order reported by the chain client, parsed into the
// shape the reconciler matches against grid slots.
type ChainOrder struct {
	ChainOrderID string
	Side         Side
	Price        decimal.Decimal
	Size         decimal.Decimal
	Remaining    decimal.Decimal
}

// PersistedSnapshot is the durable, restart-surviving representation of a
// bot's grid and ledger, written after every state-changing event.
type PersistedSnapshot struct {
	BotKey     string
	Grid       Grid
	LastFillID string
	Checksum   string
	SavedAt    time.Time
}

// ChainOp is one operation destined for the chain client, assembled by the
// batch planner and executed atomically as a unit by a BatchExecutor.
type ChainOp struct {
	Kind          ChainOpKind
	Side          Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	ChainOrderID  string // set for Update/Cancel
	ClientOrderID string // set for Create
}

// ReconciliationReport is a typed summary of one reconciliation pass. No
// package in this module builds or serves one; the admin status endpoint
// serves trigger.BotStatus.
type ReconciliationReport struct {
	BotKey        string
	Status        string // "ok", "corrected", "halted"
	StartedAt     time.Time
	CompletedAt   time.Time
	GhostOrders   int
	GhostFills    int
	DivergencePct decimal.Decimal
	Corrected     bool
}

// ILogger defines the logging interface used throughout the module.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
