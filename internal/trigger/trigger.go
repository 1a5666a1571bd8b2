// Package trigger composes one bot's cooperative task: reconcile at start,
// drain the chain's fill subscription, scan on a tick, and react to an
// external recalculate signal, the way the grid coordinator folded warm-boot
// restore, exchange reconciliation, and price-update handling into one
// sequential per-symbol flow.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gridmm/internal/alert"
	"gridmm/internal/batchplan"
	"gridmm/internal/chain"
	"gridmm/internal/core"
	"gridmm/internal/divergence"
	"gridmm/internal/fillreducer"
	"gridmm/internal/gridgen"
	"gridmm/internal/ledger"
	"gridmm/internal/orderstore"
	"gridmm/internal/persistence"
	"gridmm/internal/reconcile"
	"gridmm/internal/rebalance"
	apperrors "gridmm/pkg/errors"
	"gridmm/pkg/retry"
)

// isTransientChainError classifies the chain client errors worth retrying:
// a timeout or a momentarily-unavailable endpoint, never a rejected batch.
func isTransientChainError(err error) bool {
	return errors.Is(err, apperrors.ErrChainTimeout) || errors.Is(err, apperrors.ErrChainUnavailable)
}

// Params is the full construction contract for one Bot.
type Params struct {
	BotKey  string
	Account string

	Chain    chain.ChainClient
	Persist  persistence.SnapshotStore
	Logger   core.ILogger
	Alerts   *alert.AlertManager // optional; nil disables divergence/halt notifications

	GridCfg       gridgen.Config
	BaseDecimals  int
	QuoteDecimals int

	ActiveOrdersBuy  int
	ActiveOrdersSell int

	DivergenceThreshold decimal.Decimal
	DivergenceCooldown  time.Duration
	DedupWindow         time.Duration

	TickInterval       time.Duration
	RecalcPollInterval time.Duration
	RecalcSignalPath   string

	// BatchRateLimit caps how often broadcastLocked may submit a batch to
	// the chain client, in batches/sec; 0 uses the default. Burst is fixed
	// at twice the rate, rounded up to at least 1.
	BatchRateLimit float64
}

// Bot is one grid order manager instance: single-writer per §5, driven
// exclusively by the Runners built from it.
type Bot struct {
	mu sync.Mutex

	botKey  string
	account string

	chainClient chain.ChainClient
	persist     persistence.SnapshotStore
	logger      core.ILogger
	alerts      *alert.AlertManager

	store    *orderstore.Store
	funds    *ledger.Ledger
	reducer  *fillreducer.Reducer
	detector *divergence.Detector

	gridCfg       gridgen.Config
	baseDecimals  int
	quoteDecimals int

	activeOrdersBuy  int
	activeOrdersSell int

	tickInterval       time.Duration
	recalcPollInterval time.Duration
	recalcSignalPath   string
	recalcLastSeen     time.Time

	lastFillID  string
	resyncing   bool // _isResyncing: suppresses the tick while a regeneration is in flight
	unsubscribe chain.UnsubscribeFunc

	broadcastLimiter *rate.Limiter
}

// NewBot wires a fresh Bot. Call Start before handing its Runners to an
// errgroup.
func NewBot(p Params) *Bot {
	dedupWindow := p.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Second
	}
	tickInterval := p.TickInterval
	if tickInterval <= 0 {
		tickInterval = 5 * time.Second
	}
	recalcPoll := p.RecalcPollInterval
	if recalcPoll <= 0 {
		recalcPoll = 5 * time.Second
	}
	batchRate := p.BatchRateLimit
	if batchRate <= 0 {
		batchRate = 5 // 5 batches/sec: generous for a single grid's rebalance cadence
	}
	burst := int(batchRate * 2)
	if burst < 1 {
		burst = 1
	}

	b := &Bot{
		botKey:             p.BotKey,
		account:            p.Account,
		chainClient:        p.Chain,
		persist:            p.Persist,
		logger:             p.Logger,
		alerts:             p.Alerts,
		gridCfg:            p.GridCfg,
		baseDecimals:       p.BaseDecimals,
		quoteDecimals:      p.QuoteDecimals,
		activeOrdersBuy:    p.ActiveOrdersBuy,
		activeOrdersSell:   p.ActiveOrdersSell,
		tickInterval:       tickInterval,
		recalcPollInterval: recalcPoll,
		recalcSignalPath:   p.RecalcSignalPath,
		detector:           divergence.New(p.DivergenceThreshold, p.DivergenceCooldown),
		broadcastLimiter:   rate.NewLimiter(rate.Limit(batchRate), burst),
	}
	return b
}

// Start restores persisted state (if any), reconciles against the chain's
// open orders, brings the active-order counts to target, subscribes to the
// fill stream, and persists the result — the single entry point a supervisor
// calls before wiring the Bot's Runners into an errgroup.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.persist.LoadSnapshot(ctx, b.botKey)
	if err != nil {
		return fmt.Errorf("trigger: load snapshot for %q: %w", b.botKey, err)
	}

	b.store = restoreStore(snap)
	b.funds = restoreLedger(snap, b.gridCfg.FundsBuy, b.gridCfg.FundsSell)
	b.reducer = fillreducer.New(b.store, b.funds, b.baseDecimals, b.quoteDecimals, 0)
	if snap != nil {
		b.lastFillID = snap.LastFillID
	}

	chainOrders, err := b.chainClient.ReadOpenOrders(ctx, b.account)
	if err != nil {
		return fmt.Errorf("trigger: read open orders for %q: %w", b.botKey, err)
	}

	report := reconcile.Reconcile(b.store, chainOrders, b.gridCfg.IncrementPercent)
	if report.Decision == reconcile.DecisionRegenerate {
		b.funds.Reset(core.SideBuy)
		b.funds.Reset(core.SideSell)
		b.resyncing = true
		err := b.regenerateLocked(ctx, chainOrders)
		b.resyncing = false
		if err != nil {
			return err
		}
	} else {
		if err := b.settleGhostsLocked(ctx, report); err != nil {
			return err
		}
		if err := b.adjustActiveCountsLocked(ctx); err != nil {
			return err
		}
	}

	unsub, err := b.chainClient.Subscribe(ctx, b.account, b.onFills)
	if err != nil {
		return fmt.Errorf("trigger: subscribe fills for %q: %w", b.botKey, err)
	}
	b.unsubscribe = unsub

	return b.persistLocked(ctx)
}

// onFills is the chain subscription callback; it serializes onto the bot's
// single-writer lock before reducing the batch.
func (b *Bot) onFills(fills []core.FillEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handleFillBatchLocked(context.Background(), fills)
}

func (b *Bot) handleFillBatchLocked(ctx context.Context, fills []core.FillEvent) {
	if len(fills) == 0 {
		return
	}
	now := time.Now()
	results := b.reducer.ReduceBatch(fills, now)

	for _, f := range fills {
		if f.HistoryID != "" {
			b.lastFillID = f.HistoryID
		}
	}

	rebalanced := rebalance.Process(b.store, b.funds, results)
	if err := b.executeRebalanceLocked(ctx, rebalanced); err != nil {
		b.logger.Error("trigger: executing rebalance batch failed", "bot", b.botKey, "error", err)
	}

	b.checkDivergenceLocked(ctx)

	if err := b.persistLocked(ctx); err != nil {
		b.logger.Error("trigger: persist after fill batch failed", "bot", b.botKey, "error", err)
	}
}

// executeRebalanceLocked turns a rebalance.Result into a batch, executes it
// on chain, and applies create results back into the store. Rotation and
// partial-move ops already carry the store mutation rebalance.Rotate
// performed; this only needs to broadcast. Creates from OrdersToPlace carry
// no slot tag, so broadcastLocked does not bind their chain_order_ids.
func (b *Bot) executeRebalanceLocked(ctx context.Context, r *rebalance.Result) error {
	if len(r.OrdersToPlace) == 0 && len(r.OrdersToRotate) == 0 && len(r.PartialMoves) == 0 {
		return nil
	}

	creates := make([]batchplan.PlannedOp, 0, len(r.OrdersToPlace))
	for _, op := range r.OrdersToPlace {
		creates = append(creates, batchplan.PlannedOp{ChainOp: op})
	}
	rotations := make([]batchplan.PlannedOp, 0, len(r.OrdersToRotate))
	for _, rot := range r.OrdersToRotate {
		rot.From.Mu.RLock()
		oldSize := rot.From.Size
		rot.From.Mu.RUnlock()
		op := b.nudgeIfZeroDelta(batchplan.PlannedOp{ChainOp: rot.Op, Tag: rot.To.ID}, oldSize)
		rotations = append(rotations, op)
	}
	partials := make([]batchplan.PlannedOp, 0, len(r.PartialMoves))
	for _, op := range r.PartialMoves {
		partials = append(partials, batchplan.PlannedOp{ChainOp: op})
	}

	rotations = batchplan.DedupRotations(rotations)
	batch := batchplan.Build(partials, rotations, creates, nil, b.baseDecimals, b.quoteDecimals)
	for _, d := range batch.Dropped {
		b.logger.Error("trigger: dropped op out of representable range", "bot", b.botKey, "reason", d.Reason)
	}
	if len(batch.Ops) == 0 {
		return nil
	}

	return b.broadcastLocked(ctx, batch.Ops)
}

// broadcastLocked executes a slice of already-ordered ops and binds any
// newly-minted create chain_order_ids back into their slots by tag.
func (b *Bot) broadcastLocked(ctx context.Context, ops []batchplan.PlannedOp) error {
	if err := b.broadcastLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("trigger: rate limit wait for %q: %w", b.botKey, err)
	}

	chainOps := make([]core.ChainOp, len(ops))
	for i, op := range ops {
		chainOps[i] = op.ChainOp
	}

	idempotencyKey := b.botKey + "-" + time.Now().UTC().Format(time.RFC3339Nano)
	var results []chain.OpResult
	err := retry.Do(ctx, retry.DefaultPolicy, isTransientChainError, func() error {
		var execErr error
		results, execErr = b.chainClient.ExecuteBatch(ctx, b.account, idempotencyKey, chainOps)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("trigger: execute batch for %q: %w", b.botKey, err)
	}

	for i, op := range ops {
		if op.Kind != core.ChainOpCreate || op.Tag == "" {
			continue
		}
		if i >= len(results) || results[i].Err != nil {
			continue
		}
		id := results[i].ChainOrderID
		_ = b.store.Update(op.Tag, func(s *core.GridSlot) {
			s.State = core.SlotActive
			s.ChainOrderID = id
		})
	}
	return nil
}

// nudgeIfZeroDelta applies batchplan.NudgeZeroDelta to op when its computed
// size matches oldSize, so a pure price move still registers as a revision
// on chain. Growth is allowed unless the op's side has no available funds
// left to cover the extra smallest unit, per §4.7/Ambiguity (a).
func (b *Bot) nudgeIfZeroDelta(op batchplan.PlannedOp, oldSize decimal.Decimal) batchplan.PlannedOp {
	decimals := b.baseDecimals
	if op.Side == core.SideBuy {
		decimals = b.quoteDecimals
	}
	allowGrow := b.funds.Side(op.Side).Available.GreaterThan(decimal.Zero)
	return batchplan.NudgeZeroDelta(op, oldSize, decimals, allowGrow)
}

// checkDivergenceLocked compares the currently-persisted sizes against the
// ideal sizes a fresh Generate would produce for the current funds, and
// triggers a corrective resize when the per-side metric trips.
func (b *Bot) checkDivergenceLocked(ctx context.Context) {
	if b.detector.IsCorrecting() {
		return
	}

	for _, side := range []core.GridSlotSide{core.SlotSideSell, core.SlotSideBuy} {
		persistedSizes := sizesForSide(b.store, side)
		idealSizes := b.idealSizesForSide(side)

		triggered, metric := b.detector.Check(side, idealSizes, persistedSizes, time.Now())
		if !triggered {
			continue
		}
		b.notifyDivergence(ctx, side, metric)
		if !b.detector.BeginCorrection() {
			b.notifyDivergenceHalt(ctx, side)
			return
		}
		b.applyDivergenceCorrectionLocked(ctx, side, idealSizes)
		b.detector.EndCorrection()
	}
}

func sizesForSide(store *orderstore.Store, side core.GridSlotSide) []decimal.Decimal {
	var out []decimal.Decimal
	for _, state := range []core.GridSlotState{core.SlotActive, core.SlotPartial, core.SlotVirtual, core.SlotFilled} {
		for _, slot := range store.BySideState(side, state) {
			slot.Mu.RLock()
			out = append(out, slot.Size)
			slot.Mu.RUnlock()
		}
	}
	return out
}

func (b *Bot) idealSizesForSide(side core.GridSlotSide) []decimal.Decimal {
	cfg := b.gridCfg
	buy, sell := b.funds.Snapshot()
	cfg.FundsBuy = buy.Total.Sub(buy.Committed)
	cfg.FundsSell = sell.Total.Sub(sell.Committed)

	slots, err := gridgen.Generate(cfg)
	if err != nil {
		return nil
	}
	var out []decimal.Decimal
	for _, slot := range slots {
		if slot.Side == side {
			out = append(out, slot.Size)
		}
	}
	return out
}

// applyDivergenceCorrectionLocked resizes every non-terminal slot on side to
// its freshly-computed ideal size, keeping prices and chain_order_ids
// unchanged, and pushes an UPDATE for every slot still resting on chain.
func (b *Bot) applyDivergenceCorrectionLocked(ctx context.Context, side core.GridSlotSide, idealSizes []decimal.Decimal) {
	var slots []*core.GridSlot
	for _, state := range []core.GridSlotState{core.SlotVirtual, core.SlotActive, core.SlotPartial} {
		slots = append(slots, b.store.BySideState(side, state)...)
	}

	n := len(idealSizes)
	if len(slots) < n {
		n = len(slots)
	}

	var updates []batchplan.PlannedOp
	for i := 0; i < n; i++ {
		slot := slots[i]
		newSize := idealSizes[i]

		slot.Mu.RLock()
		oldSize := slot.Size
		slot.Mu.RUnlock()

		_ = b.store.Update(slot.ID, func(s *core.GridSlot) {
			s.Size = newSize
		})

		slot.Mu.RLock()
		state := slot.State
		chainOrderID := slot.ChainOrderID
		price := slot.Price
		slot.Mu.RUnlock()

		if state == core.SlotActive || state == core.SlotPartial {
			op := b.nudgeIfZeroDelta(batchplan.PlannedOp{
				ChainOp: core.ChainOp{Kind: core.ChainOpUpdate, Side: orderSideOf(side), Price: price, Size: newSize, ChainOrderID: chainOrderID},
				Tag:     slot.ID,
			}, oldSize)
			updates = append(updates, op)
		}
	}

	if len(updates) == 0 {
		return
	}
	batch := batchplan.Build(updates, nil, nil, nil, b.baseDecimals, b.quoteDecimals)
	for _, d := range batch.Dropped {
		b.logger.Error("trigger: divergence correction op dropped", "bot", b.botKey, "reason", d.Reason)
	}
	if err := b.broadcastLocked(ctx, batch.Ops); err != nil {
		b.logger.Error("trigger: divergence correction broadcast failed", "bot", b.botKey, "error", err)
	}
}

// notifyDivergence reports a tripped divergence check, a routine event an
// operator still wants visibility into since it means funds are drifting
// from the grid's ideal distribution.
func (b *Bot) notifyDivergence(ctx context.Context, side core.GridSlotSide, metric decimal.Decimal) {
	if b.alerts == nil {
		return
	}
	b.alerts.Alert(ctx, "grid divergence detected", "resizing "+string(side)+" side toward ideal sizes", alert.Warning,
		map[string]string{"bot": b.botKey, "side": string(side), "metric": metric.String()})
}

// notifyDivergenceHalt reports that a correction was already in flight when
// another trip occurred on the same bot — the resize loop isn't keeping up,
// which is the condition apperrors.ErrDivergenceHalt names.
func (b *Bot) notifyDivergenceHalt(ctx context.Context, side core.GridSlotSide) {
	if b.alerts == nil {
		return
	}
	b.alerts.Alert(ctx, "divergence correction overlap", apperrors.ErrDivergenceHalt.Error(), alert.Critical,
		map[string]string{"bot": b.botKey, "side": string(side)})
}

func orderSideOf(side core.GridSlotSide) core.Side {
	if side == core.SlotSideBuy {
		return core.SideBuy
	}
	return core.SideSell
}

func (b *Bot) persistLocked(ctx context.Context) error {
	snap := buildSnapshot(b.botKey, b.gridCfg.RefPrice, b.gridCfg.IncrementPercent, b.store, b.funds, b.lastFillID)
	return b.persist.SaveSnapshot(ctx, snap)
}

// settleGhostsLocked repurposes ghost chain orders by updating them toward a
// target virtual slot when one is still needed, or cancels them, per §4.4's
// "update-to-target (preferred)... or cancels it if target count is
// already met".
func (b *Bot) settleGhostsLocked(ctx context.Context, report reconcile.Report) error {
	if len(report.GhostChainOrders) == 0 {
		return nil
	}

	var claims, cancels []batchplan.PlannedOp
	for _, ghost := range report.GhostChainOrders {
		side := core.SlotSideSell
		if ghost.Side == core.SideBuy {
			side = core.SlotSideBuy
		}
		virtuals := b.store.BySideState(side, core.SlotVirtual)
		want := b.activeOrdersSell
		if side == core.SlotSideBuy {
			want = b.activeOrdersBuy
		}
		placed := len(b.store.BySideState(side, core.SlotActive)) + len(b.store.BySideState(side, core.SlotPartial))
		if len(virtuals) == 0 || placed >= want {
			cancels = append(cancels, batchplan.PlannedOp{ChainOp: core.ChainOp{Kind: core.ChainOpCancel, ChainOrderID: ghost.ChainOrderID}})
			continue
		}
		target := virtuals[0]
		target.Mu.RLock()
		price, size := target.Price, target.Size
		target.Mu.RUnlock()

		_ = b.store.Update(target.ID, func(s *core.GridSlot) {
			s.State = core.SlotActive
			s.ChainOrderID = ghost.ChainOrderID
		})
		op := b.nudgeIfZeroDelta(batchplan.PlannedOp{ChainOp: core.ChainOp{Kind: core.ChainOpUpdate, Side: ghost.Side, Price: price, Size: size, ChainOrderID: ghost.ChainOrderID}}, ghost.Size)
		claims = append(claims, op)
	}

	if len(claims) == 0 && len(cancels) == 0 {
		return nil
	}
	batch := batchplan.Build(nil, claims, nil, cancels, b.baseDecimals, b.quoteDecimals)
	return b.broadcastLocked(ctx, batch.Ops)
}

// adjustActiveCountsLocked brings both sides' ACTIVE+PARTIAL counts to
// activeOrdersBuy/Sell by cancelling excess innermost actives or activating
// outermost virtuals, per §4.4/§8.
func (b *Bot) adjustActiveCountsLocked(ctx context.Context) error {
	var creates, cancels []batchplan.PlannedOp

	for _, sc := range []struct {
		side   core.GridSlotSide
		target int
	}{{core.SlotSideSell, b.activeOrdersSell}, {core.SlotSideBuy, b.activeOrdersBuy}} {
		plan := reconcile.AdjustActiveCount(b.store, sc.side, sc.target)
		orderSide := orderSideOf(sc.side)

		for _, slot := range plan.ToActivate {
			slot.Mu.RLock()
			price, size := slot.Price, slot.Size
			slot.Mu.RUnlock()
			op := b.chainClient.BuildCreateOp(b.account, orderSide, price, size)
			creates = append(creates, batchplan.PlannedOp{ChainOp: op, Tag: slot.ID})
		}
		for _, slot := range plan.ToCancel {
			slot.Mu.RLock()
			chainOrderID := slot.ChainOrderID
			slot.Mu.RUnlock()
			_ = b.store.Update(slot.ID, func(s *core.GridSlot) {
				s.State = core.SlotVirtual
				s.ChainOrderID = ""
			})
			cancels = append(cancels, batchplan.PlannedOp{ChainOp: b.chainClient.BuildCancelOp(chainOrderID)})
		}
	}

	if len(creates) == 0 && len(cancels) == 0 {
		return nil
	}
	batch := batchplan.Build(nil, nil, creates, cancels, b.baseDecimals, b.quoteDecimals)
	return b.broadcastLocked(ctx, batch.Ops)
}

// regenerateLocked cancels every chain order this bot still recognizes (or,
// at startup, every order currently open for the account), builds a fresh
// grid from gridCfg, installs it, and activates each side up to target.
func (b *Bot) regenerateLocked(ctx context.Context, chainOrders []core.ChainOrder) error {
	var cancels []batchplan.PlannedOp
	for _, o := range chainOrders {
		cancels = append(cancels, batchplan.PlannedOp{ChainOp: b.chainClient.BuildCancelOp(o.ChainOrderID)})
	}
	if len(cancels) > 0 {
		batch := batchplan.Build(nil, nil, nil, cancels, b.baseDecimals, b.quoteDecimals)
		if err := b.broadcastLocked(ctx, batch.Ops); err != nil {
			return err
		}
	}

	slots, err := gridgen.Generate(b.gridCfg)
	if err != nil {
		return fmt.Errorf("trigger: generate grid for %q: %w", b.botKey, err)
	}
	b.store.Replace(slots)

	var buyReserved, sellReserved decimal.Decimal
	for _, s := range slots {
		if s.Side == core.SlotSideBuy {
			buyReserved = buyReserved.Add(s.Size)
		} else if s.Side == core.SlotSideSell {
			sellReserved = sellReserved.Add(s.Size)
		}
	}
	b.funds.SetVirtualReserved(core.SideBuy, buyReserved)
	b.funds.SetVirtualReserved(core.SideSell, sellReserved)

	return b.adjustActiveCountsLocked(ctx)
}

// Recalculate implements the external "recalculate" signal: cancel
// everything, reset the accounting side-channels, regenerate, and persist.
func (b *Bot) Recalculate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resyncing = true
	defer func() { b.resyncing = false }()

	chainOrders, err := b.chainClient.ReadOpenOrders(ctx, b.account)
	if err != nil {
		return fmt.Errorf("trigger: read open orders for recalculate on %q: %w", b.botKey, err)
	}

	b.funds.Reset(core.SideBuy)
	b.funds.Reset(core.SideSell)

	if err := b.regenerateLocked(ctx, chainOrders); err != nil {
		return err
	}
	return b.persistLocked(ctx)
}

// Tick refreshes still-ACTIVE/PARTIAL slots against the chain's reported
// open orders, treats any that vanished as a missed fill (best-effort, since
// the chain snapshot carries no received-amount detail a fill event would),
// and re-persists if anything changed.
func (b *Bot) Tick(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.resyncing {
		return nil
	}

	chainOrders, err := b.chainClient.ReadOpenOrders(ctx, b.account)
	if err != nil {
		return fmt.Errorf("trigger: tick read open orders for %q: %w", b.botKey, err)
	}
	open := make(map[string]bool, len(chainOrders))
	for _, o := range chainOrders {
		open[o.ChainOrderID] = true
	}

	var results []fillreducer.Result
	for _, side := range []core.GridSlotSide{core.SlotSideSell, core.SlotSideBuy} {
		actives := append(b.store.BySideState(side, core.SlotActive), b.store.BySideState(side, core.SlotPartial)...)
		for _, slot := range actives {
			slot.Mu.RLock()
			chainOrderID := slot.ChainOrderID
			price := slot.Price
			size := slot.Size
			slot.Mu.RUnlock()

			if open[chainOrderID] {
				continue
			}

			orderSide := orderSideOf(side)
			received := price.Mul(size)
			if orderSide == core.SideBuy && price.IsPositive() {
				received = size.Div(price)
			}
			_ = b.funds.ReleaseCommitted(orderSide, size)
			b.funds.CreditProceeds(orderSide, received)
			_ = b.store.Update(slot.ID, func(s *core.GridSlot) {
				s.State = core.SlotFilled
				s.ChainOrderID = ""
			})
			results = append(results, fillreducer.Result{Outcome: fillreducer.OutcomeFull, Slot: slot})
			b.logger.Warn("trigger: detected missed fill on tick", "bot", b.botKey, "slot", slot.ID)
		}
	}

	if len(results) > 0 {
		rebalanced := rebalance.Process(b.store, b.funds, results)
		if err := b.executeRebalanceLocked(ctx, rebalanced); err != nil {
			b.logger.Error("trigger: executing tick-triggered rebalance failed", "bot", b.botKey, "error", err)
		}
		b.checkDivergenceLocked(ctx)
		return b.persistLocked(ctx)
	}
	return nil
}

// RecalculateSignalFired reports whether the recalculate file's mtime has
// advanced since the last check, per §4.9's polling file-watcher.
func (b *Bot) RecalculateSignalFired() bool {
	if b.recalcSignalPath == "" {
		return false
	}
	info, err := os.Stat(b.recalcSignalPath)
	if err != nil {
		return false
	}
	if info.ModTime().After(b.recalcLastSeen) {
		b.recalcLastSeen = info.ModTime()
		return true
	}
	return false
}

// BotStatus is a read-only snapshot of one bot's current state, for the
// admin status endpoint and for telemetry gauge updates.
type BotStatus struct {
	BotKey     string
	Resyncing  bool
	LastFillID string
	SlotCounts map[string]int // "<side>:<state>" -> count, e.g. "BUY:ACTIVE"
	BuyFunds   core.Funds
	SellFunds  core.Funds
}

// Status builds a BotStatus from the bot's current in-memory state. Safe to
// call concurrently with Start/Tick/Recalculate/onFills.
func (b *Bot) Status() BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int)
	for _, slot := range b.store.All() {
		slot.Mu.RLock()
		key := string(slot.Side) + ":" + string(slot.State)
		slot.Mu.RUnlock()
		counts[key]++
	}
	buy, sell := b.funds.Snapshot()

	return BotStatus{
		BotKey:     b.botKey,
		Resyncing:  b.resyncing,
		LastFillID: b.lastFillID,
		SlotCounts: counts,
		BuyFunds:   buy,
		SellFunds:  sell,
	}
}

// Close unsubscribes from the chain's fill stream and closes the persistence
// handle.
func (b *Bot) Close() error {
	b.mu.Lock()
	unsub := b.unsubscribe
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	return b.persist.Close()
}
