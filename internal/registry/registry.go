// Package registry wires a loaded Config into a running set of bots: one
// trigger.Bot per configured entry, each with its own chain client,
// persistence handle, and tick/recalculate runners, the way live_server's
// main wired one exchange/stream pipeline per configured symbol behind a
// shared worker pool and health manager.
package registry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/shopspring/decimal"

	"gridmm/internal/alert"
	"gridmm/internal/bootstrap"
	"gridmm/internal/chain"
	"gridmm/internal/config"
	"gridmm/internal/core"
	"gridmm/internal/durablebatch"
	"gridmm/internal/gridgen"
	"gridmm/internal/infrastructure/health"
	"gridmm/internal/persistence"
	"gridmm/internal/trigger"
	"gridmm/pkg/concurrency"
	"gridmm/pkg/telemetry"
)

// ChainClientFactory builds the ChainClient one bot should trade through.
// The default factory only ever returns a DryRunClient — a live client is a
// configured-by-reference external collaborator per the order manager's
// scope, so a process wiring a real one must supply its own factory.
type ChainClientFactory func(ctx context.Context, bot config.BotConfig, logger core.ILogger) (chain.ChainClient, error)

// DefaultChainClientFactory honors bot.DryRun and refuses everything else.
func DefaultChainClientFactory(ctx context.Context, bot config.BotConfig, logger core.ILogger) (chain.ChainClient, error) {
	if !bot.DryRun {
		return nil, fmt.Errorf("registry: bot %q requests a live chain client; the default factory only builds DryRunClient (dry_run: true) — supply a ChainClientFactory for live trading", bot.Name)
	}
	baseMeta := chain.AssetMetadata{Precision: bot.QuantityDecimals, Symbol: bot.BaseAsset}
	quoteMeta := chain.AssetMetadata{Precision: bot.PriceDecimals, Symbol: bot.QuoteAsset}
	fees := chain.AssetFees{
		MarketFeeBps:   decimal.Zero,
		MaxMarketFee:   decimal.Zero,
		TakerFeeBps:    decimal.Zero,
		MakerRefundPct: decimal.Zero,
	}
	return chain.NewDryRunClient(logger, baseMeta, quoteMeta, fees), nil
}

// Options configures Registry construction beyond what Config alone carries.
type Options struct {
	ChainClientFactory ChainClientFactory // nil uses DefaultChainClientFactory
	MetricsInterval    time.Duration      // 0 disables the metrics runner

	// DBOSContext, when set, wraps every bot's chain client so ExecuteBatch
	// runs as a durable workflow step instead of a plain call. Its lifecycle
	// (Launch/Shutdown) is owned by Registry. The engine_type config value
	// does not set it; cmd/gridmm leaves it nil.
	DBOSContext dbos.DBOSContext
}

// entry pairs a running Bot with the runners built around it.
type entry struct {
	botKey string
	bot    *trigger.Bot
	tick   *trigger.TickRunner
	recalc *trigger.RecalculateRunner
}

// Registry owns every bot built from one Config: construction, startup
// fan-out, the runner set handed to bootstrap.App.Run, and graceful close.
type Registry struct {
	logger  core.ILogger
	alerts  *alert.AlertManager
	health  *health.HealthManager
	pool    *concurrency.WorkerPool
	entries []entry

	metricsInterval time.Duration
	dbosCtx         dbos.DBOSContext
}

// New builds every bot named in cfg.Bots, failing fast on the first
// construction error (per the exit-codes contract: a bad bot config is
// fatal for the whole process, not just that bot).
func New(ctx context.Context, cfg *config.Config, logger core.ILogger, opts Options) (*Registry, error) {
	factory := opts.ChainClientFactory
	if factory == nil {
		factory = DefaultChainClientFactory
	}
	if opts.DBOSContext != nil {
		factory = durableFactory(factory, opts.DBOSContext)
	}

	r := &Registry{
		logger:          logger,
		alerts:          buildAlertManager(logger),
		health:          health.NewHealthManager(logger),
		metricsInterval: opts.MetricsInterval,
		dbosCtx:         opts.DBOSContext,
	}
	if r.dbosCtx != nil {
		if err := r.dbosCtx.Launch(); err != nil {
			return nil, fmt.Errorf("registry: launch dbos context: %w", err)
		}
	}
	r.pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "registry-bots",
		MaxWorkers:  poolSize(len(cfg.Bots)),
		MaxCapacity: len(cfg.Bots) * 4,
	}, logger)

	for i, botCfg := range cfg.Bots {
		botKey := botCfg.BotKey(i)
		botLogger := logger.WithField("bot", botKey)

		b, err := buildBot(ctx, botCfg, botKey, botLogger, r.alerts, factory)
		if err != nil {
			return nil, fmt.Errorf("registry: build bot %q: %w", botCfg.Name, err)
		}

		e := entry{
			botKey: botKey,
			bot:    b,
			tick:   &trigger.TickRunner{Bot: b, Interval: time.Duration(botCfg.ReconcileIntervalSeconds) * time.Second},
			recalc: &trigger.RecalculateRunner{Bot: b},
		}
		r.entries = append(r.entries, e)

		r.health.Register(botKey, func() error {
			status := b.Status()
			if status.Resyncing {
				return fmt.Errorf("bot %s is resyncing", botKey)
			}
			return nil
		})
	}

	return r, nil
}

// buildAlertManager wires Slack/Telegram channels from environment
// variables when present; an unconfigured process still gets a usable
// (no-op) AlertManager.
func buildAlertManager(logger core.ILogger) *alert.AlertManager {
	mgr := alert.NewAlertManager(logger)
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		mgr.AddChannel(alert.NewSlackChannel(url))
	}
	if token, chatID := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"); token != "" && chatID != "" {
		mgr.AddChannel(alert.NewTelegramChannel(token, chatID))
	}
	return mgr
}

// durableFactory wraps base so every bot's chain client routes ExecuteBatch
// through a durable DBOS workflow on dbosCtx.
func durableFactory(base ChainClientFactory, dbosCtx dbos.DBOSContext) ChainClientFactory {
	return func(ctx context.Context, bot config.BotConfig, logger core.ILogger) (chain.ChainClient, error) {
		inner, err := base(ctx, bot, logger)
		if err != nil {
			return nil, err
		}
		return durablebatch.Wrap(inner, dbosCtx), nil
	}
}

func poolSize(nBots int) int {
	if nBots < 1 {
		return 1
	}
	if nBots > 8 {
		return 8
	}
	return nBots
}

// buildBot resolves one BotConfig into a running trigger.Bot's construction
// parameters: asset decimals from the bot config, price bounds from
// gridgen.ResolveBound, and funds from the literal configured amounts.
func buildBot(ctx context.Context, botCfg config.BotConfig, botKey string, logger core.ILogger, alerts *alert.AlertManager, factory ChainClientFactory) (*trigger.Bot, error) {
	refPrice, err := decimal.NewFromString(botCfg.MarketPrice)
	if err != nil {
		return nil, fmt.Errorf("market_price %q is not a literal decimal; resolving %q requires an external price feed, which is out of scope here: %w", botCfg.MarketPrice, botCfg.MarketPrice, err)
	}

	minPrice, err := gridgen.ResolveBound(botCfg.MinPrice, refPrice, false)
	if err != nil {
		return nil, fmt.Errorf("min_price: %w", err)
	}
	maxPrice, err := gridgen.ResolveBound(botCfg.MaxPrice, refPrice, true)
	if err != nil {
		return nil, fmt.Errorf("max_price: %w", err)
	}

	fundsBuy, err := parseLiteralFunds(botCfg.FundsBuy)
	if err != nil {
		return nil, fmt.Errorf("funds_buy: %w", err)
	}
	fundsSell, err := parseLiteralFunds(botCfg.FundsSell)
	if err != nil {
		return nil, fmt.Errorf("funds_sell: %w", err)
	}

	store, err := persistence.NewSQLiteStore(botCfg.PersistencePath)
	if err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}

	chainClient, err := factory(ctx, botCfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	targetSpread := decimal.NewFromFloat(botCfg.TargetSpreadPercent)
	if targetSpread.IsZero() {
		targetSpread = decimal.NewFromFloat(botCfg.IncrementPercent * 2)
	}

	activeBuy, activeSell := botCfg.ActiveOrdersBuy, botCfg.ActiveOrdersSell
	if activeBuy == 0 {
		activeBuy = botCfg.BuyWindowSize
	}
	if activeSell == 0 {
		activeSell = botCfg.SellWindowSize
	}

	gridCfg := gridgen.Config{
		RefPrice:            refPrice,
		MinPrice:            minPrice,
		MaxPrice:            maxPrice,
		IncrementPercent:    decimal.NewFromFloat(botCfg.IncrementPercent),
		TargetSpreadPercent: targetSpread,
		WeightBuy:           botCfg.WeightBuy,
		WeightSell:          botCfg.WeightSell,
		FundsBuy:            fundsBuy,
		FundsSell:           fundsSell,
		ActiveOrdersBuy:     activeBuy,
		ActiveOrdersSell:    activeSell,
		MinOrderSize:        decimal.NewFromFloat(botCfg.MinOrderSize),
	}

	account := botCfg.PreferredAccount
	if account == "" {
		account = botCfg.Name
	}

	triggerDir := botCfg.TriggerDir
	var recalcPath string
	if triggerDir != "" {
		recalcPath = triggerDir + "/recalculate." + botKey + ".trigger"
	}

	b := trigger.NewBot(trigger.Params{
		BotKey:              botKey,
		Account:             account,
		Chain:               chainClient,
		Persist:             store,
		Logger:              logger,
		Alerts:              alerts,
		GridCfg:             gridCfg,
		BaseDecimals:        botCfg.QuantityDecimals,
		QuoteDecimals:       botCfg.PriceDecimals,
		ActiveOrdersBuy:     activeBuy,
		ActiveOrdersSell:    activeSell,
		DivergenceThreshold: decimal.NewFromFloat(botCfg.DivergenceHaltPercent),
		DivergenceCooldown:  time.Duration(botCfg.ReconcileIntervalSeconds) * time.Second,
		TickInterval:        time.Duration(botCfg.ReconcileIntervalSeconds) * time.Second,
		RecalcPollInterval:  time.Duration(botCfg.ReconcileIntervalSeconds) * time.Second,
		RecalcSignalPath:    recalcPath,
	})

	return b, nil
}

// parseLiteralFunds accepts a plain decimal amount. A trailing "%" means the
// amount should be a fraction of the chain-reported balance — unsupported
// because ChainClient exposes no balance-read method per the core's external
// interface contract, only order/fee/asset metadata.
func parseLiteralFunds(raw string) (decimal.Decimal, error) {
	if len(raw) > 0 && raw[len(raw)-1] == '%' {
		return decimal.Decimal{}, fmt.Errorf("percentage funds %q need a chain balance read, which the ChainClient interface does not expose; configure a literal amount instead", raw)
	}
	return decimal.NewFromString(raw)
}

// StartAll runs every bot's Start concurrently on the registry's worker
// pool, returning the first error encountered (if any) after every bot has
// had a chance to start.
func (r *Registry) StartAll(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, e := range r.entries {
		e := e
		wg.Add(1)
		if err := r.pool.Submit(func() {
			defer wg.Done()
			if err := e.bot.Start(ctx); err != nil {
				r.logger.Error("registry: bot failed to start", "bot", e.botKey, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			return fmt.Errorf("registry: submit start for %q: %w", e.botKey, err)
		}
	}
	wg.Wait()
	return firstErr
}

// Runners returns every bot's TickRunner and RecalculateRunner plus the
// registry's own metrics runner (if enabled), ready for bootstrap.App.Run.
func (r *Registry) Runners() []bootstrap.Runner {
	runners := make([]bootstrap.Runner, 0, len(r.entries)*2+1)
	for _, e := range r.entries {
		runners = append(runners, e.tick, e.recalc)
	}
	if r.metricsInterval > 0 {
		runners = append(runners, &metricsRunner{registry: r, interval: r.metricsInterval})
	}
	return runners
}

// Health returns the shared health manager covering every registered bot.
func (r *Registry) Health() *health.HealthManager {
	return r.health
}

// Statuses returns every bot's current status, keyed by bot key, for the
// admin status endpoint.
func (r *Registry) Statuses() map[string]trigger.BotStatus {
	out := make(map[string]trigger.BotStatus, len(r.entries))
	for _, e := range r.entries {
		out[e.botKey] = e.bot.Status()
	}
	return out
}

// Close stops every bot and the registry's worker pool.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.entries {
		if err := e.bot.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bot %s: %w", e.botKey, err))
		}
	}
	r.pool.Stop()
	if r.dbosCtx != nil {
		r.dbosCtx.Shutdown(30 * time.Second)
	}
	if len(errs) > 0 {
		return fmt.Errorf("registry: close errors: %v", errs)
	}
	return nil
}

// metricsRunner periodically exports every bot's status into the global
// OTel instruments, the way live_server exported exchange/stream health on
// an interval instead of per-event.
type metricsRunner struct {
	registry *Registry
	interval time.Duration
}

var _ bootstrap.Runner = (*metricsRunner)(nil)

func (m *metricsRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	holder := telemetry.GetGlobalMetrics()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, e := range m.registry.entries {
				status := e.bot.Status()
				active := status.SlotCounts["BUY:ACTIVE"] + status.SlotCounts["SELL:ACTIVE"] + status.SlotCounts["BUY:PARTIAL"] + status.SlotCounts["SELL:PARTIAL"]
				holder.SetSlotsActive(status.BotKey, int64(active))
				holder.SetAvailableFunds(status.BotKey, availableTotal(status))
				holder.SetFeesOwed(status.BotKey, status.BuyFunds.FeesOwed.Add(status.SellFunds.FeesOwed).InexactFloat64())
			}
		}
	}
}

func availableTotal(status trigger.BotStatus) float64 {
	return status.BuyFunds.Available.Add(status.SellFunds.Available).InexactFloat64()
}
