package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricSlotsActive         = "gridmm_slots_active"
	MetricOrdersPlacedTotal   = "gridmm_orders_placed_total"
	MetricOrdersFilledTotal   = "gridmm_orders_filled_total"
	MetricOrdersCanceledTotal = "gridmm_orders_canceled_total"
	MetricVolumeTotal         = "gridmm_volume_total"
	MetricFeesOwed            = "gridmm_fees_owed"
	MetricAvailableFunds      = "gridmm_available_funds"
	MetricLatencyChain        = "gridmm_latency_chain_ms"
	MetricLatencyReconcile    = "gridmm_latency_reconcile_ms"
	MetricDivergencePct       = "gridmm_divergence_pct"
	MetricCircuitBreakerOpen  = "gridmm_circuit_breaker_open"
	MetricReconcileGhosts     = "gridmm_reconcile_ghosts_total"
	MetricBatchOpsTotal       = "gridmm_batch_ops_total"
)

// MetricsHolder holds initialized instruments for a running set of bots.
type MetricsHolder struct {
	SlotsActive         metric.Int64ObservableGauge
	OrdersPlacedTotal   metric.Int64Counter
	OrdersFilledTotal   metric.Int64Counter
	OrdersCanceledTotal metric.Int64Counter
	VolumeTotal         metric.Float64Counter
	FeesOwed            metric.Float64ObservableGauge
	AvailableFunds      metric.Float64ObservableGauge
	LatencyChain        metric.Float64Histogram
	LatencyReconcile    metric.Float64Histogram
	DivergencePct       metric.Float64ObservableGauge
	CircuitBreakerOpen  metric.Int64ObservableGauge
	ReconcileGhosts     metric.Int64Counter
	BatchOpsTotal       metric.Int64Counter

	// State for observable gauges, keyed by botKey.
	mu            sync.RWMutex
	slotsMap      map[string]int64
	feesOwedMap   map[string]float64
	availFundsMap map[string]float64
	divergenceMap map[string]float64
	cbOpenMap     map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			slotsMap:      make(map[string]int64),
			feesOwedMap:   make(map[string]float64),
			availFundsMap: make(map[string]float64),
			divergenceMap: make(map[string]float64),
			cbOpenMap:     make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total grid orders placed"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total grid orders filled"))
	if err != nil {
		return err
	}

	m.OrdersCanceledTotal, err = meter.Int64Counter(MetricOrdersCanceledTotal, metric.WithDescription("Total grid orders canceled"))
	if err != nil {
		return err
	}

	m.VolumeTotal, err = meter.Float64Counter(MetricVolumeTotal, metric.WithDescription("Total filled volume in base asset"))
	if err != nil {
		return err
	}

	m.ReconcileGhosts, err = meter.Int64Counter(MetricReconcileGhosts, metric.WithDescription("Ghost orders/fills detected during reconciliation"))
	if err != nil {
		return err
	}

	m.BatchOpsTotal, err = meter.Int64Counter(MetricBatchOpsTotal, metric.WithDescription("Total chain operations assembled into batches"))
	if err != nil {
		return err
	}

	m.LatencyChain, err = meter.Float64Histogram(MetricLatencyChain, metric.WithDescription("Latency of chain client calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.LatencyReconcile, err = meter.Float64Histogram(MetricLatencyReconcile, metric.WithDescription("Duration of a reconciliation pass"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.SlotsActive, err = meter.Int64ObservableGauge(MetricSlotsActive, metric.WithDescription("Number of ACTIVE or PARTIAL grid slots"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botKey, val := range m.slotsMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("bot", botKey)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.FeesOwed, err = meter.Float64ObservableGauge(MetricFeesOwed, metric.WithDescription("Accrued fees owed per bot"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botKey, val := range m.feesOwedMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("bot", botKey)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.AvailableFunds, err = meter.Float64ObservableGauge(MetricAvailableFunds, metric.WithDescription("Available (uncommitted) funds per bot"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botKey, val := range m.availFundsMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("bot", botKey)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.DivergencePct, err = meter.Float64ObservableGauge(MetricDivergencePct, metric.WithDescription("Current reconciliation divergence percentage"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botKey, val := range m.divergenceMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("bot", botKey)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("Circuit breaker open state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for botKey, val := range m.cbOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("bot", botKey)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state, keyed by botKey.

func (m *MetricsHolder) SetSlotsActive(botKey string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slotsMap[botKey] = count
}

func (m *MetricsHolder) SetFeesOwed(botKey string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feesOwedMap[botKey] = value
}

func (m *MetricsHolder) SetAvailableFunds(botKey string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availFundsMap[botKey] = value
}

func (m *MetricsHolder) SetDivergencePct(botKey string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.divergenceMap[botKey] = value
}

func (m *MetricsHolder) SetCircuitBreakerOpen(botKey string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbOpenMap[botKey] = val
}

func (m *MetricsHolder) GetSlotsActive() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.slotsMap {
		res[k] = v
	}
	return res
}
