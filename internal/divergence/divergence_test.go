package divergence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridmm/internal/core"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestMetric_SumsAbsoluteDifferences(t *testing.T) {
	ideal := []decimal.Decimal{d(10), d(20), d(5)}
	persisted := []decimal.Decimal{d(8), d(22), d(5)}

	m := Metric(ideal, persisted)
	assert.True(t, m.Equal(d(4)))
}

func TestCheck_TriggersWhenMetricExceedsThreshold(t *testing.T) {
	det := New(d(1), time.Minute)
	ideal := []decimal.Decimal{d(10)}
	persisted := []decimal.Decimal{d(5)}

	triggered, metric := det.Check(core.SlotSideSell, ideal, persisted, time.Unix(0, 0))
	assert.True(t, triggered)
	assert.True(t, metric.Equal(d(5)))
}

func TestCheck_DoesNotTriggerBelowThreshold(t *testing.T) {
	det := New(d(10), time.Minute)
	ideal := []decimal.Decimal{d(10)}
	persisted := []decimal.Decimal{d(9)}

	triggered, _ := det.Check(core.SlotSideSell, ideal, persisted, time.Unix(0, 0))
	assert.False(t, triggered)
}

func TestCheck_CooldownSuppressesRepeatTrigger(t *testing.T) {
	det := New(d(1), time.Minute)
	ideal := []decimal.Decimal{d(10)}
	persisted := []decimal.Decimal{d(5)}

	first, _ := det.Check(core.SlotSideSell, ideal, persisted, time.Unix(0, 0))
	assert.True(t, first)

	second, _ := det.Check(core.SlotSideSell, ideal, persisted, time.Unix(30, 0))
	assert.False(t, second)

	third, _ := det.Check(core.SlotSideSell, ideal, persisted, time.Unix(61, 0))
	assert.True(t, third)
}

func TestCheck_CooldownIsPerSide(t *testing.T) {
	det := New(d(1), time.Minute)
	ideal := []decimal.Decimal{d(10)}
	persisted := []decimal.Decimal{d(5)}

	det.Check(core.SlotSideSell, ideal, persisted, time.Unix(0, 0))

	triggeredBuy, _ := det.Check(core.SlotSideBuy, ideal, persisted, time.Unix(1, 0))
	assert.True(t, triggeredBuy)
}

func TestBeginEndCorrection_GuardsReentrancy(t *testing.T) {
	det := New(d(1), time.Minute)

	assert.True(t, det.BeginCorrection())
	assert.False(t, det.BeginCorrection())
	assert.True(t, det.IsCorrecting())

	det.EndCorrection()
	assert.False(t, det.IsCorrecting())
	assert.True(t, det.BeginCorrection())
}
