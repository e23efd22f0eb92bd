package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks marketplace transitions, open offerings and settled
// value per marketplace address.
type MarketMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	openOfferings  *prometheus.GaugeVec
	volume         *prometheus.CounterVec
	proceeds       *prometheus.CounterVec
	withdrawnValue *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the lazily-initialised marketplace metrics registered with
// the default Prometheus registry.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = NewMarketMetrics()
		prometheus.MustRegister(marketRegistry.collectors()...)
	})
	return marketRegistry
}

// NewMarketMetrics builds an unregistered metrics set.
func NewMarketMetrics() *MarketMetrics {
	return &MarketMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "operations_total",
			Help:      "Marketplace state transitions segmented by operation and outcome.",
		}, []string{"market", "operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "market",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for marketplace state transitions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"market", "operation"}),
		openOfferings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "market",
			Name:      "open_offerings",
			Help:      "Number of offerings currently open for purchase.",
		}, []string{"market"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "sale_volume_total",
			Help:      "Native value settled through purchases, in base units.",
		}, []string{"market"}),
		proceeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "proceeds_total",
			Help:      "Native value distributed per stakeholder role, in base units.",
		}, []string{"market", "role"}),
		withdrawnValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "balance_withdrawn_total",
			Help:      "Native value withdrawn from escrowed seller balances, in base units.",
		}, []string{"market"}),
	}
}

func (m *MarketMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operations,
		m.latency,
		m.openOfferings,
		m.volume,
		m.proceeds,
		m.withdrawnValue,
	}
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// ObserveOperation records the outcome and latency of a state transition.
func (m *MarketMetrics) ObserveOperation(market, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(market, operation, outcome).Inc()
	m.latency.WithLabelValues(market, operation).Observe(elapsed.Seconds())
}

// AddOpenOfferings adjusts the open offering gauge by delta.
func (m *MarketMetrics) AddOpenOfferings(market string, delta float64) {
	if m == nil {
		return
	}
	m.openOfferings.WithLabelValues(market).Add(delta)
}

// SetOpenOfferings overwrites the open offering gauge, used when an engine
// attaches to existing state.
func (m *MarketMetrics) SetOpenOfferings(market string, open int) {
	if m == nil {
		return
	}
	m.openOfferings.WithLabelValues(market).Set(float64(open))
}

// OpenOfferings returns the open offering gauge for market.
func (m *MarketMetrics) OpenOfferings(market string) prometheus.Gauge {
	return m.openOfferings.WithLabelValues(market)
}

// ObserveSale records a settled purchase and its per-role distribution.
func (m *MarketMetrics) ObserveSale(market string, total *big.Int, byRole map[string]*big.Int) {
	if m == nil {
		return
	}
	m.volume.WithLabelValues(market).Add(bigToFloat(total))
	for role, amount := range byRole {
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		m.proceeds.WithLabelValues(market, role).Add(bigToFloat(amount))
	}
}

// ObserveWithdrawal records a balance withdrawal.
func (m *MarketMetrics) ObserveWithdrawal(market string, amount *big.Int) {
	if m == nil {
		return
	}
	m.withdrawnValue.WithLabelValues(market).Add(bigToFloat(amount))
}
