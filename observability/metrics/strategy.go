package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type StrategyMetrics struct {
	executions   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	lpLiquidated *prometheus.CounterVec
	debtRepaid   *prometheus.CounterVec
	whitelist    *prometheus.GaugeVec
}

var (
	strategyOnce     sync.Once
	strategyRegistry *StrategyMetrics
)

func newStrategyMetrics() *StrategyMetrics {
	return &StrategyMetrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategy_executions_total",
			Help: "Count of strategy executions by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strategy_execution_seconds",
			Help:    "Wall-clock duration of strategy executions.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"strategy"}),
		lpLiquidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategy_lp_liquidated_total",
			Help: "LP shares liquidated by successful executions, in base units.",
		}, []string{"strategy"}),
		debtRepaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategy_debt_repaid_total",
			Help: "Debt repaid to workers by successful executions, in base units.",
		}, []string{"strategy"}),
		whitelist: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strategy_whitelisted_workers",
			Help: "Number of workers currently approved per strategy.",
		}, []string{"strategy"}),
	}
}

// Strategy returns the process-wide strategy metrics registered with the
// default Prometheus registry.
func Strategy() *StrategyMetrics {
	strategyOnce.Do(func() {
		strategyRegistry = newStrategyMetrics()
		prometheus.MustRegister(
			strategyRegistry.executions,
			strategyRegistry.latency,
			strategyRegistry.lpLiquidated,
			strategyRegistry.debtRepaid,
			strategyRegistry.whitelist,
		)
	})
	return strategyRegistry
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

func (m *StrategyMetrics) ObserveExecution(strategy, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.executions.WithLabelValues(strategy, outcome).Inc()
	m.latency.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (m *StrategyMetrics) ObserveSettlement(strategy string, lpLiquidated, debtRepaid *uint256.Int) {
	if m == nil {
		return
	}
	m.lpLiquidated.WithLabelValues(strategy).Add(toFloat(lpLiquidated))
	m.debtRepaid.WithLabelValues(strategy).Add(toFloat(debtRepaid))
}

func (m *StrategyMetrics) SetWhitelisted(strategy string, count int) {
	if m == nil {
		return
	}
	m.whitelist.WithLabelValues(strategy).Set(float64(count))
}
