package prommetrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PayoutNamespace is the namespace for all prize payout metrics
const PayoutNamespace = "prize_payout"

// Payout metrics
var (
	UpkeepChecks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: PayoutNamespace,
		Name:      "upkeep_checks_total",
		Help:      "How many due checks the keeper has made",
	})
	UpkeepsPerformed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: PayoutNamespace,
		Name:      "upkeeps_performed_total",
		Help:      "How many upkeeps resulted in a payout",
	})
	UpkeepNoOps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: PayoutNamespace,
		Name:      "upkeep_noops_total",
		Help:      "How many upkeeps were accepted before the trigger interval elapsed",
	})
	UpkeepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: PayoutNamespace,
		Name:      "upkeep_failures_total",
		Help:      "Count of failed upkeeps by reason",
	}, []string{"reason"})
	PaidOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: PayoutNamespace,
		Name:      "paid_out_native_total",
		Help:      "Total native asset paid to winners, in whole units",
	})
	TreasuryBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: PayoutNamespace,
		Name:      "treasury_balance_native",
		Help:      "Current treasury balance, in whole native units",
	})
	OracleReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: PayoutNamespace,
		Name:      "oracle_read_errors_total",
		Help:      "Count of failed price reads by reason",
	}, []string{"reason"})
	OraclePrice = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: PayoutNamespace,
		Name:      "oracle_price_usd",
		Help:      "Last accepted native asset price in USD",
	})
	ServiceRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: PayoutNamespace,
		Name:      "service_restarts_total",
		Help:      "How many times a supervised service was restarted after a panic",
	})
)

func RecordUpkeepFailure(reason string) {
	UpkeepFailures.WithLabelValues(reason).Inc()
}

func RecordPayout(amount *big.Int) {
	UpkeepsPerformed.Inc()
	PaidOut.Add(scaled(amount, 18))
}

func SetTreasuryBalance(balance *big.Int) {
	TreasuryBalance.Set(scaled(balance, 18))
}

func SetOraclePrice(price *big.Int, decimals uint8) {
	OraclePrice.Set(scaled(price, int(decimals)))
}

func scaled(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}

	div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), div).Float64()

	return f
}
