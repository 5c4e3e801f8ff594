package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DepositTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultbank",
			Name:      "ledger_deposit_total",
			Help:      "Total number of committed deposits.",
		},
		[]string{"asset"},
	)

	WithdrawTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultbank",
			Name:      "ledger_withdraw_total",
			Help:      "Total number of committed withdrawals.",
		},
		[]string{"asset"},
	)

	TransitionRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultbank",
			Name:      "ledger_transition_reject_total",
			Help:      "Total number of rejected ledger transitions by business code.",
		},
		[]string{"op", "code"},
	)

	OracleRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultbank",
			Name:      "oracle_reject_total",
			Help:      "Total number of oracle prices rejected by admission control.",
		},
		[]string{"asset", "reason"}, // reason: stale/deviation/unavailable
	)

	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultbank",
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"service", "route", "reason"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		DepositTotal,
		WithdrawTotal,
		TransitionRejectTotal,
		OracleRejectTotal,
		RateLimitBlockTotal,
	)
}
