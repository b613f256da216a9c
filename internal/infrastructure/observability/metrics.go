package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	// Гистограмма времени выполнения запросов
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	EscrowReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_released_amount_total",
			Help: "Amount released from escrow to providers",
		},
		[]string{"stage"},
	)

	EscrowHeld = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_held_amount_total",
			Help: "Amount debited from clients into escrow",
		},
	)

	WalletFunding = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_funding_total",
			Help: "Wallet funding confirmations by result",
		},
		[]string{"result"},
	)

	LifecycleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_failures_total",
			Help: "Rejected marketplace operations by operation and error kind",
		},
		[]string{"operation", "kind"},
	)
)

func InitMetrics(reg prometheus.Registerer) {
	reg.MustRegister(RepositoryCalls, RepositoryDuration, EscrowReleased, EscrowHeld, WalletFunding, LifecycleFailures)
}
