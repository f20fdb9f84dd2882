// internal/service/seckill/infrastructure/metrics.go
package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationOutcomes counts admission decisions on the hot path, labeled
	// granted / denied / duplicate / error.
	ReservationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flashmall",
		Subsystem: "seckill",
		Name:      "reservation_outcomes_total",
		Help:      "Reservation attempts by outcome.",
	}, []string{"outcome"})

	// TasksDispatched counts outbox rows confirmed on the broker, per topic.
	TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flashmall",
		Subsystem: "seckill",
		Name:      "tasks_dispatched_total",
		Help:      "Outbox tasks successfully published, per topic.",
	}, []string{"topic"})

	// TaskPublishFailures counts failed publish attempts that were rescheduled.
	TaskPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flashmall",
		Subsystem: "seckill",
		Name:      "task_publish_failures_total",
		Help:      "Outbox publish attempts that failed and were rescheduled.",
	}, []string{"topic"})

	// OrdersFulfilled counts orders durably created by the fulfillment consumer.
	OrdersFulfilled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flashmall",
		Subsystem: "seckill",
		Name:      "orders_fulfilled_total",
		Help:      "Orders created from reservation tasks.",
	})

	// OrdersExpired counts unpaid orders cancelled by the expiry consumer.
	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flashmall",
		Subsystem: "seckill",
		Name:      "orders_expired_total",
		Help:      "Unpaid orders cancelled after the payment window.",
	})

	// StockReleasesApplied counts durable release intents applied to the
	// ledger. A growing counter means compensations had to take the slow path.
	StockReleasesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flashmall",
		Subsystem: "seckill",
		Name:      "stock_releases_applied_total",
		Help:      "Durable ledger release intents applied.",
	})
)
