package service

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	OrderCreations     *prometheus.CounterVec
	OrderCancellations *prometheus.CounterVec
	Settlements        *prometheus.CounterVec
	SettlementLatency  *prometheus.HistogramVec
	JournalEvents      *prometheus.CounterVec
	EscrowCustody      prometheus.Gauge
	PlatformRevenue    prometheus.Gauge
	OpenOrders         prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		OrderCreations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_order_creations_total",
				Help: "Total order creation attempts.",
			},
			[]string{"kind", "status"},
		),
		OrderCancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_order_cancellations_total",
				Help: "Total order cancellation attempts.",
			},
			[]string{"status"},
		),
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_settlements_total",
				Help: "Total settlement attempts.",
			},
			[]string{"protocol", "status"},
		),
		SettlementLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_settlement_latency_seconds",
				Help:    "Settlement latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		JournalEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_journal_events_total",
				Help: "Total journal events processed from Kafka.",
			},
			[]string{"topic", "status"},
		),
		EscrowCustody: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exchange_escrow_custody_units",
				Help: "Funds currently held in escrow custody.",
			},
		),
		PlatformRevenue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exchange_platform_revenue_units",
				Help: "Accumulated undistributed platform revenue.",
			},
		),
		OpenOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exchange_open_orders",
				Help: "Orders currently in the active state.",
			},
		),
	}

	registry.MustRegister(
		m.OrderCreations,
		m.OrderCancellations,
		m.Settlements,
		m.SettlementLatency,
		m.JournalEvents,
		m.EscrowCustody,
		m.PlatformRevenue,
		m.OpenOrders,
	)
	return m
}
