package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement core.
type Metrics struct {
	// --- Order pipeline ---
	OrdersPlaced    *prometheus.CounterVec // by direction
	OrdersFilled    *prometheus.CounterVec // by direction
	OrdersCancelled *prometheus.CounterVec // by reason (owner, timeout)
	FillsRejected   *prometheus.CounterVec // by error kind
	PendingOrders   prometheus.Gauge
	SettleDuration  *prometheus.HistogramVec // by operation

	// --- Ledger ---
	Borrows        *prometheus.CounterVec // by asset
	Repays         *prometheus.CounterVec // by asset
	BadDebtWritten *prometheus.CounterVec // by asset
	SpotLiquidity  *prometheus.GaugeVec   // by asset
	Credit         *prometheus.GaugeVec   // by asset
	CollectedFees  *prometheus.GaugeVec   // by asset

	// --- Pool valuation ---
	PoolNav      prometheus.Gauge
	ShareSupply  prometheus.Gauge
	NavPerShare  prometheus.Gauge
	SharesMinted prometheus.Counter
	SharesBurned prometheus.Counter

	// --- Funding ---
	FundingAccruals *prometheus.CounterVec // by asset
	FundingIndex    *prometheus.GaugeVec   // by asset

	// --- Records & persistence ---
	RecordSequence     prometheus.Gauge
	PersistBatchDur    prometheus.Histogram
	PersistBatchSize   prometheus.Histogram
	PersistRecords     prometheus.Counter
	PersistErrors      *prometheus.CounterVec
	PublishDrops       prometheus.Counter
	ProjectionDrops    prometheus.Counter
	ProjectionLastSeq  prometheus.Gauge
	SnapshotTaken      prometheus.Counter
	SnapshotDuration   prometheus.Histogram
	SnapshotLastSeq    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	settleBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_orders_placed_total",
			Help: "Liquidity orders placed",
		}, []string{"direction"}),
		OrdersFilled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_orders_filled_total",
			Help: "Liquidity orders filled by brokers",
		}, []string{"direction"}),
		OrdersCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_orders_cancelled_total",
			Help: "Liquidity orders cancelled",
		}, []string{"reason"}),
		FillsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_fills_rejected_total",
			Help: "Fill attempts rejected, by error kind",
		}, []string{"kind"}),
		PendingOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_pending_orders",
			Help: "Orders currently pending settlement",
		}),
		SettleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pool_settle_duration_seconds",
			Help:    "Settlement operation duration",
			Buckets: settleBuckets,
		}, []string{"operation"}),

		Borrows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_borrows_total",
			Help: "Borrow operations",
		}, []string{"asset"}),
		Repays: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_repays_total",
			Help: "Repay operations",
		}, []string{"asset"}),
		BadDebtWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_bad_debt_total",
			Help: "Bad debt written off against credit",
		}, []string{"asset"}),
		SpotLiquidity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_spot_liquidity",
			Help: "Spot liquidity per asset (fixed-point units)",
		}, []string{"asset"}),
		Credit: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_credit",
			Help: "Outstanding credit per asset (fixed-point units)",
		}, []string{"asset"}),
		CollectedFees: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_collected_fees",
			Help: "Accumulated fee revenue per asset (fixed-point units)",
		}, []string{"asset"}),

		PoolNav: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_nav",
			Help: "Pool net asset value (fixed-point units)",
		}),
		ShareSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_share_supply",
			Help: "Total pool share supply (fixed-point units)",
		}),
		NavPerShare: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_nav_per_share",
			Help: "NAV per share (fixed-point units)",
		}),
		SharesMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_shares_minted_total",
			Help: "Shares minted on add-liquidity fills",
		}),
		SharesBurned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_shares_burned_total",
			Help: "Shares burned on remove-liquidity fills",
		}),

		FundingAccruals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_funding_accruals_total",
			Help: "Funding index accrual events",
		}, []string{"asset"}),
		FundingIndex: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_funding_index",
			Help: "Cumulative funding index per asset (rate units)",
		}, []string{"asset"}),

		RecordSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_record_sequence",
			Help: "Last settlement record sequence assigned",
		}),
		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_persist_batch_duration_seconds",
			Help:    "Settlement log batch write duration",
			Buckets: prometheus.DefBuckets,
		}),
		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_persist_batch_size",
			Help:    "Records per settlement log batch write",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		PersistRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_persist_records_total",
			Help: "Settlement records written to Postgres",
		}),
		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_persist_errors_total",
			Help: "Settlement log write errors",
		}, []string{"stage"}),
		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_publish_drops_total",
			Help: "Outbound records dropped on full publish channel",
		}),
		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_projection_drops_total",
			Help: "Records dropped on full projection channel",
		}),
		ProjectionLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_projection_last_sequence",
			Help: "Last sequence applied to projection tables",
		}),
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_snapshots_total",
			Help: "Pool state snapshots written",
		}),
		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_snapshot_duration_seconds",
			Help:    "Snapshot creation duration",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_snapshot_last_sequence",
			Help: "Sequence covered by the latest snapshot",
		}),
	}
}
