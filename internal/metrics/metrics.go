package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	KafkaMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomindexer_kafka_messages_total",
			Help: "Total messages consumed from Kafka.",
		},
		[]string{"topic", "afi", "action"},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecomindexer_db_write_duration_seconds",
			Help:    "DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	DBRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomindexer_db_rows_affected_total",
			Help: "DB rows written or deleted.",
		},
		[]string{"table", "op"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomindexer_parse_errors_total",
			Help: "Parse failures by stage.",
		},
		[]string{"stage", "reason"},
	)

	CommunitySetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomindexer_community_sets_total",
			Help: "Community sets seen on routes (new vs already known).",
		},
		[]string{"outcome"},
	)

	InternTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomindexer_intern_total",
			Help: "Intern pool lookups (hit, miss).",
		},
		[]string{"outcome"},
	)

	InternPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecomindexer_intern_pool_size",
			Help: "Distinct community sets currently interned.",
		},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecomindexer_batch_size",
			Help:    "Batch sizes flushed to DB.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000, 5000},
		},
	)

	LastMessageTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecomindexer_last_message_timestamp_seconds",
			Help: "Unix timestamp of the last message processed per topic.",
		},
		[]string{"topic"},
	)

	RoutesPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomindexer_routes_purged_total",
			Help: "Route community rows purged (session_down, prune).",
		},
		[]string{"reason"},
	)

	SetsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecomindexer_sets_pruned_total",
			Help: "Orphaned community sets removed by the pruner.",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		KafkaMessagesTotal,
		DBWriteDuration,
		DBRowsAffectedTotal,
		ParseErrorsTotal,
		CommunitySetsTotal,
		InternTotal,
		InternPoolSize,
		BatchSize,
		LastMessageTimestamp,
		RoutesPurgedTotal,
		SetsPrunedTotal,
	)
}
