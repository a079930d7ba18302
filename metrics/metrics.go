// Package metrics exposes the Prometheus counters of the upload pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaindrive_sessions_created_total",
		Help: "Number of upload sessions created, by kind.",
	}, []string{"kind"})

	ChunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_chunks_ingested_total",
		Help: "Number of raw upload chunks accepted.",
	})

	BytesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_bytes_ingested_total",
		Help: "Raw upload bytes accepted.",
	})

	MigrationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_migrations_completed_total",
		Help: "Number of uploads fully migrated into the node store.",
	})

	MigrationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_migrations_failed_total",
		Help: "Number of uploads that exhausted their migration retries.",
	})

	MigrationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_migration_retries_total",
		Help: "Number of migration attempts retried after a transient error.",
	})

	NodesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_nodes_written_total",
		Help: "Number of new DAG nodes persisted.",
	})

	NodesDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_nodes_deduplicated_total",
		Help: "Number of DAG node writes skipped because the CID already existed.",
	})

	TxResultsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_tx_results_applied_total",
		Help: "Number of transaction results applied from the archival feed.",
	})

	ArchivalsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_archivals_applied_total",
		Help: "Number of piece placements recorded from the archival feed.",
	})

	FeedMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaindrive_feed_messages_dropped_total",
		Help: "Number of malformed archival feed messages dropped.",
	})
)
