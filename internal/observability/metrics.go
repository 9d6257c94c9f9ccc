package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_messages_ingested_total",
		Help: "The total number of ingested messages",
	}, []string{"channel"})

	MessagesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_messages_skipped_total",
		Help: "The total number of skipped messages by reason",
	}, []string{"reason"})

	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_history_pages_fetched_total",
		Help: "The total number of history pages fetched per channel",
	}, []string{"channel"})

	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_source_requests_total",
		Help: "Total number of requests to the message source API",
	}, []string{"kind", "status"})

	SourceRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rank_source_rate_limited_total",
		Help: "Total number of rate-limit waits against the source API",
	})

	PresenceCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_presence_cache_hits_total",
		Help: "Total number of presence cache hits by entity kind",
	}, []string{"kind"})

	PresenceCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_presence_cache_misses_total",
		Help: "Total number of presence cache misses by entity kind",
	}, []string{"kind"})

	ReplyFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_reply_fetches_total",
		Help: "Total number of reply ancestor fetches by outcome",
	}, []string{"status"})

	ReplyChainDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rank_reply_chain_depth",
		Help:    "Depth of resolved reply chains",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
	})

	FlushRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rank_flush_retries_total",
		Help: "Total number of retried aggregate flush attempts",
	})

	FlushFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_flush_failures_total",
		Help: "Total number of aggregate flushes abandoned after retries",
	}, []string{"kind"})

	IngestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_ingest_runs_total",
		Help: "Total number of ingestion runs by status",
	}, []string{"status"})

	IngestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rank_ingest_duration_seconds",
		Help:    "Duration in seconds of a full ingestion run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})
)
