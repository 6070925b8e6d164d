package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drudge_snapshots_accepted_total",
		Help: "Snapshots accepted by the feed store, by event kind",
	}, []string{"kind"})

	snapshotsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drudge_snapshots_rejected_total",
		Help: "Malformed snapshots rejected by the feed store, by event kind",
	}, []string{"kind"})

	currentEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drudge_feed_entries",
		Help: "Number of entries in the current snapshot",
	})

	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drudge_discussion_lookups_total",
		Help: "Discussion index lookups, by outcome (existing, composer, failed)",
	}, []string{"outcome"})

	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drudge_discussion_lookup_duration_seconds",
		Help:    "Latency of discussion index lookups",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms up to ~10s
	})

	batchesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drudge_display_batches_published_total",
		Help: "Display lists published to subscribers",
	})

	batchesStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drudge_display_batches_stale_total",
		Help: "Enriched batches dropped because a newer snapshot arrived",
	})

	enrichDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drudge_enrich_duration_seconds",
		Help:    "Time taken to enrich a full snapshot",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	})
)
