package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tickLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketcore_tick_ingest_latency_milliseconds",
			Help:    "Time to fan a normalized tick out across all timeframes",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"symbol"},
	)

	barsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_bars_generated_total",
			Help: "Total new_bar events emitted, by timeframe",
		},
		[]string{"symbol", "timeframe"},
	)

	bookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketcore_book_depth_levels",
			Help: "Current number of resting levels per side",
		},
		[]string{"symbol", "side"},
	)

	bookStaleness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketcore_bar_staleness_seconds",
			Help: "Age in seconds of the last bar's bucket start, by timeframe",
		},
		[]string{"symbol", "timeframe"},
	)

	depthEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_depth_entries_total",
			Help: "Total depth entries processed by vendor type classification",
		},
		[]string{"symbol", "classification"},
	)

	callbackErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_callback_errors_total",
			Help: "Subscriber callbacks that panicked and were swallowed, by channel",
		},
		[]string{"symbol", "channel"},
	)

	dataQualityWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_data_quality_warnings_total",
			Help: "Staleness and data-quality warnings, by kind",
		},
		[]string{"symbol", "kind"},
	)

	fanoutPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_fanout_published_total",
			Help: "Events successfully published to the optional Redis fan-out",
		},
		[]string{"symbol"},
	)

	fanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketcore_fanout_dropped_total",
			Help: "Events dropped because the fan-out publish queue was full",
		},
		[]string{"symbol"},
	)

	healthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketcore_healthy",
			Help: "1 if health() currently reports true, else 0",
		},
		[]string{"symbol"},
	)
)

// RecordTickLatency records the observed fan-out latency for one tick.
func RecordTickLatency(symbol string, latencyMs float64) {
	tickLatency.WithLabelValues(symbol).Observe(latencyMs)
}

// RecordBarGenerated increments the new_bar counter for a timeframe.
func RecordBarGenerated(symbol, timeframe string) {
	barsGenerated.WithLabelValues(symbol, timeframe).Inc()
}

// SetBookDepth sets the current level count for one side.
func SetBookDepth(symbol, side string, levels int) {
	bookDepth.WithLabelValues(symbol, side).Set(float64(levels))
}

// SetBarStaleness sets the age, in seconds, of the last bar for a timeframe.
func SetBarStaleness(symbol, timeframe string, seconds float64) {
	bookStaleness.WithLabelValues(symbol, timeframe).Set(seconds)
}

// RecordDepthEntry increments the depth-entry counter for a classification
// (ask_update, bid_update, trade, modify, other).
func RecordDepthEntry(symbol, classification string) {
	depthEntriesTotal.WithLabelValues(symbol, classification).Inc()
}

// RecordCallbackError increments the swallowed-callback-panic counter.
func RecordCallbackError(symbol, channel string) {
	callbackErrors.WithLabelValues(symbol, channel).Inc()
}

// RecordDataQualityWarning increments the data-quality-warning counter.
func RecordDataQualityWarning(symbol, kind string) {
	dataQualityWarnings.WithLabelValues(symbol, kind).Inc()
}

// RecordFanoutPublished increments the fan-out publish-success counter.
func RecordFanoutPublished(symbol string) {
	fanoutPublished.WithLabelValues(symbol).Inc()
}

// RecordFanoutDropped increments the fan-out drop counter.
func RecordFanoutDropped(symbol string) {
	fanoutDropped.WithLabelValues(symbol).Inc()
}

// SetHealthy records the current health() verdict.
func SetHealthy(symbol string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	healthGauge.WithLabelValues(symbol).Set(v)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
