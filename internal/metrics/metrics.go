package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Recorder is the metrics port used by the pipeline and the query API.
// Implementations must be safe for concurrent use.
type Recorder interface {
	FirehoseConnected(connected bool)
	FirehoseEvent(bytes int)
	FirehoseError()
	FirehoseOperation(action, collection string)
	CommitsHandled(count int, lag, took time.Duration)
	PostsWritten(inserted, deleted int)
	PostDecodeFailed(reason string)
	Classified(label string, took time.Duration)
	ClassifierQueueDepth(depth int)
	BlockCacheLookup(hit bool)
	BlockFetchFailed()
	FilteredUsers(count int)
	FeedGenerated(feed, status string, authenticated bool, took time.Duration)
	HTTPRequest(method, path string, status int, took time.Duration)
	BotNotification(status string)
}

// Prometheus is a Recorder backed by a dedicated Prometheus registry.
type Prometheus struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	firehoseConnectionState prometheus.Gauge
	firehoseEventsTotal     prometheus.Counter
	firehoseBytesTotal      prometheus.Counter
	firehoseErrorsTotal     prometheus.Counter
	firehoseOperations      *prometheus.CounterVec
	firehoseCommitLag       prometheus.Gauge
	commitsHandledTotal     prometheus.Counter
	batchDuration           prometheus.Histogram
	batchSize               prometheus.Histogram

	postsInsertedTotal prometheus.Counter
	postsDeletedTotal  prometheus.Counter
	decodeFailures     *prometheus.CounterVec

	classifiedTotal      *prometheus.CounterVec
	classifyDuration     prometheus.Histogram
	classifierQueueDepth prometheus.Gauge

	blockCacheLookups  *prometheus.CounterVec
	blockFetchFailures prometheus.Counter
	filteredUsers      prometheus.Gauge

	feedGenerationTotal    *prometheus.CounterVec
	feedGenerationDuration *prometheus.HistogramVec

	botNotifications *prometheus.CounterVec

	// Gauges refreshed by the collector.
	cursorGauge       prometheus.Gauge
	indexedPosts      prometheus.Gauge
	blockCacheEntries prometheus.Gauge
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus recorder with its own registry, which
// also carries the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hebrewfeed_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hebrewfeed_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),

		firehoseConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "hebrewfeed_firehose_connection_state",
			Help: "Firehose connection state (1=connected, 0=disconnected)",
		}),
		firehoseEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hebrewfeed_firehose_events_total",
			Help: "Total number of firehose frames received",
		}),
		firehoseBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hebrewfeed_firehose_bytes_total",
			Help: "Total number of firehose bytes received",
		}),
		firehoseErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hebrewfeed_firehose_errors_total",
			Help: "Total number of firehose stream errors",
		}),
		firehoseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hebrewfeed_firehose_operations_total",
			Help: "Repository operations seen on the firehose",
		}, []string{"action", "collection"}),
		firehoseCommitLag: f.NewGauge(prometheus.GaugeOpts{
			Name: "hebrewfeed_firehose_commit_lag_seconds",
			Help: "Age of the newest commit in the last handled batch",
		}),
		commitsHandledTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hebrewfeed_commits_handled_total",
			Help: "Total number of commit events handled",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hebrewfeed_batch_duration_seconds",
			Help:    "Time spent handling one batch of commits",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hebrewfeed_batch_size",
			Help:    "Number of commits per handled batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		postsInsertedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hebrewfeed_posts_inserted_total",
			Help: "Posts submitted for insertion",
		}),
		postsDeletedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hebrewfeed_posts_deleted_total",
			Help: "Post deletions submitted",
		}),
		decodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hebrewfeed_post_decode_failures_total",
			Help: "Post records skipped because they could not be decoded",
		}, []string{"reason"}),

		classifiedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hebrewfeed_classified_posts_total",
			Help: "Posts classified by resulting language label",
		}, []string{"label"}),
		classifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hebrewfeed_classify_duration_seconds",
			Help:    "Language detection time per post",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		classifierQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "hebrewfeed_classifier_queue_depth",
			Help: "Classification jobs waiting for a worker",
		}),

		blockCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hebrewfeed_block_cache_lookups_total",
			Help: "Block-list cache lookups",
		}, []string{"result"}),
		blockFetchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "hebrewfeed_block_fetch_failures_total",
			Help: "Block-list fetches that failed",
		}),
		filteredUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "hebrewfeed_filtered_users",
			Help: "Number of globally filtered users",
		}),

		feedGenerationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hebrewfeed_feed_generation_total",
			Help: "Feed skeleton requests",
		}, []string{"feed", "status", "authenticated"}),
		feedGenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hebrewfeed_feed_generation_duration_seconds",
			Help:    "Feed skeleton generation time",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"status", "feed"}),

		botNotifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hebrewfeed_bot_notifications_total",
			Help: "Greeting posts attempted by the notify bot",
		}, []string{"status"}),

		cursorGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "hebrewfeed_firehose_cursor",
			Help: "Last persisted firehose sequence number",
		}),
		indexedPosts: f.NewGauge(prometheus.GaugeOpts{
			Name: "hebrewfeed_indexed_posts",
			Help: "Number of posts in the feed store",
		}),
		blockCacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "hebrewfeed_block_cache_entries",
			Help: "Entries in the block-list cache",
		}),
	}
}

// Registry returns the registry the recorder writes to.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) FirehoseConnected(connected bool) {
	if connected {
		p.firehoseConnectionState.Set(1)
		return
	}
	p.firehoseConnectionState.Set(0)
}

func (p *Prometheus) FirehoseEvent(bytes int) {
	p.firehoseEventsTotal.Inc()
	p.firehoseBytesTotal.Add(float64(bytes))
}

func (p *Prometheus) FirehoseError() {
	p.firehoseErrorsTotal.Inc()
}

func (p *Prometheus) FirehoseOperation(action, collection string) {
	p.firehoseOperations.WithLabelValues(action, collection).Inc()
}

func (p *Prometheus) CommitsHandled(count int, lag, took time.Duration) {
	p.commitsHandledTotal.Add(float64(count))
	p.batchSize.Observe(float64(count))
	p.batchDuration.Observe(took.Seconds())
	p.firehoseCommitLag.Set(lag.Seconds())
}

func (p *Prometheus) PostsWritten(inserted, deleted int) {
	p.postsInsertedTotal.Add(float64(inserted))
	p.postsDeletedTotal.Add(float64(deleted))
}

func (p *Prometheus) PostDecodeFailed(reason string) {
	p.decodeFailures.WithLabelValues(reason).Inc()
}

func (p *Prometheus) Classified(label string, took time.Duration) {
	p.classifiedTotal.WithLabelValues(label).Inc()
	p.classifyDuration.Observe(took.Seconds())
}

func (p *Prometheus) ClassifierQueueDepth(depth int) {
	p.classifierQueueDepth.Set(float64(depth))
}

func (p *Prometheus) BlockCacheLookup(hit bool) {
	if hit {
		p.blockCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	p.blockCacheLookups.WithLabelValues("miss").Inc()
}

func (p *Prometheus) BlockFetchFailed() {
	p.blockFetchFailures.Inc()
}

func (p *Prometheus) FilteredUsers(count int) {
	p.filteredUsers.Set(float64(count))
}

func (p *Prometheus) FeedGenerated(feed, status string, authenticated bool, took time.Duration) {
	p.feedGenerationTotal.WithLabelValues(feed, status, strconv.FormatBool(authenticated)).Inc()
	p.feedGenerationDuration.WithLabelValues(status, feed).Observe(took.Seconds())
}

func (p *Prometheus) HTTPRequest(method, path string, status int, took time.Duration) {
	path = NormalizePath(path)
	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

func (p *Prometheus) BotNotification(status string) {
	p.botNotifications.WithLabelValues(status).Inc()
}

// FirehoseConnectionState reports the current value of the connection gauge.
func (p *Prometheus) FirehoseConnectionState() float64 {
	return gaugeValue(p.firehoseConnectionState)
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// Noop discards every observation.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) FirehoseConnected(bool) {}
func (Noop) FirehoseEvent(int) {}
func (Noop) FirehoseError() {}
func (Noop) FirehoseOperation(string, string) {}
func (Noop) CommitsHandled(int, time.Duration, time.Duration) {}
func (Noop) PostsWritten(int, int) {}
func (Noop) PostDecodeFailed(string) {}
func (Noop) Classified(string, time.Duration) {}
func (Noop) ClassifierQueueDepth(int) {}
func (Noop) BlockCacheLookup(bool) {}
func (Noop) BlockFetchFailed() {}
func (Noop) FilteredUsers(int) {}
func (Noop) FeedGenerated(string, string, bool, time.Duration) {}
func (Noop) HTTPRequest(string, string, int, time.Duration) {}
func (Noop) BotNotification(string) {}

// NormalizePath reduces high-cardinality path labels. Only the routes the
// server exposes keep their own label; everything else is reported as "other".
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) == 0 {
		return "/"
	}

	switch segments[0] {
	case "xrpc":
		if len(segments) == 2 && strings.HasPrefix(segments[1], "app.bsky.feed.") {
			return path
		}
	case ".well-known":
		if len(segments) == 2 && segments[1] == "did.json" {
			return path
		}
	case "health", "stats", "metrics":
		if len(segments) == 1 {
			return path
		}
	}

	return "other"
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
