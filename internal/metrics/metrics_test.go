package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/stats", "/stats"},
		{"/metrics", "/metrics"},
		{"/.well-known/did.json", "/.well-known/did.json"},
		{"/xrpc/app.bsky.feed.getFeedSkeleton", "/xrpc/app.bsky.feed.getFeedSkeleton"},
		{"/xrpc/app.bsky.feed.describeFeedGenerator", "/xrpc/app.bsky.feed.describeFeedGenerator"},

		// Unknown routes collapse into one label
		{"/xrpc/com.atproto.server.createSession", "other"},
		{"/wp-admin/login.php", "other"},
		{"/health/extra", "other"},
		{"/.well-known/atproto-did", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestPrometheus_Recorder(t *testing.T) {
	p := NewPrometheus()

	p.FirehoseConnected(true)
	assert.Equal(t, 1.0, p.FirehoseConnectionState())
	p.FirehoseConnected(false)
	assert.Equal(t, 0.0, p.FirehoseConnectionState())

	p.FirehoseEvent(100)
	p.FirehoseEvent(50)
	assert.Equal(t, 2.0, counterValue(t, p.firehoseEventsTotal))
	assert.Equal(t, 150.0, counterValue(t, p.firehoseBytesTotal))

	p.FirehoseOperation("create", "app.bsky.feed.post")
	p.FirehoseOperation("create", "app.bsky.feed.post")
	p.FirehoseOperation("delete", "app.bsky.feed.post")
	assert.Equal(t, 2.0, counterValue(t, p.firehoseOperations.WithLabelValues("create", "app.bsky.feed.post")))
	assert.Equal(t, 1.0, counterValue(t, p.firehoseOperations.WithLabelValues("delete", "app.bsky.feed.post")))

	p.CommitsHandled(10, 2*time.Second, 100*time.Millisecond)
	assert.Equal(t, 10.0, counterValue(t, p.commitsHandledTotal))
	assert.Equal(t, 2.0, gaugeValue(p.firehoseCommitLag))

	p.BlockCacheLookup(true)
	p.BlockCacheLookup(false)
	p.BlockCacheLookup(false)
	assert.Equal(t, 1.0, counterValue(t, p.blockCacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, counterValue(t, p.blockCacheLookups.WithLabelValues("miss")))

	p.FeedGenerated("hebrew-feed", "ok", true, 10*time.Millisecond)
	assert.Equal(t, 1.0, counterValue(t, p.feedGenerationTotal.WithLabelValues("hebrew-feed", "ok", "true")))
}

func TestPrometheus_HTTPRequestNormalizesPath(t *testing.T) {
	p := NewPrometheus()

	p.HTTPRequest("GET", "/random/path", 404, time.Millisecond)
	p.HTTPRequest("GET", "/another", 404, time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, p.httpRequestsTotal.WithLabelValues("GET", "other", "404")))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.FirehoseEvent(1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "hebrewfeed_firehose_events_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPrometheus_Collect(t *testing.T) {
	p := NewPrometheus()

	p.collect(context.Background(), StatsSource{
		Cursor:         func() int64 { return 42 },
		PostCount:      func(context.Context) int64 { return -1 },
		BlockCacheSize: func() int { return 7 },
		FilteredCount:  func() int { return 3 },
	})

	assert.Equal(t, 42.0, gaugeValue(p.cursorGauge))
	assert.Equal(t, 0.0, gaugeValue(p.indexedPosts), "unavailable sources leave the gauge untouched")
	assert.Equal(t, 7.0, gaugeValue(p.blockCacheEntries))
	assert.Equal(t, 3.0, gaugeValue(p.filteredUsers))
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	assert.NotPanics(t, func() {
		r.FirehoseConnected(true)
		r.CommitsHandled(1, time.Second, time.Second)
		r.HTTPRequest("GET", "/", 200, time.Second)
	})
}
