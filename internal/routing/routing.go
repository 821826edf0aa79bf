package routing

import (
	"net/http"

	"hebrewfeed/internal/handlers"
	"hebrewfeed/internal/metrics"
	"hebrewfeed/internal/middleware"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers *handlers.Handler
	Metrics  *metrics.Prometheus
	Logger   zerolog.Logger
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	mux.HandleFunc("GET /xrpc/app.bsky.feed.getFeedSkeleton", h.HandleGetFeedSkeleton)
	mux.HandleFunc("GET /xrpc/app.bsky.feed.describeFeedGenerator", h.HandleDescribeFeedGenerator)
	mux.HandleFunc("GET /.well-known/did.json", h.HandleDIDDocument)

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /stats", h.HandleStats)

	var rec metrics.Recorder = metrics.Noop{}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
		rec = cfg.Metrics
	}

	// Apply middleware in order (outermost last)
	var handler http.Handler = mux

	// 1. Logging and request metrics
	handler = middleware.LoggingMiddleware(cfg.Logger, rec)(handler)

	// 2. Requesting actor, outside logging so log lines carry it
	handler = middleware.ActorMiddleware(handler)

	// 3. Tracing (outermost)
	handler = otelhttp.NewHandler(handler, "hebrewfeed",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + metrics.NormalizePath(r.URL.Path)
		}),
	)

	return handler
}
