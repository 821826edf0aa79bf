// Package handlers serves the feed generator's XRPC, DID and operational
// endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"hebrewfeed/internal/feed"

	"github.com/rs/zerolog/log"
)

// Config holds handler configuration options
type Config struct {
	// Hostname is the public host serving this generator.
	Hostname string
	// PublisherDID owns the feed generator records.
	PublisherDID string
	// ServiceDID defaults to did:web:<Hostname>.
	ServiceDID string

	// MaxEventAge is how old the newest firehose event may be before /health fails.
	MaxEventAge time.Duration
}

func (c Config) serviceDID() string {
	if c.ServiceDID != "" {
		return c.ServiceDID
	}
	return "did:web:" + c.Hostname
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FirehoseStatus reports the state of the relay subscription.
type FirehoseStatus interface {
	Cursor() int64
	LastEventTime() time.Time
	Sessions() int64
	CommitsHandled() int64
	IsConnected() bool
}

// FilteredStatus reports the filtered-users set.
type FilteredStatus interface {
	Count() int
	UpdatedAt() time.Time
}

// CacheStatus reports the size of a cache.
type CacheStatus interface {
	Len() int
}

// Handler contains all HTTP handler methods and their dependencies.
type Handler struct {
	config   Config
	feeds    *feed.Service
	db       Pinger
	firehose FirehoseStatus
	filtered FilteredStatus
	blocks   CacheStatus
	now      func() time.Time
}

// NewHandler creates a Handler. db, firehose, filtered and blocks may be nil;
// the endpoints that need them report them as unavailable.
func NewHandler(config Config, feeds *feed.Service, db Pinger, firehose FirehoseStatus, filtered FilteredStatus, blocks CacheStatus) *Handler {
	if config.MaxEventAge <= 0 {
		config.MaxEventAge = 10 * time.Second
	}
	return &Handler{
		config:   config,
		feeds:    feeds,
		db:       db,
		firehose: firehose,
		filtered: filtered,
		blocks:   blocks,
		now:      time.Now,
	}
}

// XRPC error names.
const (
	errInvalidRequest        = "InvalidRequest"
	errUnsupportedAlgorithm  = "UnsupportedAlgorithm"
	errInternalServerError   = "InternalServerError"
	errServiceUnavailable    = "ServiceUnavailable"
	internalServerErrMessage = "Internal Server Error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("handlers: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}
