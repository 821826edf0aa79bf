package handlers

import (
	"context"
	"net/http"
	"time"

	"hebrewfeed/internal/firehose"

	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 2 * time.Second

// HandleHealth reports 200 when the database answers and the firehose is
// fresh, 503 with the failing check otherwise.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, errServiceUnavailable, "database not configured")
		return
	}
	if err := h.db.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("handlers: health check database ping failed")
		writeError(w, http.StatusServiceUnavailable, errServiceUnavailable, "database unreachable")
		return
	}

	if h.firehose == nil {
		writeError(w, http.StatusServiceUnavailable, errServiceUnavailable, "firehose not running")
		return
	}
	if err := firehose.CheckFreshness(h.firehose.LastEventTime(), h.now(), h.config.MaxEventAge); err != nil {
		writeError(w, http.StatusServiceUnavailable, errServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats is the /stats response.
type Stats struct {
	Cursor         int64      `json:"cursor"`
	CommitsHandled int64      `json:"commitsHandled"`
	Sessions       int64      `json:"sessions"`
	LastEventAt    *time.Time `json:"lastEventAt,omitempty"`
	Connected      bool       `json:"connected"`
	FilteredUsers  int        `json:"filteredUsers"`
	FilteredAt     *time.Time `json:"filteredUpdatedAt,omitempty"`
	BlockCacheSize int        `json:"blockCacheSize"`
	Feeds          []string   `json:"feeds"`
}

// HandleStats reports ingestion and cache counters as JSON.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{Feeds: h.feeds.Registry().Names()}

	if h.firehose != nil {
		stats.Cursor = h.firehose.Cursor()
		stats.CommitsHandled = h.firehose.CommitsHandled()
		stats.Sessions = h.firehose.Sessions()
		stats.Connected = h.firehose.IsConnected()
		if last := h.firehose.LastEventTime(); !last.IsZero() {
			last = last.UTC()
			stats.LastEventAt = &last
		}
	}
	if h.filtered != nil {
		stats.FilteredUsers = h.filtered.Count()
		if at := h.filtered.UpdatedAt(); !at.IsZero() {
			at = at.UTC()
			stats.FilteredAt = &at
		}
	}
	if h.blocks != nil {
		stats.BlockCacheSize = h.blocks.Len()
	}

	writeJSON(w, http.StatusOK, stats)
}
