package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"hebrewfeed/internal/atproto"
	"hebrewfeed/internal/feed"
	"hebrewfeed/internal/middleware"

	"github.com/rs/zerolog/log"
)

// HandleGetFeedSkeleton serves app.bsky.feed.getFeedSkeleton.
func (h *Handler) HandleGetFeedSkeleton(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	feedURI := q.Get("feed")
	if feedURI == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "feed parameter is required")
		return
	}
	publisher, name, err := atproto.ParseFeedGeneratorURI(feedURI)
	if err != nil || publisher != h.config.PublisherDID {
		writeError(w, http.StatusBadRequest, errUnsupportedAlgorithm, "Unsupported algorithm")
		return
	}

	limit := feed.DefaultLimit
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > feed.MaxLimit {
			writeError(w, http.StatusBadRequest, errInvalidRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	req := feed.Request{
		Cursor: q.Get("cursor"),
		Limit:  limit,
		Viewer: middleware.RequestingActor(r.Context()),
	}

	skeleton, err := h.feeds.Generate(r.Context(), name, req)
	switch {
	case errors.Is(err, feed.ErrUnsupportedAlgorithm):
		writeError(w, http.StatusBadRequest, errUnsupportedAlgorithm, "Unsupported algorithm")
		return
	case errors.Is(err, feed.ErrMalformedCursor):
		writeError(w, http.StatusBadRequest, errInvalidRequest, "malformed cursor")
		return
	case err != nil:
		log.Error().Err(err).Str("feed", name).Str("cursor", req.Cursor).Msg("handlers: feed generation failed")
		writeError(w, http.StatusInternalServerError, errInternalServerError, internalServerErrMessage)
		return
	}

	writeJSON(w, http.StatusOK, skeleton)
}

type describedFeed struct {
	URI string `json:"uri"`
}

type describeFeedGeneratorOutput struct {
	DID   string          `json:"did"`
	Feeds []describedFeed `json:"feeds"`
}

// HandleDescribeFeedGenerator serves app.bsky.feed.describeFeedGenerator.
func (h *Handler) HandleDescribeFeedGenerator(w http.ResponseWriter, r *http.Request) {
	names := h.feeds.Registry().Names()
	out := describeFeedGeneratorOutput{
		DID:   h.config.serviceDID(),
		Feeds: make([]describedFeed, 0, len(names)),
	}
	for _, name := range names {
		out.Feeds = append(out.Feeds, describedFeed{URI: atproto.FeedGeneratorURI(h.config.PublisherDID, name)})
	}
	writeJSON(w, http.StatusOK, out)
}

type didService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

type didDocument struct {
	Context []string     `json:"@context"`
	ID      string       `json:"id"`
	Service []didService `json:"service"`
}

// HandleDIDDocument serves the did:web document advertising this feed generator.
func (h *Handler) HandleDIDDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, didDocument{
		Context: []string{"https://www.w3.org/ns/did/v1"},
		ID:      h.config.serviceDID(),
		Service: []didService{
			{
				ID:              "#bsky_fg",
				Type:            "BskyFeedGenerator",
				ServiceEndpoint: "https://" + h.config.Hostname,
			},
		},
	})
}
