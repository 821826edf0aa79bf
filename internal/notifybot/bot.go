// Package notifybot greets authors who publish their first Hebrew post and
// points them at the feeds.
package notifybot

import (
	"context"
	"fmt"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/rs/zerolog/log"

	"hebrewfeed/internal/atproto"
	"hebrewfeed/internal/language"
	"hebrewfeed/internal/metrics"
)

const (
	maxPerRun      = 50
	datetimeLayout = "2006-01-02T15:04:05.000Z"
)

// Defaults used when an interval is not positive.
const (
	DefaultRunInterval      = 2 * time.Minute
	DefaultLookbackInterval = 30 * time.Minute
)

// Poster is the account the bot posts as.
type Poster interface {
	GetProfile(ctx context.Context, actor string) (*atproto.Profile, error)
	CreatePost(ctx context.Context, post *bsky.FeedPost) (*atproto.RecordOutput, error)
}

// AuthorStore selects and records greeted authors.
type AuthorStore interface {
	NewAuthors(ctx context.Context, languages []string, since time.Time, limit int) ([]string, error)
	MarkNotified(ctx context.Context, did string, at time.Time) error
}

// Config controls the bot.
type Config struct {
	RunInterval      time.Duration
	LookbackInterval time.Duration
	// Greeting is the post text; {handle} is replaced with the author's handle.
	Greeting     string
	Langs        []string
	PromoPostURI string
	PromoPostCID string
}

// Bot periodically greets new Hebrew authors.
type Bot struct {
	cfg     Config
	store   AuthorStore
	poster  Poster
	metrics metrics.Recorder
	now     func() time.Time
}

// New creates a Bot. Non-positive intervals select the defaults.
func New(cfg Config, store AuthorStore, poster Poster, rec metrics.Recorder) *Bot {
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = DefaultRunInterval
	}
	if cfg.LookbackInterval <= 0 {
		cfg.LookbackInterval = DefaultLookbackInterval
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Bot{cfg: cfg, store: store, poster: poster, metrics: rec, now: time.Now}
}

// Run greets new authors every RunInterval until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	log.Info().
		Dur("interval", b.cfg.RunInterval).
		Dur("lookback", b.cfg.LookbackInterval).
		Msg("notifybot: running")

	ticker := time.NewTicker(b.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("notifybot: run failed")
			}
		}
	}
}

// RunOnce greets every pending author and returns how many were greeted.
// A failure for one author is logged and the next one is attempted; an
// author is recorded only after the greeting was posted.
func (b *Bot) RunOnce(ctx context.Context) (int, error) {
	since := b.now().Add(-b.cfg.LookbackInterval)
	authors, err := b.store.NewAuthors(ctx, language.HebrewLabels, since, maxPerRun)
	if err != nil {
		return 0, err
	}

	greeted := 0
	for _, did := range authors {
		if ctx.Err() != nil {
			return greeted, ctx.Err()
		}
		if err := b.greet(ctx, did); err != nil {
			b.metrics.BotNotification("error")
			log.Warn().Err(err).Str("did", did).Msg("notifybot: failed to greet author")
			continue
		}
		b.metrics.BotNotification("sent")
		greeted++
	}

	if len(authors) > 0 {
		log.Info().Int("candidates", len(authors)).Int("greeted", greeted).Msg("notifybot: run complete")
	}
	return greeted, nil
}

func (b *Bot) greet(ctx context.Context, did string) error {
	profile, err := b.poster.GetProfile(ctx, did)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}

	post := b.greeting(profile.Handle, did)
	out, err := b.poster.CreatePost(ctx, post)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}

	if err := b.store.MarkNotified(ctx, did, b.now()); err != nil {
		return err
	}
	log.Info().Str("did", did).Str("handle", profile.Handle).Str("uri", out.URI).Msg("notifybot: greeted new author")
	return nil
}

// greeting builds the post for handle, with a mention facet over "@handle"
// and the promo post quoted.
func (b *Bot) greeting(handle, did string) *bsky.FeedPost {
	text := strings.ReplaceAll(b.cfg.Greeting, "{handle}", handle)

	post := &bsky.FeedPost{
		Text:      text,
		Langs:     b.cfg.Langs,
		CreatedAt: b.now().UTC().Format(datetimeLayout),
	}

	mention := "@" + handle
	if start := strings.Index(text, mention); start >= 0 {
		post.Facets = []*bsky.RichtextFacet{{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(start),
				ByteEnd:   int64(start + len(mention)),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{{
				RichtextFacet_Mention: &bsky.RichtextFacet_Mention{
					LexiconTypeID: "app.bsky.richtext.facet#mention",
					Did:           did,
				},
			}},
		}}
	}

	if b.cfg.PromoPostURI != "" {
		post.Embed = &bsky.FeedPost_Embed{
			EmbedRecord: &bsky.EmbedRecord{
				LexiconTypeID: "app.bsky.embed.record",
				Record: &comatproto.RepoStrongRef{
					Uri: b.cfg.PromoPostURI,
					Cid: b.cfg.PromoPostCID,
				},
			},
		}
	}
	return post
}
