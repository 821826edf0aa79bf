// Command publish writes the app.bsky.feed.generator record of every
// built-in feed to the publisher account, uploading feed avatars on the way.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hebrewfeed/internal/atproto"
	"hebrewfeed/internal/config"
	"hebrewfeed/internal/feed"
	"hebrewfeed/internal/lexicons"
)

var generatorCollection = lexicons.CollectionFeedGenerator.String()

// repo is the subset of the authenticated client used for publishing.
type repo interface {
	UploadBlob(ctx context.Context, data []byte) (*lexutil.LexBlob, error)
	PutRecord(ctx context.Context, input *atproto.PutRecordInput) (*atproto.RecordOutput, error)
}

type options struct {
	serviceDID string
	avatarDir  string
	only       []string
	dryRun     bool
}

func main() {
	setupLogging()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("publish failed")
	}
}

func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		identifier = flag.String("identifier", cfg.Identifier, "publisher handle or DID")
		password   = flag.String("password", cfg.Password, "publisher app password")
		pds        = flag.String("pds", cfg.APIEndpoint, "PDS service URL")
		serviceDID = flag.String("service-did", cfg.ServiceDID(), "feed generator service DID")
		avatarDir  = flag.String("avatars", "feed-avatars", "directory holding the feed avatar images")
		only       = flag.String("only", "", "comma-separated feed names to publish (default: all)")
		dryRun     = flag.Bool("dry-run", false, "print the records instead of writing them")
	)
	flag.Parse()

	opts := options{
		serviceDID: *serviceDID,
		avatarDir:  *avatarDir,
		dryRun:     *dryRun,
	}
	if *only != "" {
		opts.only = strings.Split(*only, ",")
	}

	ctx := context.Background()
	client := atproto.NewClient(atproto.ClientConfig{
		Host:       *pds,
		Identifier: *identifier,
		Password:   *password,
		RateLimit:  cfg.APIRateLimit,
	})
	if !opts.dryRun {
		if err := client.Login(ctx); err != nil {
			return err
		}
	}

	return publish(ctx, client, feed.DefaultFeeds(), opts)
}

// publish writes one generator record per selected feed.
func publish(ctx context.Context, r repo, feeds []feed.Metadata, opts options) error {
	if opts.serviceDID == "" {
		return errors.New("service DID is required")
	}

	for _, meta := range feeds {
		if len(opts.only) > 0 && !slices.Contains(opts.only, meta.Name) {
			continue
		}

		record, err := generatorRecord(ctx, r, meta, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", meta.Name, err)
		}

		if opts.dryRun {
			out, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("%s\n%s\n", meta.Name, out)
			continue
		}

		res, err := r.PutRecord(ctx, &atproto.PutRecordInput{
			Collection: generatorCollection,
			RKey:       meta.Name,
			Record:     record,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", meta.Name, err)
		}
		log.Info().Str("feed", meta.Name).Str("uri", res.URI).Str("cid", res.CID).Msg("publish: feed published")
	}
	return nil
}

func generatorRecord(ctx context.Context, r repo, meta feed.Metadata, opts options) (*bsky.FeedGenerator, error) {
	record := &bsky.FeedGenerator{
		LexiconTypeID: generatorCollection,
		Did:           opts.serviceDID,
		DisplayName:   meta.DisplayName,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if meta.Description != "" {
		record.Description = &meta.Description
	}

	if meta.Avatar == "" || opts.avatarDir == "" || opts.dryRun {
		return record, nil
	}
	path := filepath.Join(opts.avatarDir, meta.Avatar)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
	default:
		return nil, fmt.Errorf("avatar %s: expected png or jpeg", path)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("feed", meta.Name).Str("path", path).Msg("publish: avatar missing, publishing without it")
		return record, nil
	}
	if err != nil {
		return nil, err
	}

	blob, err := r.UploadBlob(ctx, data)
	if err != nil {
		return nil, err
	}
	record.Avatar = blob
	return record, nil
}
