package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"hebrewfeed/internal/atproto"
	"hebrewfeed/internal/authorlang"
	"hebrewfeed/internal/blocks"
	"hebrewfeed/internal/config"
	"hebrewfeed/internal/database/boltstore"
	"hebrewfeed/internal/database/sqlstore"
	"hebrewfeed/internal/feed"
	"hebrewfeed/internal/filtered"
	"hebrewfeed/internal/firehose"
	"hebrewfeed/internal/handlers"
	"hebrewfeed/internal/indexer"
	"hebrewfeed/internal/language"
	"hebrewfeed/internal/metrics"
	"hebrewfeed/internal/notifybot"
	"hebrewfeed/internal/routing"
	"hebrewfeed/internal/tracing"
)

const (
	collectInterval = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		setupLogging(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("hostname", cfg.Hostname).
		Str("publisher", cfg.PublisherDID).
		Str("service_did", cfg.ServiceDID()).
		Msg("Starting Hebrew feed generator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.Init(ctx, cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
		log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("Tracing enabled")
	}

	db, err := sqlstore.Open(ctx, sqlstore.Options{
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open feed database")
	}
	defer db.Close()
	log.Info().Str("dialect", string(db.Dialect())).Msg("Feed database opened")

	state, err := boltstore.Open(boltstore.Options{Path: cfg.StatePath})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StatePath).Msg("Failed to open state database")
	}
	defer state.Close()

	prom := metrics.NewPrometheus()

	public := atproto.NewPublicClient(atproto.PublicConfig{RateLimit: cfg.APIRateLimit})
	blockCache := blocks.NewService(public, cfg.CacheTTL, prom)

	filteredUsers := filtered.NewService(filtered.Config{
		ControlPost:     cfg.FilteredControlPost,
		Constant:        cfg.FilteredUsers,
		RefreshInterval: cfg.FilteredRefresh,
		RetryInterval:   cfg.FilteredRetry,
	}, public, state.FilteredStore(), prom)
	lastFilteredUpdate, err := filteredUsers.LoadSnapshot()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load filtered users snapshot")
	}
	log.Info().Int("count", filteredUsers.Count()).Msg("Filtered users loaded")

	firehoseCfg := firehose.DefaultConfig()
	firehoseCfg.Endpoint = cfg.SubscriptionEndpoint
	firehoseCfg.Service = cfg.SubscriptionEndpoint
	firehoseCfg.ReconnectDelay = cfg.ReconnectDelay
	firehoseCfg.BatchSize = cfg.BatchSize
	firehoseCfg.BatchWait = cfg.BatchWait

	log.Info().Msg("Loading language models")
	classifier := language.NewClassifier(language.NewLinguaDetector())
	ix := indexer.New(indexer.Config{
		Workers:   cfg.ClassifierWorkers,
		QueueSize: cfg.ClassifierQueueSize,
		Policy: language.AuthorPolicy{
			MinConfidence: cfg.AuthorMinConfidence,
			MinShare:      cfg.AuthorMinShare,
			MinPosts:      cfg.AuthorMinPosts,
		},
	}, firehose.NewExtractor(firehoseCfg.Collection, prom), classifier, db, filteredUsers, prom)
	defer ix.Close()

	manager := firehose.NewManager(firehoseCfg, firehose.NewRelayStream(firehoseCfg, prom), db, ix, prom)

	feeds := feed.NewService(feed.NewDefaultRegistry(feed.Deps{
		Store:          db,
		Blocks:         blockCache,
		Filtered:       filteredUsers,
		ExperimentPath: cfg.ExperimentFeedPath,
	}), prom)

	h := handlers.NewHandler(handlers.Config{
		Hostname:     cfg.Hostname,
		PublisherDID: cfg.PublisherDID,
		ServiceDID:   cfg.ServiceDID(),
		MaxEventAge:  cfg.HealthMaxEventAge,
	}, feeds, db, manager, filteredUsers, blockCache)

	prom.StartCollector(ctx, metrics.StatsSource{
		Cursor: manager.Cursor,
		PostCount: func(ctx context.Context) int64 {
			n, err := db.CountPosts(ctx)
			if err != nil {
				return -1
			}
			return n
		},
		BlockCacheSize:  blockCache.Len,
		FilteredCount:   filteredUsers.Count,
		ClassifierQueue: ix.QueueDepth,
	}, collectInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Run(gctx, cfg.ReconnectDelay)
		return nil
	})
	g.Go(func() error {
		filteredUsers.Run(gctx, lastFilteredUpdate)
		return nil
	})
	g.Go(func() error {
		authorlang.NewJob(db, cfg.AuthorLanguageRefresh).Run(gctx)
		return nil
	})

	if cfg.Bot.Enabled {
		botStore, err := notifybot.OpenStore(db.DB(), db.Dialect())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open notify bot store")
		}
		client := atproto.NewClient(atproto.ClientConfig{
			Host:       cfg.APIEndpoint,
			Identifier: cfg.Identifier,
			Password:   cfg.Password,
			RateLimit:  cfg.APIRateLimit,
		})
		bot := notifybot.New(notifybot.Config{
			RunInterval:      cfg.Bot.RunInterval,
			LookbackInterval: cfg.Bot.LookbackInterval,
			Greeting:         cfg.Bot.Greeting,
			Langs:            cfg.Bot.Langs,
			PromoPostURI:     cfg.Bot.PromoPostURI,
			PromoPostCID:     cfg.Bot.PromoPostCID,
		}, botStore, client, prom)
		g.Go(func() error {
			bot.Run(gctx)
			return nil
		})
	}

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: routing.SetupRouter(routing.Config{
			Handlers: h,
			Metrics:  prom,
			Logger:   log.Logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().
			Str("address", server.Addr).
			Str("subscription", cfg.SubscriptionEndpoint).
			Bool("bot", cfg.Bot.Enabled).
			Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server stopped")
}
