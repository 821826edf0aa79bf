// Package config loads the service configuration from the environment, an
// optional .env file and an optional YAML overlay for list-shaped settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFilteredUsersControlPost is the post whose likers opt out of every feed.
const DefaultFilteredUsersControlPost = "at://did:plc:ioo5uzicjxs5i6nfpjcxbugg/app.bsky.feed.post/3lbf7z7lb6c2x"

// DefaultFilteredUsers are excluded from every feed regardless of the control post.
var DefaultFilteredUsers = []string{
	"did:plc:ioo5uzicjxs5i6nfpjcxbugg", // feed bot
	"did:plc:aest7xbdwd7twym3pqhyihkf",
	"did:plc:6tyoa26a4isxgxujdnmzlttg",
	"did:plc:4hm6gb7dzobynqrpypif3dck",
	"did:plc:l6fkbpyc72a5mmoh4jwxuw2r",
	"did:plc:4xi4clnyqn2z7hnu6mtlwf7q",
	"did:plc:54jnwvnp7arbuh65i7ulg6gh",
	"did:plc:bktiotjbtrqnijcbmpqxzrdo",
}

// Default notify bot texts. {handle} is replaced with the author's handle.
const (
	DefaultBotGreeting     = "היי @{handle}, נראה שפרסמת את הפוסט הראשון שלך בעברית!\nחסר לך אחרי מי לעקוב? לא יודע/ת איפה כולם? נסה/י את פיד עברית!"
	DefaultBotPromoPostURI = "at://did:plc:ioo5uzicjxs5i6nfpjcxbugg/app.bsky.feed.post/3k5kjdysvef25"
	DefaultBotPromoPostCID = "bafyreihhxa4ukspeaudjufw6ydzp3h3atlbfzjkfloguvsx76r6zc2q5p4"
)

// Config is the complete service configuration.
type Config struct {
	Port int
	Host string

	PostgresDSN string
	SQLitePath  string
	StatePath   string
	CacheTTL    time.Duration

	Bot BotConfig

	APIEndpoint  string
	Identifier   string
	Password     string
	APIRateLimit float64

	SubscriptionEndpoint string
	Hostname             string
	PublisherDID         string
	ReconnectDelay       time.Duration
	BatchSize            int
	BatchWait            time.Duration
	ClassifierWorkers    int
	ClassifierQueueSize  int
	HealthMaxEventAge    time.Duration

	FilteredControlPost string
	FilteredUsers       []string
	FilteredRefresh     time.Duration
	FilteredRetry       time.Duration

	AuthorLanguageRefresh time.Duration
	AuthorMinConfidence   float64
	AuthorMinShare        float64
	AuthorMinPosts        int

	ExperimentFeedPath string
	ConfigFile         string

	TracingEnabled bool
	OTLPEndpoint   string

	LogLevel  string
	LogFormat string
}

// BotConfig configures the first-post notify bot.
type BotConfig struct {
	Enabled          bool
	RunInterval      time.Duration
	LookbackInterval time.Duration
	Greeting         string
	Langs            []string
	PromoPostURI     string
	PromoPostCID     string
}

// overlay is the YAML file shape. Empty values keep the environment's.
type overlay struct {
	FilteredUsers []string `yaml:"filtered_users"`
	Bot           struct {
		Greeting  string   `yaml:"greeting"`
		Langs     []string `yaml:"langs"`
		PromoPost struct {
			URI string `yaml:"uri"`
			CID string `yaml:"cid"`
		} `yaml:"promo_post"`
	} `yaml:"bot"`
}

// Load reads an optional .env file, then the environment, then the YAML file
// named by FEEDGEN_CONFIG_FILE.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	dataDir := defaultDataDir(getenv)

	c := &Config{
		Port: e.integer("PORT", 3000),
		Host: e.str("HOST", "localhost"),

		PostgresDSN: e.str("POSTGRES_CONNECTION_STRING", ""),
		SQLitePath:  e.str("SQLITE_PATH", filepath.Join(dataDir, "feed.db")),
		StatePath:   e.str("STATE_DB_PATH", filepath.Join(dataDir, "state.db")),
		CacheTTL:    e.millis("CACHE_TTL_MS", 30*time.Minute),

		Bot: BotConfig{
			Enabled:          e.boolean("BOT_ENABLED", false),
			RunInterval:      e.millis("BOT_RUN_INTERVAL_MS", 2*time.Minute),
			LookbackInterval: e.millis("BOT_LOOKBACK_INTERVAL_MS", 30*time.Minute),
			Greeting:         DefaultBotGreeting,
			Langs:            []string{"he", "yi", "iw"},
			PromoPostURI:     DefaultBotPromoPostURI,
			PromoPostCID:     DefaultBotPromoPostCID,
		},

		APIEndpoint:  e.str("BLUESKY_API_ENDPOINT", "https://bsky.social"),
		Identifier:   e.str("BLUESKY_CLIENT_LOGIN_IDENTIFIER", ""),
		Password:     e.str("BLUESKY_CLIENT_LOGIN_PASSWORD", ""),
		APIRateLimit: e.number("API_RATE_LIMIT", 10),

		SubscriptionEndpoint: e.str("FEEDGEN_SUBSCRIPTION_ENDPOINT", "wss://bsky.network"),
		Hostname:             e.str("FEEDGEN_HOSTNAME", "example.com"),
		PublisherDID:         e.str("FEEDGEN_PUBLISHER_DID", ""),
		ReconnectDelay:       e.millis("SUBSCRIPTION_RECONNECT_DELAY", 3*time.Second),
		BatchSize:            e.integer("SUBSCRIPTION_BATCH_SIZE", 2000),
		BatchWait:            e.millis("SUBSCRIPTION_BATCH_WAIT_MS", 10*time.Second),
		ClassifierWorkers:    e.integer("CLASSIFIER_WORKERS", runtime.NumCPU()),
		ClassifierQueueSize:  e.integer("CLASSIFIER_QUEUE_SIZE", 1024),
		HealthMaxEventAge:    e.millis("HEALTH_MAX_EVENT_AGE_MS", 10*time.Second),

		FilteredControlPost: e.str("FILTERED_USERS_CONTROL_POST", DefaultFilteredUsersControlPost),
		FilteredUsers:       append([]string(nil), DefaultFilteredUsers...),
		FilteredRefresh:     e.millis("FILTERED_USERS_REFRESH_MS", 30*time.Minute),
		FilteredRetry:       e.millis("FILTERED_USERS_RETRY_MS", time.Minute),

		AuthorLanguageRefresh: e.millis("AUTHOR_LANGUAGE_REFRESH_MS", time.Hour),
		AuthorMinConfidence:   e.number("AUTHOR_LANGUAGE_MIN_CONFIDENCE", 0.5),
		AuthorMinShare:        e.number("AUTHOR_LANGUAGE_MIN_SHARE", 0.8),
		AuthorMinPosts:        e.integer("AUTHOR_LANGUAGE_MIN_POSTS", 5),

		ExperimentFeedPath: e.str("EXPERIMENT_FEED_SOURCE_FILEPATH", ""),
		ConfigFile:         e.str("FEEDGEN_CONFIG_FILE", ""),

		TracingEnabled: e.boolean("TRACING_ENABLED", false),
		OTLPEndpoint:   e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "console"),
	}

	if err := e.err(); err != nil {
		return nil, err
	}

	if c.ConfigFile != "" {
		if err := c.applyOverlay(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(o.FilteredUsers) > 0 {
		c.FilteredUsers = o.FilteredUsers
	}
	if o.Bot.Greeting != "" {
		c.Bot.Greeting = o.Bot.Greeting
	}
	if len(o.Bot.Langs) > 0 {
		c.Bot.Langs = o.Bot.Langs
	}
	if o.Bot.PromoPost.URI != "" {
		c.Bot.PromoPostURI = o.Bot.PromoPost.URI
		c.Bot.PromoPostCID = o.Bot.PromoPost.CID
	}
	return nil
}

// Validate reports settings that are missing or out of range.
func (c *Config) Validate() error {
	var errs []error
	if c.PublisherDID == "" {
		errs = append(errs, errors.New("FEEDGEN_PUBLISHER_DID is required"))
	} else if !strings.HasPrefix(c.PublisherDID, "did:") {
		errs = append(errs, fmt.Errorf("FEEDGEN_PUBLISHER_DID %q is not a DID", c.PublisherDID))
	}
	if c.Hostname == "" {
		errs = append(errs, errors.New("FEEDGEN_HOSTNAME is required"))
	}
	if c.Bot.Enabled && (c.Identifier == "" || c.Password == "") {
		errs = append(errs, errors.New("BLUESKY_CLIENT_LOGIN_IDENTIFIER and BLUESKY_CLIENT_LOGIN_PASSWORD are required when BOT_ENABLED"))
	}
	if c.Bot.Enabled && !strings.Contains(c.Bot.Greeting, "{handle}") {
		errs = append(errs, errors.New("bot greeting must contain {handle}"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_BATCH_SIZE must be positive"))
	}
	if c.ClassifierWorkers <= 0 {
		errs = append(errs, errors.New("CLASSIFIER_WORKERS must be positive"))
	}
	if c.AuthorMinShare < 0 || c.AuthorMinShare > 1 {
		errs = append(errs, errors.New("AUTHOR_LANGUAGE_MIN_SHARE must be between 0 and 1"))
	}

	type interval struct {
		key   string
		value time.Duration
	}
	intervals := []interval{
		{"CACHE_TTL_MS", c.CacheTTL},
		{"SUBSCRIPTION_RECONNECT_DELAY", c.ReconnectDelay},
		{"SUBSCRIPTION_BATCH_WAIT_MS", c.BatchWait},
		{"HEALTH_MAX_EVENT_AGE_MS", c.HealthMaxEventAge},
		{"FILTERED_USERS_REFRESH_MS", c.FilteredRefresh},
		{"FILTERED_USERS_RETRY_MS", c.FilteredRetry},
		{"AUTHOR_LANGUAGE_REFRESH_MS", c.AuthorLanguageRefresh},
	}
	if c.Bot.Enabled {
		intervals = append(intervals,
			interval{"BOT_RUN_INTERVAL_MS", c.Bot.RunInterval},
			interval{"BOT_LOOKBACK_INTERVAL_MS", c.Bot.LookbackInterval},
		)
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", iv.key))
		}
	}
	return errors.Join(errs...)
}

// ServiceDID is the did:web identity of this feed generator.
func (c *Config) ServiceDID() string {
	return "did:web:" + c.Hostname
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaultDataDir(getenv func(string) string) string {
	dataDir := getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "hebrewfeed")
}

// env reads typed variables and collects parse errors.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: expected an integer, got %q", key, v))
		return def
	}
	return n
}

func (e *env) number(key string, def float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: expected a number, got %q", key, v))
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	switch v := strings.TrimSpace(e.get(key)); v {
	case "":
		return def
	case "true":
		return true
	case "false":
		return false
	default:
		e.errs = append(e.errs, fmt.Errorf("%s: expected 'true' or 'false', got %q", key, v))
		return def
	}
}

// millis reads a duration given in milliseconds.
func (e *env) millis(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: expected milliseconds, got %q", key, v))
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
