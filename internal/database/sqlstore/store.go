// Package sqlstore provides the SQL-backed feed store. SQLite (modernc, pure
// Go) is the default; PostgreSQL is used when a connection string is
// configured. Both run the same portable SQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"hebrewfeed/internal/database"
	"hebrewfeed/internal/database/migrations"
)

// Options configures the SQL store.
type Options struct {
	// PostgresDSN selects PostgreSQL when set.
	PostgresDSN string
	// SQLitePath is the SQLite file used otherwise.
	SQLitePath string
}

// Store implements the feed, post and cursor stores over database/sql.
type Store struct {
	db      *sql.DB
	dialect migrations.Dialect
}

var (
	_ database.PostStore   = (*Store)(nil)
	_ database.FeedStore   = (*Store)(nil)
	_ database.CursorStore = (*Store)(nil)
)

// Open connects to the configured database, instruments it with OpenTelemetry
// and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		driver  string
		dsn     string
		dialect migrations.Dialect
		system  = semconv.DBSystemSqlite
	)

	if opts.PostgresDSN != "" {
		driver, dsn, dialect = "postgres", opts.PostgresDSN, migrations.Postgres
		system = semconv.DBSystemPostgreSQL
	} else {
		path := opts.SQLitePath
		if path == "" {
			path = "feed.db"
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		driver, dsn, dialect = "sqlite", sqliteDSN(path), migrations.SQLite
	}

	db, err := otelsql.Open(driver, dsn, otelsql.WithAttributes(system))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := migrations.Up(db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: dialect}, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(10000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// DB returns the underlying connection pool, shared with the notify bot.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports which database the store is connected to.
func (s *Store) Dialect() migrations.Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != migrations.Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
