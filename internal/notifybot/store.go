package notifybot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"hebrewfeed/internal/database/migrations"
)

// NotifiedUser is an author who has already been greeted.
type NotifiedUser struct {
	DID        string    `gorm:"column:did;primaryKey"`
	NotifiedAt time.Time `gorm:"column:notified_at;not null"`
}

// TableName maps NotifiedUser to the notified_users table.
func (NotifiedUser) TableName() string { return "notified_users" }

// Store tracks greeted authors. It shares the feed store's connection pool;
// the schema is owned by the feed store's migrations.
type Store struct {
	db *gorm.DB
}

// OpenStore wraps an open connection pool of the given dialect.
func OpenStore(sqlDB *sql.DB, dialect migrations.Dialect) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case migrations.Postgres:
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case migrations.SQLite:
		dialector = sqlite.New(sqlite.Config{Conn: sqlDB})
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Store{db: db}, nil
}

// NewAuthors returns authors whose first top-level post in languages is newer
// than since and who have not been greeted, oldest first.
func (s *Store) NewAuthors(ctx context.Context, languages []string, since time.Time, limit int) ([]string, error) {
	firstPosts := s.db.Table("post").
		Select("author, MIN(effective_timestamp) AS first_ts").
		Where("language IN ? AND reply_to IS NULL", languages).
		Group("author")
	notified := s.db.Table("notified_users").Select("did")

	var authors []string
	err := s.db.WithContext(ctx).
		Table("(?) AS f", firstPosts).
		Where("f.first_ts > ?", since.UnixMilli()).
		Where("f.author NOT IN (?)", notified).
		Order("f.first_ts ASC").
		Limit(limit).
		Pluck("f.author", &authors).Error
	if err != nil {
		return nil, fmt.Errorf("select new authors: %w", err)
	}
	return authors, nil
}

// MarkNotified records that did was greeted. Marking twice is a no-op.
func (s *Store) MarkNotified(ctx context.Context, did string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&NotifiedUser{DID: did, NotifiedAt: at.UTC()}).Error
	if err != nil {
		return fmt.Errorf("mark %s notified: %w", did, err)
	}
	return nil
}

// IsNotified reports whether did was greeted.
func (s *Store) IsNotified(ctx context.Context, did string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&NotifiedUser{}).Where("did = ?", did).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", did, err)
	}
	return count > 0, nil
}
