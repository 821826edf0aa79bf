package database

import (
	"context"

	"hebrewfeed/internal/language"
)

// MockStore is a mock implementation of the store interfaces for testing.
// Uses function fields to allow tests to inject custom behavior.
type MockStore struct {
	ApplyPostsFunc      func(ctx context.Context, inserts []Post, deletes []string) error
	AuthorLanguagesFunc func(ctx context.Context, authors []string) (map[string]language.AuthorLanguage, error)

	QueryFeedFunc       func(ctx context.Context, q FeedQuery) ([]FeedRow, error)
	QueryFirstPostsFunc func(ctx context.Context, q FeedQuery) ([]FeedRow, error)

	GetCursorFunc    func(ctx context.Context, service string) (int64, bool, error)
	UpdateCursorFunc func(ctx context.Context, service string, cursor int64) error
}

var (
	_ PostStore   = (*MockStore)(nil)
	_ FeedStore   = (*MockStore)(nil)
	_ CursorStore = (*MockStore)(nil)
)

// ApplyPosts calls the mock function or returns nil if not set
func (m *MockStore) ApplyPosts(ctx context.Context, inserts []Post, deletes []string) error {
	if m.ApplyPostsFunc != nil {
		return m.ApplyPostsFunc(ctx, inserts, deletes)
	}
	return nil
}

// AuthorLanguages calls the mock function or returns nil if not set
func (m *MockStore) AuthorLanguages(ctx context.Context, authors []string) (map[string]language.AuthorLanguage, error) {
	if m.AuthorLanguagesFunc != nil {
		return m.AuthorLanguagesFunc(ctx, authors)
	}
	return nil, nil
}

// QueryFeed calls the mock function or returns nil if not set
func (m *MockStore) QueryFeed(ctx context.Context, q FeedQuery) ([]FeedRow, error) {
	if m.QueryFeedFunc != nil {
		return m.QueryFeedFunc(ctx, q)
	}
	return nil, nil
}

// QueryFirstPosts calls the mock function or returns nil if not set
func (m *MockStore) QueryFirstPosts(ctx context.Context, q FeedQuery) ([]FeedRow, error) {
	if m.QueryFirstPostsFunc != nil {
		return m.QueryFirstPostsFunc(ctx, q)
	}
	return nil, nil
}

// GetCursor calls the mock function or reports no cursor if not set
func (m *MockStore) GetCursor(ctx context.Context, service string) (int64, bool, error) {
	if m.GetCursorFunc != nil {
		return m.GetCursorFunc(ctx, service)
	}
	return 0, false, nil
}

// UpdateCursor calls the mock function or returns nil if not set
func (m *MockStore) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	if m.UpdateCursorFunc != nil {
		return m.UpdateCursorFunc(ctx, service, cursor)
	}
	return nil
}
