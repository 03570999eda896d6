// Package bookmark answers "is this URL bookmarked" for the expiration
// engine. Bookmarked URLs keep their URL row even after every visit is
// expired.
package bookmark

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Oracle is the membership check the expiration engine consults before
// deleting a URL row. BlockTillLoaded may block the calling goroutine
// until the backing set has finished loading; it must be called before
// the first IsBookmarked.
type Oracle interface {
	BlockTillLoaded(ctx context.Context)
	IsBookmarked(url string) bool
}

// StarList is a SQLite-backed Oracle. The bookmark set is loaded once,
// lazily, and then served from memory.
type StarList struct {
	db *sql.DB

	once   sync.Once
	mu     sync.RWMutex
	urls   map[string]struct{}
	loaded bool
}

// NewStarList creates a StarList over an already-opened database. The
// bookmarks table is created on first load.
func NewStarList(db *sql.DB) *StarList {
	return &StarList{db: db, urls: make(map[string]struct{})}
}

// BlockTillLoaded loads the bookmark set if it hasn't been loaded yet.
// Safe to call repeatedly; only the first call does work.
func (l *StarList) BlockTillLoaded(ctx context.Context) {
	l.once.Do(func() {
		if err := l.load(ctx); err != nil {
			// A failed load behaves as an empty bookmark set. The
			// engine treats unbookmarked as the default disposition.
			return
		}
		l.mu.Lock()
		l.loaded = true
		l.mu.Unlock()
	})
}

func (l *StarList) load(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bookmarks (
			url        TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create bookmarks table: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, "SELECT url FROM bookmarks")
	if err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	defer rows.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return err
		}
		l.urls[url] = struct{}{}
	}
	return rows.Err()
}

// IsBookmarked reports whether the URL is in the bookmark set.
func (l *StarList) IsBookmarked(url string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.urls[url]
	return ok
}

// Star adds a URL to the bookmark set.
func (l *StarList) Star(ctx context.Context, url, title string) error {
	l.BlockTillLoaded(ctx)
	if _, err := l.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO bookmarks (url, title) VALUES (?, ?)",
		url, title); err != nil {
		return fmt.Errorf("star url: %w", err)
	}
	l.mu.Lock()
	l.urls[url] = struct{}{}
	l.mu.Unlock()
	return nil
}

// Unstar removes a URL from the bookmark set.
func (l *StarList) Unstar(ctx context.Context, url string) error {
	l.BlockTillLoaded(ctx)
	if _, err := l.db.ExecContext(ctx,
		"DELETE FROM bookmarks WHERE url = ?", url); err != nil {
		return fmt.Errorf("unstar url: %w", err)
	}
	l.mu.Lock()
	delete(l.urls, url)
	l.mu.Unlock()
	return nil
}
