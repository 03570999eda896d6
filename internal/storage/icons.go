package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IconStore defines the favicon/thumbnail operations the expiration
// engine needs. Favicons are reference-counted through icon_mapping
// rows; a favicon with no mapping is orphaned.
type IconStore interface {
	AddFavicon(ctx context.Context, iconURL string, iconType int) (FaviconID, error)
	HasMappingFor(ctx context.Context, id FaviconID) (bool, error)
	GetFaviconHeader(ctx context.Context, id FaviconID) (iconURL string, iconType int, err error)
	DeleteFavicon(ctx context.Context, id FaviconID) error

	AddIconMapping(ctx context.Context, pageURL string, id FaviconID) (int64, error)
	GetIconMappingsForPageURL(ctx context.Context, pageURL string) ([]IconMapping, error)
	DeleteIconMappings(ctx context.Context, pageURL string) error

	SetThumbnail(ctx context.Context, urlID URLID, data []byte) error
	HasThumbnail(ctx context.Context, urlID URLID) (bool, error)
	DeleteThumbnail(ctx context.Context, urlID URLID) error

	Close() error
}

// SQLIconStore implements IconStore backed by a SQLite database.
type SQLIconStore struct {
	db *sql.DB

	getMappings   *sql.Stmt
	deleteMapping *sql.Stmt
}

// NewIconStore creates a SQLIconStore over an already-migrated icon
// database.
func NewIconStore(db *sql.DB) (*SQLIconStore, error) {
	s := &SQLIconStore{db: db}

	var err error
	s.getMappings, err = s.db.Prepare(`
		SELECT id, page_url, icon_id FROM icon_mapping WHERE page_url = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	s.deleteMapping, err = s.db.Prepare(`DELETE FROM icon_mapping WHERE page_url = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// AddFavicon inserts a favicon and returns its id. Re-adding the same
// icon URL and type returns the existing id.
func (s *SQLIconStore) AddFavicon(ctx context.Context, iconURL string, iconType int) (FaviconID, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO favicons (icon_url, icon_type) VALUES (?, ?)",
		iconURL, iconType)
	if err != nil {
		return 0, fmt.Errorf("insert favicon: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		return FaviconID(id), nil
	}

	var id FaviconID
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM favicons WHERE icon_url = ? AND icon_type = ?",
		iconURL, iconType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup favicon: %w", err)
	}
	return id, nil
}

// HasMappingFor reports whether any page URL still maps to the favicon.
func (s *SQLIconStore) HasMappingFor(ctx context.Context, id FaviconID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM icon_mapping WHERE icon_id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count icon mappings: %w", err)
	}
	return count > 0, nil
}

// GetFaviconHeader returns the icon URL and type for a favicon id.
func (s *SQLIconStore) GetFaviconHeader(ctx context.Context, id FaviconID) (string, int, error) {
	var iconURL string
	var iconType int
	err := s.db.QueryRowContext(ctx,
		"SELECT icon_url, icon_type FROM favicons WHERE id = ?", id).Scan(&iconURL, &iconType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("get favicon header: %w", err)
	}
	return iconURL, iconType, nil
}

// DeleteFavicon removes a favicon row.
func (s *SQLIconStore) DeleteFavicon(ctx context.Context, id FaviconID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM favicons WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete favicon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddIconMapping links a page URL to a favicon.
func (s *SQLIconStore) AddIconMapping(ctx context.Context, pageURL string, id FaviconID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO icon_mapping (page_url, icon_id) VALUES (?, ?)", pageURL, id)
	if err != nil {
		return 0, fmt.Errorf("insert icon mapping: %w", err)
	}
	return res.LastInsertId()
}

// GetIconMappingsForPageURL returns every favicon mapping for a page.
func (s *SQLIconStore) GetIconMappingsForPageURL(ctx context.Context, pageURL string) ([]IconMapping, error) {
	rows, err := s.getMappings.QueryContext(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("query icon mappings: %w", err)
	}
	defer rows.Close()

	var mappings []IconMapping
	for rows.Next() {
		var m IconMapping
		if err := rows.Scan(&m.ID, &m.PageURL, &m.IconID); err != nil {
			return nil, fmt.Errorf("scan icon mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// DeleteIconMappings removes every favicon mapping for a page.
func (s *SQLIconStore) DeleteIconMappings(ctx context.Context, pageURL string) error {
	if _, err := s.deleteMapping.ExecContext(ctx, pageURL); err != nil {
		return fmt.Errorf("delete icon mappings: %w", err)
	}
	return nil
}

// SetThumbnail stores thumbnail bytes for a URL row.
func (s *SQLIconStore) SetThumbnail(ctx context.Context, urlID URLID, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thumbnails (url_id, data) VALUES (?, ?)
		ON CONFLICT(url_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`, urlID, data)
	if err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}
	return nil
}

// HasThumbnail reports whether a thumbnail is stored for the URL row.
func (s *SQLIconStore) HasThumbnail(ctx context.Context, urlID URLID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM thumbnails WHERE url_id = ?", urlID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count thumbnails: %w", err)
	}
	return count > 0, nil
}

// DeleteThumbnail removes the thumbnail for a URL row.
func (s *SQLIconStore) DeleteThumbnail(ctx context.Context, urlID URLID) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM thumbnails WHERE url_id = ?", urlID); err != nil {
		return fmt.Errorf("delete thumbnail: %w", err)
	}
	return nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed — that is the caller's responsibility.
func (s *SQLIconStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getMappings, s.deleteMapping} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
