package storage

import "database/sql"

// Timestamps are stored as microseconds since the Unix epoch so that
// range scans and exact-time lookups are plain integer comparisons.
// last_visit is NULL when no visit rows reference the URL.

// migrateMainV001 creates the main history schema: URL and visit
// tables, per-visit source annotations, segment usage, and the meta
// key/value table that holds the early-expiration watermark.
func migrateMainV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS urls (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			url         TEXT NOT NULL UNIQUE,
			title       TEXT NOT NULL DEFAULT '',
			visit_count INTEGER NOT NULL DEFAULT 0,
			typed_count INTEGER NOT NULL DEFAULT 0,
			last_visit  INTEGER,
			hidden      BOOLEAN NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS visits (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			url_id          INTEGER NOT NULL,
			visit_time      INTEGER NOT NULL,
			referring_visit INTEGER NOT NULL DEFAULT 0,
			transition      INTEGER NOT NULL DEFAULT 0,
			segment_id      INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS visit_source (
			visit_id INTEGER PRIMARY KEY,
			source   INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS segment_usage (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			url_id     INTEGER NOT NULL,
			time_slot  INTEGER NOT NULL DEFAULT 0,
			visit_count INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_visits_time       ON visits(visit_time)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_url        ON visits(url_id)`,
		`CREATE INDEX IF NOT EXISTS idx_urls_last_visit   ON urls(last_visit)`,
		`CREATE INDEX IF NOT EXISTS idx_segment_usage_url ON segment_usage(url_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateArchiveV001 creates the reduced archived-history schema. The
// archive never stores segments, favicons, or the meta watermark, and
// archived visits never reference each other.
func migrateArchiveV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS urls (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			url         TEXT NOT NULL UNIQUE,
			title       TEXT NOT NULL DEFAULT '',
			visit_count INTEGER NOT NULL DEFAULT 0,
			typed_count INTEGER NOT NULL DEFAULT 0,
			last_visit  INTEGER,
			hidden      BOOLEAN NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS visits (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			url_id          INTEGER NOT NULL,
			visit_time      INTEGER NOT NULL,
			referring_visit INTEGER NOT NULL DEFAULT 0,
			transition      INTEGER NOT NULL DEFAULT 0,
			segment_id      INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS visit_source (
			visit_id INTEGER PRIMARY KEY,
			source   INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_visits_time ON visits(visit_time)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_url  ON visits(url_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateIconV001 creates the favicon/thumbnail schema.
func migrateIconV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS favicons (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			icon_url  TEXT NOT NULL,
			icon_type INTEGER NOT NULL DEFAULT 1,
			UNIQUE(icon_url, icon_type)
		)`,

		`CREATE TABLE IF NOT EXISTS icon_mapping (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			page_url TEXT NOT NULL,
			icon_id  INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS thumbnails (
			url_id     INTEGER PRIMARY KEY,
			data       BLOB,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_icon_mapping_page ON icon_mapping(page_url)`,
		`CREATE INDEX IF NOT EXISTS idx_icon_mapping_icon ON icon_mapping(icon_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
