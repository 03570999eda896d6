package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// metaEarlyExpiration is the meta-table key holding the auto-subframe
// reader's advancing watermark.
const metaEarlyExpiration = "early_expiration_threshold"

// HistoryStore defines the operations the expiration engine needs from
// a history database. Both the main store and the archived store
// implement the same shape; the archive simply never has segment or
// watermark rows.
type HistoryStore interface {
	GetURLRow(ctx context.Context, id URLID) (*URLRow, error)
	GetRowForURL(ctx context.Context, url string) (*URLRow, error)
	AddURL(ctx context.Context, row *URLRow) (URLID, error)
	UpdateURLRow(ctx context.Context, id URLID, row *URLRow) error
	DeleteURLRow(ctx context.Context, id URLID) error

	GetVisitsForURL(ctx context.Context, id URLID) ([]VisitRow, error)
	GetAllVisitsInRange(ctx context.Context, begin, end time.Time, max int) ([]VisitRow, error)
	GetVisitsInRangeForTransition(ctx context.Context, begin, end time.Time, max int, transition Transition) ([]VisitRow, error)
	GetVisitsForTimes(ctx context.Context, times []time.Time) ([]VisitRow, error)
	AddVisit(ctx context.Context, row *VisitRow, source VisitSource) (VisitID, error)
	DeleteVisit(ctx context.Context, row VisitRow) error
	GetMostRecentVisitForURL(ctx context.Context, id URLID) (*VisitRow, error)
	GetVisitsSource(ctx context.Context, visits []VisitRow) (map[VisitID]VisitSource, error)

	DeleteSegmentForURL(ctx context.Context, id URLID) error

	GetEarlyExpirationThreshold(ctx context.Context) (time.Time, error)
	UpdateEarlyExpirationThreshold(ctx context.Context, t time.Time) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLStore implements HistoryStore backed by a SQLite database.
type SQLStore struct {
	db      *sql.DB
	archive bool

	// Prepared statements for the hot paths.
	getURL       *sql.Stmt
	getURLByText *sql.Stmt
	insertURL    *sql.Stmt
	updateURL    *sql.Stmt
	deleteURL    *sql.Stmt
	insertVisit  *sql.Stmt
	deleteVisit  *sql.Stmt
}

// NewMainStore creates a SQLStore over an already-migrated main
// history database.
func NewMainStore(db *sql.DB) (*SQLStore, error) {
	return newSQLStore(db, false)
}

// NewArchiveStore creates a SQLStore over an already-migrated archived
// history database.
func NewArchiveStore(db *sql.DB) (*SQLStore, error) {
	return newSQLStore(db, true)
}

func newSQLStore(db *sql.DB, archive bool) (*SQLStore, error) {
	s := &SQLStore{db: db, archive: archive}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLStore) prepareStatements() error {
	var err error

	s.getURL, err = s.db.Prepare(`
		SELECT id, url, title, visit_count, typed_count, last_visit, hidden
		FROM urls WHERE id = ?
	`)
	if err != nil {
		return err
	}

	s.getURLByText, err = s.db.Prepare(`
		SELECT id, url, title, visit_count, typed_count, last_visit, hidden
		FROM urls WHERE url = ?
	`)
	if err != nil {
		return err
	}

	s.insertURL, err = s.db.Prepare(`
		INSERT INTO urls (url, title, visit_count, typed_count, last_visit, hidden)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.updateURL, err = s.db.Prepare(`
		UPDATE urls SET url = ?, title = ?, visit_count = ?, typed_count = ?,
			last_visit = ?, hidden = ?
		WHERE id = ?
	`)
	if err != nil {
		return err
	}

	s.deleteURL, err = s.db.Prepare(`DELETE FROM urls WHERE id = ?`)
	if err != nil {
		return err
	}

	s.insertVisit, err = s.db.Prepare(`
		INSERT INTO visits (url_id, visit_time, referring_visit, transition, segment_id)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.deleteVisit, err = s.db.Prepare(`DELETE FROM visits WHERE id = ?`)
	if err != nil {
		return err
	}

	return nil
}

// toMicros converts a time to the stored microsecond representation.
// The zero time maps to SQL NULL for last_visit columns.
func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func scanURLRow(scan func(dest ...any) error) (*URLRow, error) {
	var row URLRow
	var lastVisit sql.NullInt64
	if err := scan(&row.ID, &row.URL, &row.Title, &row.VisitCount,
		&row.TypedCount, &lastVisit, &row.Hidden); err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		row.LastVisit = fromMicros(lastVisit.Int64)
	}
	return &row, nil
}

// GetURLRow retrieves a URL row by id.
func (s *SQLStore) GetURLRow(ctx context.Context, id URLID) (*URLRow, error) {
	row, err := scanURLRow(s.getURL.QueryRowContext(ctx, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get url row: %w", err)
	}
	return row, nil
}

// GetRowForURL retrieves a URL row by its URL string.
func (s *SQLStore) GetRowForURL(ctx context.Context, url string) (*URLRow, error) {
	row, err := scanURLRow(s.getURLByText.QueryRowContext(ctx, url).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get row for url: %w", err)
	}
	return row, nil
}

// AddURL inserts a URL row and returns its new id. The row's ID field
// is also populated.
func (s *SQLStore) AddURL(ctx context.Context, row *URLRow) (URLID, error) {
	var lastVisit any
	if !row.LastVisit.IsZero() {
		lastVisit = toMicros(row.LastVisit)
	}
	res, err := s.insertURL.ExecContext(ctx,
		row.URL, row.Title, row.VisitCount, row.TypedCount, lastVisit, row.Hidden)
	if err != nil {
		return 0, fmt.Errorf("insert url: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	row.ID = URLID(id)
	return row.ID, nil
}

// UpdateURLRow rewrites all mutable fields of a URL row.
func (s *SQLStore) UpdateURLRow(ctx context.Context, id URLID, row *URLRow) error {
	var lastVisit any
	if !row.LastVisit.IsZero() {
		lastVisit = toMicros(row.LastVisit)
	}
	res, err := s.updateURL.ExecContext(ctx,
		row.URL, row.Title, row.VisitCount, row.TypedCount, lastVisit, row.Hidden, id)
	if err != nil {
		return fmt.Errorf("update url row: %w", err)
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

// DeleteURLRow removes a URL row by id.
func (s *SQLStore) DeleteURLRow(ctx context.Context, id URLID) error {
	if _, err := s.deleteURL.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("delete url row: %w", err)
	}
	return nil
}

// GetVisitsForURL returns every visit referencing the given URL,
// oldest first.
func (s *SQLStore) GetVisitsForURL(ctx context.Context, id URLID) ([]VisitRow, error) {
	return s.scanVisits(ctx, `
		SELECT id, url_id, visit_time, referring_visit, transition, segment_id
		FROM visits WHERE url_id = ? ORDER BY visit_time ASC
	`, id)
}

// GetAllVisitsInRange returns visits with visit_time in [begin, end),
// capped at max when max > 0. A zero end means no upper bound.
func (s *SQLStore) GetAllVisitsInRange(ctx context.Context, begin, end time.Time, max int) ([]VisitRow, error) {
	endMicros := int64(1<<62 - 1)
	if !end.IsZero() {
		endMicros = toMicros(end)
	}
	if max <= 0 {
		max = -1 // SQLite: no limit
	}
	return s.scanVisits(ctx, `
		SELECT id, url_id, visit_time, referring_visit, transition, segment_id
		FROM visits WHERE visit_time >= ? AND visit_time < ?
		ORDER BY visit_time ASC LIMIT ?
	`, toMicros(begin), endMicros, max)
}

// GetVisitsInRangeForTransition returns visits in [begin, end) whose
// core transition matches exactly, capped at max when max > 0.
func (s *SQLStore) GetVisitsInRangeForTransition(ctx context.Context, begin, end time.Time, max int, transition Transition) ([]VisitRow, error) {
	endMicros := int64(1<<62 - 1)
	if !end.IsZero() {
		endMicros = toMicros(end)
	}
	if max <= 0 {
		max = -1
	}
	return s.scanVisits(ctx, `
		SELECT id, url_id, visit_time, referring_visit, transition, segment_id
		FROM visits WHERE visit_time >= ? AND visit_time < ?
			AND (transition & ?) = ?
		ORDER BY visit_time ASC LIMIT ?
	`, toMicros(begin), endMicros, int64(transitionCoreMask), int64(transition.Core()), max)
}

// GetVisitsForTimes returns every visit whose visit_time exactly
// matches one of the given timestamps.
func (s *SQLStore) GetVisitsForTimes(ctx context.Context, times []time.Time) ([]VisitRow, error) {
	if len(times) == 0 {
		return []VisitRow{}, nil
	}
	placeholders := make([]string, len(times))
	args := make([]any, len(times))
	for i, t := range times {
		placeholders[i] = "?"
		args[i] = toMicros(t)
	}
	query := fmt.Sprintf(`
		SELECT id, url_id, visit_time, referring_visit, transition, segment_id
		FROM visits WHERE visit_time IN (%s)
		ORDER BY visit_time DESC
	`, strings.Join(placeholders, ","))
	return s.scanVisits(ctx, query, args...)
}

// AddVisit inserts a visit row and returns its new id. A non-browsed
// source is recorded in the visit_source side table; browsed visits
// carry no annotation.
func (s *SQLStore) AddVisit(ctx context.Context, row *VisitRow, source VisitSource) (VisitID, error) {
	res, err := s.insertVisit.ExecContext(ctx,
		row.URLID, toMicros(row.VisitTime), row.ReferringVisit, int64(row.Transition), row.SegmentID)
	if err != nil {
		return 0, fmt.Errorf("insert visit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	row.ID = VisitID(id)

	if source != SourceBrowsed {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR REPLACE INTO visit_source (visit_id, source) VALUES (?, ?)",
			row.ID, int(source)); err != nil {
			return 0, fmt.Errorf("insert visit source: %w", err)
		}
	}
	return row.ID, nil
}

// DeleteVisit removes a visit row and its source annotation.
func (s *SQLStore) DeleteVisit(ctx context.Context, row VisitRow) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM visit_source WHERE visit_id = ?", row.ID); err != nil {
		return fmt.Errorf("delete visit source: %w", err)
	}
	if _, err := s.deleteVisit.ExecContext(ctx, row.ID); err != nil {
		return fmt.Errorf("delete visit: %w", err)
	}
	return nil
}

// GetMostRecentVisitForURL returns the newest remaining visit for a
// URL, or ErrNotFound when none remain.
func (s *SQLStore) GetMostRecentVisitForURL(ctx context.Context, id URLID) (*VisitRow, error) {
	visits, err := s.scanVisits(ctx, `
		SELECT id, url_id, visit_time, referring_visit, transition, segment_id
		FROM visits WHERE url_id = ? ORDER BY visit_time DESC LIMIT 1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(visits) == 0 {
		return nil, ErrNotFound
	}
	v := visits[0]
	return &v, nil
}

// GetVisitsSource returns the source annotation for each of the given
// visits. Visits without an annotation are omitted (they were browsed
// locally).
func (s *SQLStore) GetVisitsSource(ctx context.Context, visits []VisitRow) (map[VisitID]VisitSource, error) {
	sources := make(map[VisitID]VisitSource)
	if len(visits) == 0 {
		return sources, nil
	}
	placeholders := make([]string, len(visits))
	args := make([]any, len(visits))
	for i, v := range visits {
		placeholders[i] = "?"
		args[i] = v.ID
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT visit_id, source FROM visit_source WHERE visit_id IN (%s)",
		strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("query visit sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id VisitID
		var source int
		if err := rows.Scan(&id, &source); err != nil {
			return nil, fmt.Errorf("scan visit source: %w", err)
		}
		sources[id] = VisitSource(source)
	}
	return sources, rows.Err()
}

// DeleteSegmentForURL removes the segment-usage rows for a URL. The
// archive store has no segment table, so this is a no-op there.
func (s *SQLStore) DeleteSegmentForURL(ctx context.Context, id URLID) error {
	if s.archive {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM segment_usage WHERE url_id = ?", id); err != nil {
		return fmt.Errorf("delete segment usage: %w", err)
	}
	return nil
}

// GetEarlyExpirationThreshold reads the auto-subframe expiration
// watermark. A zero time means the watermark has never been set.
func (s *SQLStore) GetEarlyExpirationThreshold(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", metaEarlyExpiration).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get early expiration threshold: %w", err)
	}
	var us int64
	if _, err := fmt.Sscanf(value, "%d", &us); err != nil {
		return time.Time{}, nil
	}
	return fromMicros(us), nil
}

// UpdateEarlyExpirationThreshold persists the auto-subframe expiration
// watermark.
func (s *SQLStore) UpdateEarlyExpirationThreshold(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, metaEarlyExpiration, fmt.Sprintf("%d", toMicros(t)))
	if err != nil {
		return fmt.Errorf("update early expiration threshold: %w", err)
	}
	return nil
}

// scanVisits executes a query and scans results into VisitRow slices.
func (s *SQLStore) scanVisits(ctx context.Context, query string, args ...any) ([]VisitRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var visits []VisitRow
	for rows.Next() {
		var v VisitRow
		var visitTime, transition int64
		if err := rows.Scan(&v.ID, &v.URLID, &visitTime,
			&v.ReferringVisit, &transition, &v.SegmentID); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.VisitTime = fromMicros(visitTime)
		v.Transition = Transition(transition)
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Return empty slice rather than nil
	if visits == nil {
		visits = []VisitRow{}
	}
	return visits, nil
}

// Stats returns aggregate statistics about the database.
func (s *SQLStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM urls").Scan(&stats.TotalURLs); err != nil {
		return nil, fmt.Errorf("count urls: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM visits").Scan(&stats.TotalVisits); err != nil {
		return nil, fmt.Errorf("count visits: %w", err)
	}

	if stats.TotalVisits > 0 {
		var oldest, newest int64
		err := s.db.QueryRowContext(ctx,
			"SELECT MIN(visit_time), MAX(visit_time) FROM visits").Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("visit time range: %w", err)
		}
		stats.OldestVisit = fromMicros(oldest)
		stats.NewestVisit = fromMicros(newest)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	return stats, nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed — that is the caller's responsibility.
func (s *SQLStore) Close() error {
	stmts := []*sql.Stmt{
		s.getURL, s.getURLByText, s.insertURL, s.updateURL,
		s.deleteURL, s.insertVisit, s.deleteVisit,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
