package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestMainStore creates a migrated in-memory main history store.
func openTestMainStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMainMigrationRunner(db).Run())

	store, err := NewMainStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// openTestArchiveStore creates a migrated in-memory archive store.
func openTestArchiveStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewArchiveMigrationRunner(db).Run())

	store, err := NewArchiveStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// testTime returns a microsecond-aligned UTC time offset from a fixed
// base, so values round-trip through the stored representation.
func testTime(offset time.Duration) time.Time {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return base.Add(offset)
}

func TestAddURL_GetURLRow_Roundtrip(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	row := &URLRow{
		URL:        "https://example.com/page",
		Title:      "Example",
		VisitCount: 3,
		TypedCount: 1,
		LastVisit:  testTime(0),
	}
	id, err := store.AddURL(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, id, row.ID)

	got, err := store.GetURLRow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", got.URL)
	assert.Equal(t, "Example", got.Title)
	assert.Equal(t, 3, got.VisitCount)
	assert.Equal(t, 1, got.TypedCount)
	assert.True(t, got.LastVisit.Equal(testTime(0)))
	assert.False(t, got.Hidden)
}

func TestGetURLRow_NotFound(t *testing.T) {
	store := openTestMainStore(t)

	_, err := store.GetURLRow(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRowForURL(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	row := &URLRow{URL: "https://example.com/a"}
	_, err := store.AddURL(ctx, row)
	require.NoError(t, err)

	got, err := store.GetRowForURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, row.ID, got.ID)

	_, err = store.GetRowForURL(ctx, "https://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateURLRow_NullLastVisit(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	row := &URLRow{URL: "https://example.com/a", VisitCount: 2, LastVisit: testTime(0)}
	id, err := store.AddURL(ctx, row)
	require.NoError(t, err)

	// Zeroing LastVisit must store NULL and read back as zero.
	row.VisitCount = 0
	row.LastVisit = time.Time{}
	require.NoError(t, store.UpdateURLRow(ctx, id, row))

	got, err := store.GetURLRow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.VisitCount)
	assert.True(t, got.LastVisit.IsZero())
}

func TestUpdateURLRow_Missing(t *testing.T) {
	store := openTestMainStore(t)

	err := store.UpdateURLRow(context.Background(), 42, &URLRow{URL: "https://x.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVisits_RangeQueries(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	id, err := store.AddURL(ctx, &URLRow{URL: "https://example.com"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v := &VisitRow{URLID: id, VisitTime: testTime(time.Duration(i) * time.Hour)}
		_, err := store.AddVisit(ctx, v, SourceBrowsed)
		require.NoError(t, err)
	}

	// Half-open range: [t1, t3) holds visits at t1 and t2.
	visits, err := store.GetAllVisitsInRange(ctx, testTime(time.Hour), testTime(3*time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, visits, 2)

	// Cap applies.
	visits, err = store.GetAllVisitsInRange(ctx, time.Time{}, testTime(10*time.Hour), 3)
	require.NoError(t, err)
	assert.Len(t, visits, 3)

	// Zero end means unbounded.
	visits, err = store.GetAllVisitsInRange(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, visits, 5)
}

func TestVisits_TransitionFilter(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	id, err := store.AddURL(ctx, &URLRow{URL: "https://example.com"})
	require.NoError(t, err)

	_, err = store.AddVisit(ctx, &VisitRow{URLID: id, VisitTime: testTime(0), Transition: TransitionLink}, SourceBrowsed)
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, &VisitRow{URLID: id, VisitTime: testTime(time.Minute),
		Transition: TransitionAutoSubframe | TransitionChainEnd}, SourceBrowsed)
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, &VisitRow{URLID: id, VisitTime: testTime(2 * time.Minute), Transition: TransitionAutoSubframe}, SourceBrowsed)
	require.NoError(t, err)

	// Core-type match must ignore qualifier bits.
	visits, err := store.GetVisitsInRangeForTransition(ctx, time.Time{}, testTime(time.Hour), 0, TransitionAutoSubframe)
	require.NoError(t, err)
	assert.Len(t, visits, 2)
	for _, v := range visits {
		assert.Equal(t, TransitionAutoSubframe, v.Transition.Core())
	}
}

func TestGetVisitsForTimes_ExactMatch(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	id, err := store.AddURL(ctx, &URLRow{URL: "https://example.com"})
	require.NoError(t, err)

	t0 := testTime(0)
	t1 := testTime(time.Hour)
	_, err = store.AddVisit(ctx, &VisitRow{URLID: id, VisitTime: t0}, SourceBrowsed)
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, &VisitRow{URLID: id, VisitTime: t1}, SourceBrowsed)
	require.NoError(t, err)

	visits, err := store.GetVisitsForTimes(ctx, []time.Time{t1})
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.True(t, visits[0].VisitTime.Equal(t1))

	visits, err = store.GetVisitsForTimes(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, visits)
}

func TestDeleteVisit_And_MostRecent(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	id, err := store.AddURL(ctx, &URLRow{URL: "https://example.com"})
	require.NoError(t, err)

	v1 := &VisitRow{URLID: id, VisitTime: testTime(0)}
	v2 := &VisitRow{URLID: id, VisitTime: testTime(time.Hour)}
	_, err = store.AddVisit(ctx, v1, SourceBrowsed)
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, v2, SourceBrowsed)
	require.NoError(t, err)

	recent, err := store.GetMostRecentVisitForURL(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, recent.ID)

	require.NoError(t, store.DeleteVisit(ctx, *v2))
	recent, err = store.GetMostRecentVisitForURL(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, recent.ID)

	require.NoError(t, store.DeleteVisit(ctx, *v1))
	_, err = store.GetMostRecentVisitForURL(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVisitSources(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	id, err := store.AddURL(ctx, &URLRow{URL: "https://example.com"})
	require.NoError(t, err)

	browsed := &VisitRow{URLID: id, VisitTime: testTime(0)}
	synced := &VisitRow{URLID: id, VisitTime: testTime(time.Hour)}
	imported := &VisitRow{URLID: id, VisitTime: testTime(2 * time.Hour)}
	_, err = store.AddVisit(ctx, browsed, SourceBrowsed)
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, synced, SourceSynced)
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, imported, SourceImported)
	require.NoError(t, err)

	sources, err := store.GetVisitsSource(ctx, []VisitRow{*browsed, *synced, *imported})
	require.NoError(t, err)

	// Locally browsed visits carry no annotation.
	assert.Len(t, sources, 2)
	assert.Equal(t, SourceSynced, sources[synced.ID])
	assert.Equal(t, SourceImported, sources[imported.ID])

	// Deleting a visit removes its annotation too.
	require.NoError(t, store.DeleteVisit(ctx, *synced))
	sources, err = store.GetVisitsSource(ctx, []VisitRow{*synced})
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestEarlyExpirationThreshold(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	// Unset reads as zero.
	got, err := store.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	mark := testTime(0)
	require.NoError(t, store.UpdateEarlyExpirationThreshold(ctx, mark))
	got, err = store.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(mark))

	// Updates overwrite.
	later := testTime(48 * time.Hour)
	require.NoError(t, store.UpdateEarlyExpirationThreshold(ctx, later))
	got, err = store.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(later))
}

func TestDeleteSegmentForURL_ArchiveNoop(t *testing.T) {
	main := openTestMainStore(t)
	archive := openTestArchiveStore(t)
	ctx := context.Background()

	// The archive store has no segment table; the call must still be
	// safe.
	require.NoError(t, main.DeleteSegmentForURL(ctx, 1))
	require.NoError(t, archive.DeleteSegmentForURL(ctx, 1))
}

func TestStats(t *testing.T) {
	store := openTestMainStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalURLs)
	assert.Zero(t, stats.TotalVisits)

	id, err := store.AddURL(ctx, &URLRow{URL: "https://example.com"})
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, &VisitRow{URLID: id, VisitTime: testTime(0)}, SourceBrowsed)
	require.NoError(t, err)
	_, err = store.AddVisit(ctx, &VisitRow{URLID: id, VisitTime: testTime(time.Hour)}, SourceBrowsed)
	require.NoError(t, err)

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalURLs)
	assert.EqualValues(t, 2, stats.TotalVisits)
	assert.True(t, stats.OldestVisit.Equal(testTime(0)))
	assert.True(t, stats.NewestVisit.Equal(testTime(time.Hour)))
}

func TestTransitionHelpers(t *testing.T) {
	typedRedirect := TransitionTyped | TransitionServerRedirect
	assert.Equal(t, TransitionTyped, typedRedirect.Core())
	assert.True(t, typedRedirect.IsRedirect())
	assert.False(t, typedRedirect.IsChainEnd())

	linkChainEnd := TransitionLink | TransitionChainEnd
	assert.Equal(t, TransitionLink, linkChainEnd.Core())
	assert.True(t, linkChainEnd.IsChainEnd())
	assert.False(t, linkChainEnd.IsRedirect())
}
