package expire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/attic/internal/storage"
)

// addSubframeVisit inserts one auto-subframe visit with its own URL row.
func (env *testEnv) addSubframeVisit(t *testing.T, url string, at time.Time) storage.VisitRow {
	t.Helper()
	ctx := context.Background()

	row := storage.URLRow{URL: url, VisitCount: 1, LastVisit: at, Hidden: true}
	_, err := env.main.AddURL(ctx, &row)
	require.NoError(t, err)

	v := storage.VisitRow{URLID: row.ID, VisitTime: at, Transition: storage.TransitionAutoSubframe}
	_, err = env.main.AddVisit(ctx, &v, storage.SourceBrowsed)
	require.NoError(t, err)
	return v
}

func TestAutoSubframeReader_PurgesAheadOfCutoff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cutoff := env.now.Add(-7 * 24 * time.Hour)

	// One subframe visit just past the cutoff, inside the advance
	// window, and one toplevel visit in the same spot that the subframe
	// reader must leave alone.
	v := env.addSubframeVisit(t, "https://frames.example.com/ad", cutoff.Add(24*time.Hour))

	row := storage.URLRow{URL: "https://frames.example.com/", VisitCount: 1,
		LastVisit: cutoff.Add(24 * time.Hour)}
	_, err := env.main.AddURL(ctx, &row)
	require.NoError(t, err)
	top := storage.VisitRow{URLID: row.ID, VisitTime: cutoff.Add(24 * time.Hour),
		Transition: storage.TransitionLink}
	_, err = env.main.AddVisit(ctx, &top, storage.SourceBrowsed)
	require.NoError(t, err)

	more := env.engine.ArchiveSomeOldHistory(ctx, cutoff, ReadAutoSubframe, DefaultBatchSize)
	assert.False(t, more)

	// The subframe visit is gone; subframes are never archived.
	visits, err := env.main.GetVisitsForURL(ctx, v.URLID)
	require.NoError(t, err)
	assert.Empty(t, visits)
	_, err = env.archive.GetRowForURL(ctx, "https://frames.example.com/ad")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The toplevel visit in the same window is untouched.
	visits, err = env.main.GetVisitsForURL(ctx, row.ID)
	require.NoError(t, err)
	assert.Len(t, visits, 1)
}

func TestAutoSubframeReader_PersistsWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cutoff := env.now.Add(-7 * 24 * time.Hour)
	env.addSubframeVisit(t, "https://frames.example.com/a", cutoff.Add(-time.Hour))

	before, err := env.main.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, before.IsZero())

	env.engine.ArchiveSomeOldHistory(ctx, cutoff, ReadAutoSubframe, DefaultBatchSize)

	// The range was exhausted, so the watermark lands at the advanced
	// end of the scan.
	want := cutoff.Add(time.Microsecond).Add(earlyExpirationAdvance)
	got, err := env.main.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(want))
}

func TestAutoSubframeReader_NeverScansPastNow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A cutoff close enough to now that the advance window would reach
	// into the future.
	cutoff := env.now.Add(-24 * time.Hour)
	env.engine.ArchiveSomeOldHistory(ctx, cutoff, ReadAutoSubframe, DefaultBatchSize)

	got, err := env.main.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(env.now))
}

func TestAutoSubframeReader_FullBatchKeepsWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cutoff := env.now.Add(-7 * 24 * time.Hour)
	for i, url := range []string{
		"https://frames.example.com/a",
		"https://frames.example.com/b",
		"https://frames.example.com/c",
	} {
		env.addSubframeVisit(t, url, cutoff.Add(-time.Duration(i+1)*time.Hour))
	}

	// The batch fills up, so more work may remain and the watermark
	// must not advance yet.
	more := env.engine.ArchiveSomeOldHistory(ctx, cutoff, ReadAutoSubframe, 2)
	assert.True(t, more)

	got, err := env.main.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "watermark must not move on a capped batch")

	// The follow-up pass drains the rest and persists.
	more = env.engine.ArchiveSomeOldHistory(ctx, cutoff, ReadAutoSubframe, 2)
	assert.False(t, more)

	got, err = env.main.GetEarlyExpirationThreshold(ctx)
	require.NoError(t, err)
	assert.False(t, got.IsZero())
}

func TestAutoSubframeReader_SkipsFinishedRanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A subframe visit behind an already-persisted watermark must never
	// be rescanned.
	old := env.now.Add(-30 * 24 * time.Hour)
	v := env.addSubframeVisit(t, "https://frames.example.com/old", old)
	require.NoError(t, env.main.UpdateEarlyExpirationThreshold(ctx, env.now.Add(-time.Hour)))

	env.engine.ArchiveSomeOldHistory(ctx, env.now.Add(-7*24*time.Hour), ReadAutoSubframe, DefaultBatchSize)

	visits, err := env.main.GetVisitsForURL(ctx, v.URLID)
	require.NoError(t, err)
	assert.Len(t, visits, 1, "visit behind the watermark must survive")
}
