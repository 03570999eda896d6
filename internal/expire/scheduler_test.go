package expire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/attic/internal/storage"
)

func TestScheduler_ArchivesBeyondRetention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The engine clock is pinned; pin the scheduler to the same instant
	// so the retention cutoff is deterministic.
	old := env.now.Add(-200 * 24 * time.Hour)
	row := storage.URLRow{URL: "https://stale.example.com/", VisitCount: 1, TypedCount: 1, LastVisit: old}
	_, err := env.main.AddURL(ctx, &row)
	require.NoError(t, err)
	v := storage.VisitRow{URLID: row.ID, VisitTime: old, Transition: storage.TransitionTyped}
	_, err = env.main.AddVisit(ctx, &v, storage.SourceBrowsed)
	require.NoError(t, err)

	s := NewScheduler(SchedulerOptions{
		Engine:    env.engine,
		Retention: 90 * 24 * time.Hour,
		FastDelay: time.Millisecond,
		SlowDelay: 5 * time.Millisecond,
		BatchSize: 4,
	})
	s.now = func() time.Time { return env.now }

	s.Start(ctx)
	defer s.Stop()

	assert.Eventually(t, func() bool {
		_, err := env.archive.GetRowForURL(ctx, row.URL)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond, "old typed visit should reach the archive")
}

func TestScheduler_StopCancelsPendingIteration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := env.now.Add(-200 * 24 * time.Hour)
	row := storage.URLRow{URL: "https://stale.example.com/", VisitCount: 1, LastVisit: old}
	_, err := env.main.AddURL(ctx, &row)
	require.NoError(t, err)
	v := storage.VisitRow{URLID: row.ID, VisitTime: old, Transition: storage.TransitionTyped}
	_, err = env.main.AddVisit(ctx, &v, storage.SourceBrowsed)
	require.NoError(t, err)

	s := NewScheduler(SchedulerOptions{
		Engine:    env.engine,
		Retention: 90 * 24 * time.Hour,
		FastDelay: time.Hour,
	})
	s.now = func() time.Time { return env.now }

	s.Start(ctx)
	s.Stop()

	// The armed iteration was an hour out and Stop bumped the epoch;
	// nothing runs, nothing moves.
	time.Sleep(20 * time.Millisecond)
	_, err = env.archive.GetRowForURL(ctx, row.URL)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = env.main.GetRowForURL(ctx, row.URL)
	assert.NoError(t, err)
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	s := NewScheduler(SchedulerOptions{
		Engine:    env.engine,
		FastDelay: time.Hour,
	})
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestSchedulerOptions_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerOptions{})
	assert.Equal(t, DefaultFastDelay, s.fastDelay)
	assert.Equal(t, DefaultSlowDelay, s.slowDelay)
	assert.Equal(t, DefaultBatchSize, s.batchSize)
}

func TestRegisteredReaders(t *testing.T) {
	readers := registeredReaders()
	require.Len(t, readers, 2)
	assert.Equal(t, ReadAllVisits, readers[0])
	assert.Equal(t, ReadAutoSubframe, readers[1])
}
