package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/attic/internal/bookmark"
	"github.com/runnerr0/attic/internal/config"
	"github.com/runnerr0/attic/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// setupTestEnv builds a storeEnv over three in-memory databases for
// injecting into commands.
func setupTestEnv(t *testing.T) *storeEnv {
	t.Helper()

	open := func(migrate func(*sql.DB) *storage.MigrationRunner) *sql.DB {
		db, err := sql.Open("sqlite3", ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, migrate(db).Run())
		return db
	}

	mainDB := open(storage.NewMainMigrationRunner)
	archiveDB := open(storage.NewArchiveMigrationRunner)
	iconDB := open(storage.NewIconMigrationRunner)

	env := &storeEnv{Config: config.DefaultConfig()}

	var err error
	env.Main, err = storage.NewMainStore(mainDB)
	require.NoError(t, err)
	env.Archive, err = storage.NewArchiveStore(archiveDB)
	require.NoError(t, err)
	env.Icons, err = storage.NewIconStore(iconDB)
	require.NoError(t, err)
	env.Bookmarks = bookmark.NewStarList(mainDB)

	return env
}

// seedVisit inserts one URL with one visit at the given time.
func seedVisit(t *testing.T, env *storeEnv, url string, at time.Time, transition storage.Transition) storage.URLRow {
	t.Helper()
	ctx := context.Background()

	row := storage.URLRow{URL: url, VisitCount: 1, LastVisit: at}
	_, err := env.Main.AddURL(ctx, &row)
	require.NoError(t, err)

	v := storage.VisitRow{URLID: row.ID, VisitTime: at, Transition: transition}
	_, err = env.Main.AddVisit(ctx, &v, storage.SourceBrowsed)
	require.NoError(t, err)
	return row
}
