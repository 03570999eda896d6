package bookmark

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStarList(t *testing.T) (*StarList, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStarList(db), db
}

func TestStarList_StarUnstar(t *testing.T) {
	list, _ := openTestStarList(t)
	ctx := context.Background()

	assert.False(t, list.IsBookmarked("https://example.com/"))

	require.NoError(t, list.Star(ctx, "https://example.com/", "Example"))
	assert.True(t, list.IsBookmarked("https://example.com/"))

	require.NoError(t, list.Unstar(ctx, "https://example.com/"))
	assert.False(t, list.IsBookmarked("https://example.com/"))
}

func TestStarList_StarIsIdempotent(t *testing.T) {
	list, db := openTestStarList(t)
	ctx := context.Background()

	require.NoError(t, list.Star(ctx, "https://example.com/", "Example"))
	require.NoError(t, list.Star(ctx, "https://example.com/", "Example again"))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM bookmarks").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStarList_LoadsPersistedSet(t *testing.T) {
	list, db := openTestStarList(t)
	ctx := context.Background()
	require.NoError(t, list.Star(ctx, "https://example.com/", "Example"))

	// A fresh list over the same database sees the persisted set after
	// loading. Before the load nothing is bookmarked.
	fresh := NewStarList(db)
	assert.False(t, fresh.IsBookmarked("https://example.com/"))

	fresh.BlockTillLoaded(ctx)
	assert.True(t, fresh.IsBookmarked("https://example.com/"))
	assert.False(t, fresh.IsBookmarked("https://other.example.com/"))
}

func TestStarList_BlockTillLoadedOnce(t *testing.T) {
	list, db := openTestStarList(t)
	ctx := context.Background()

	list.BlockTillLoaded(ctx)

	// Rows added behind the list's back are not picked up; the set is
	// loaded exactly once.
	_, err := db.Exec("INSERT INTO bookmarks (url) VALUES ('https://sneaky.example.com/')")
	require.NoError(t, err)

	list.BlockTillLoaded(ctx)
	assert.False(t, list.IsBookmarked("https://sneaky.example.com/"))
}

func TestStarList_LoadFailureActsEmpty(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.Close()

	list := NewStarList(db)
	list.BlockTillLoaded(context.Background())
	assert.False(t, list.IsBookmarked("https://example.com/"))
}
