package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runnerr0/attic/internal/bookmark"
	"github.com/runnerr0/attic/internal/config"
	"github.com/runnerr0/attic/internal/expire"
	"github.com/runnerr0/attic/internal/metrics"
	"github.com/runnerr0/attic/internal/notify"
	"github.com/runnerr0/attic/internal/storage"
)

// storeEnv bundles the three opened databases and the stores over them.
type storeEnv struct {
	Config    *config.Config
	Main      *storage.SQLStore
	Archive   *storage.SQLStore
	Icons     *storage.SQLIconStore
	Bookmarks *bookmark.StarList

	dbs []*sql.DB
}

// loadConfig loads the config named by --config, or the default path.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		return config.Load(globals.Config)
	}
	return config.LoadOrCreate()
}

// openStores opens and migrates the main, archive, and icon databases
// and wires the stores over them.
func openStores(globals *GlobalFlags) (*storeEnv, error) {
	cfg, err := loadConfig(globals)
	if err != nil {
		return nil, err
	}

	env := &storeEnv{Config: cfg}

	mainPath, err := cfg.MainDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(mainPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	mainDB, err := openDB(mainPath, storage.NewMainMigrationRunner)
	if err != nil {
		return nil, err
	}
	env.dbs = append(env.dbs, mainDB)

	archivePath, err := cfg.ArchiveDBPath()
	if err != nil {
		env.Close()
		return nil, err
	}
	archiveDB, err := openDB(archivePath, storage.NewArchiveMigrationRunner)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.dbs = append(env.dbs, archiveDB)

	iconPath, err := cfg.IconDBPath()
	if err != nil {
		env.Close()
		return nil, err
	}
	iconDB, err := openDB(iconPath, storage.NewIconMigrationRunner)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.dbs = append(env.dbs, iconDB)

	if env.Main, err = storage.NewMainStore(mainDB); err != nil {
		env.Close()
		return nil, fmt.Errorf("create main store: %w", err)
	}
	if env.Archive, err = storage.NewArchiveStore(archiveDB); err != nil {
		env.Close()
		return nil, fmt.Errorf("create archive store: %w", err)
	}
	if env.Icons, err = storage.NewIconStore(iconDB); err != nil {
		env.Close()
		return nil, fmt.Errorf("create icon store: %w", err)
	}
	env.Bookmarks = bookmark.NewStarList(mainDB)

	return env, nil
}

func openDB(path string, runner func(*sql.DB) *storage.MigrationRunner) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := runner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations for %s: %w", path, err)
	}
	return db, nil
}

// Close releases stores and closes the underlying databases.
func (e *storeEnv) Close() {
	if e.Main != nil {
		e.Main.Close()
	}
	if e.Archive != nil {
		e.Archive.Close()
	}
	if e.Icons != nil {
		e.Icons.Close()
	}
	for _, db := range e.dbs {
		db.Close()
	}
}

// newEngine wires an expiration engine over the env's stores.
func (e *storeEnv) newEngine(log *slog.Logger, sink notify.Sink, m *metrics.Set) *expire.Engine {
	return expire.NewEngine(expire.Options{
		Main:      e.Main,
		Archive:   e.Archive,
		Icons:     e.Icons,
		Bookmarks: e.Bookmarks,
		Sink:      sink,
		Log:       log,
		Metrics:   m,
	})
}

// ensureEnv opens the default stores unless a test injected one.
func ensureEnv(env *storeEnv, globals *GlobalFlags) (*storeEnv, bool, error) {
	if env != nil {
		return env, false, nil
	}
	opened, err := openStores(globals)
	if err != nil {
		return nil, false, err
	}
	return opened, true, nil
}

// parseDuration parses a human-friendly duration string like "90d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// parseTimeFlag parses an RFC 3339 time flag, returning the zero time
// for an empty string.
func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339, e.g. 2026-01-02T15:04:05Z)", s)
	}
	return t, nil
}

// newLogger builds the CLI logger honoring --verbose.
func newLogger(globals *GlobalFlags) *slog.Logger {
	level := slog.LevelInfo
	if globals != nil && globals.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
