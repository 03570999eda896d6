package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand — show database statistics for both stores.
type StatusCommand struct {
	globals *GlobalFlags
	version string
	env     *storeEnv // injectable for testing
}

// DeleteCommand — delete URLs and all their visits from the main store.
type DeleteCommand struct {
	URLs []string `long:"url" description:"URL to delete (repeatable, required)"`

	globals *GlobalFlags
	version string
	env     *storeEnv
}

// ExpireCommand — delete all visits in a time range.
type ExpireCommand struct {
	Begin string   `long:"begin" description:"Range start, RFC 3339 (default: beginning of time)"`
	End   string   `long:"end" description:"Range end, RFC 3339 (default: now)"`
	URLs  []string `long:"url" description:"Restrict to these URLs (repeatable)"`

	globals *GlobalFlags
	version string
	env     *storeEnv
}

// ArchiveCommand — move history older than a cutoff into the archive.
type ArchiveCommand struct {
	Before    string `long:"before" description:"Archive everything at or before this RFC 3339 time"`
	OlderThan string `long:"older-than" description:"Archive everything older than a duration (e.g., 90d)"`

	globals *GlobalFlags
	version string
	env     *storeEnv
}

// RunCommand — run the idle-archival daemon.
type RunCommand struct {
	LogLevel string `long:"log-level" description:"Override log level"`
	Port     int    `long:"port" description:"Override metrics port"`

	globals *GlobalFlags
	version string
}

// PurgeCommand — expire ALL history with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	env     *storeEnv
}

// StarCommand — add or remove a bookmark, protecting a URL row from
// expiry.
type StarCommand struct {
	URL    string `long:"url" description:"URL to star (required)"`
	Title  string `long:"title" description:"Bookmark title"`
	Remove bool   `long:"remove" description:"Remove the bookmark instead"`

	globals *GlobalFlags
	version string
	env     *storeEnv
}
