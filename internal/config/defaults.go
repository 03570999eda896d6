package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir:         "~/.config/attic",
			MainFile:    "history.db",
			ArchiveFile: "archived_history.db",
			IconFile:    "icons.db",
		},
		Retention: RetentionConfig{
			Days: 90,
		},
		Archival: ArchivalConfig{
			BatchSize:        32,
			FastDelaySeconds: 30,
			SlowDelayMinutes: 5,
		},
		Daemon: DaemonConfig{
			Host: "127.0.0.1",
			Port: 8643,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
