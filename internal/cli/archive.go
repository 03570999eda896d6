package cli

import (
	"context"
	"fmt"
	"time"
)

// Execute implements the go-flags Commander interface for ArchiveCommand.
func (c *ArchiveCommand) Execute(args []string) error {
	env, owned, err := ensureEnv(c.env, c.globals)
	if err != nil {
		return err
	}
	if owned {
		defer env.Close()
	}

	cutoff, err := c.resolveCutoff(env)
	if err != nil {
		return err
	}

	log := newLogger(c.globals)
	engine := env.newEngine(log, nil, nil)
	engine.ArchiveHistoryBefore(context.Background(), cutoff)

	fmt.Printf("Archived history up to %s.\n", cutoff.Local().Format(time.RFC3339))
	return nil
}

// resolveCutoff picks the archive cutoff: --before wins, then
// --older-than, then the configured retention window.
func (c *ArchiveCommand) resolveCutoff(env *storeEnv) (time.Time, error) {
	if c.Before != "" {
		return parseTimeFlag(c.Before)
	}
	if c.OlderThan != "" {
		d, err := parseDuration(c.OlderThan)
		if err != nil {
			return time.Time{}, err
		}
		return time.Now().Add(-d), nil
	}
	return time.Now().Add(-env.Config.RetentionDuration()), nil
}
