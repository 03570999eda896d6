package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/runnerr0/attic/internal/notify"
)

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(args []string) error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("delete requires at least one --url")
	}

	env, owned, err := ensureEnv(c.env, c.globals)
	if err != nil {
		return err
	}
	if owned {
		defer env.Close()
	}

	log := newLogger(c.globals)
	bus := notify.NewBus()
	details, cancel := bus.Subscribe(1)
	defer cancel()

	engine := env.newEngine(log, notify.Multi{bus, notify.LogSink{Log: log}}, nil)
	engine.DeleteURLs(context.Background(), c.URLs)

	deleted := 0
	select {
	case d := <-details:
		deleted = len(d.Rows)
	default:
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]any{
			"requested": len(c.URLs),
			"deleted":   deleted,
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Printf("Deleted %d of %d URL(s).\n", deleted, len(c.URLs))
	return nil
}
