package cli

import (
	"context"
	"fmt"
)

// Execute implements the go-flags Commander interface for ExpireCommand.
func (c *ExpireCommand) Execute(args []string) error {
	begin, err := parseTimeFlag(c.Begin)
	if err != nil {
		return err
	}
	end, err := parseTimeFlag(c.End)
	if err != nil {
		return err
	}

	env, owned, err := ensureEnv(c.env, c.globals)
	if err != nil {
		return err
	}
	if owned {
		defer env.Close()
	}

	log := newLogger(c.globals)
	engine := env.newEngine(log, nil, nil)
	engine.ExpireHistoryBetween(context.Background(), c.URLs, begin, end)

	fmt.Println("Expired.")
	return nil
}
