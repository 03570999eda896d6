package cli

import (
	"context"
	"fmt"
)

// Execute implements the go-flags Commander interface for StarCommand.
func (c *StarCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("star requires --url")
	}

	env, owned, err := ensureEnv(c.env, c.globals)
	if err != nil {
		return err
	}
	if owned {
		defer env.Close()
	}

	ctx := context.Background()
	if c.Remove {
		if err := env.Bookmarks.Unstar(ctx, c.URL); err != nil {
			return err
		}
		fmt.Printf("Unstarred %s\n", c.URL)
		return nil
	}

	if err := env.Bookmarks.Star(ctx, c.URL, c.Title); err != nil {
		return err
	}
	fmt.Printf("Starred %s\n", c.URL)
	return nil
}
