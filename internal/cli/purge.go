package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
// Purge runs through the engine rather than truncating tables so the
// bookmark-retention and favicon-orphan rules still apply.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Println("⚠ WARNING: This will permanently delete ALL history from the main store.")
		fmt.Println("  - All visits")
		fmt.Println("  - All non-bookmarked URLs")
		fmt.Println("  - All orphaned favicons and thumbnails")
		fmt.Println()
		fmt.Println("The archive store is not touched. This action cannot be undone.")
		fmt.Println()
		fmt.Print(`Type "PURGE" to confirm: `)

		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		input := strings.TrimSpace(scanner.Text())
		if input != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
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
	engine.ExpireHistoryBetween(context.Background(), nil, time.Time{}, time.Time{})

	// Output
	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"purged":  true,
			"message": "all history expired",
		}
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(out)
	}

	fmt.Println("Purged all history. Bookmarked URLs were retained with zeroed counts.")
	return nil
}
