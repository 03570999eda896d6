package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status  *StatusCommand
	Delete  *DeleteCommand
	Expire  *ExpireCommand
	Archive *ArchiveCommand
	Run     *RunCommand
	Purge   *PurgeCommand
	Star    *StarCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "attic"
	parser.LongDescription = "Two-tier browsing-history retention: archives old visits into cold storage and expires the rest."

	cmds := &commands{
		Status:  &StatusCommand{globals: &globals, version: version},
		Delete:  &DeleteCommand{globals: &globals, version: version},
		Expire:  &ExpireCommand{globals: &globals, version: version},
		Archive: &ArchiveCommand{globals: &globals, version: version},
		Run:     &RunCommand{globals: &globals, version: version},
		Purge:   &PurgeCommand{globals: &globals, version: version},
		Star:    &StarCommand{globals: &globals, version: version},
	}

	parser.AddCommand("status", "Show store statistics", "Show statistics for the main and archived history stores.", cmds.Status)
	parser.AddCommand("delete", "Delete URLs from history", "Delete URLs and all their visits from the main store. Bookmarked URLs keep their row.", cmds.Delete)
	parser.AddCommand("expire", "Expire a time range", "Permanently delete all visits in a time range, optionally restricted to given URLs.", cmds.Expire)
	parser.AddCommand("archive", "Archive old history now", "Run bulk archival: move archive-worthy visits older than the cutoff into cold storage, discard the rest.", cmds.Archive)
	parser.AddCommand("run", "Run the archival daemon", "Run the idle-archival daemon with its metrics endpoint.", cmds.Run)
	parser.AddCommand("purge", "Expire ALL history", "Expire ALL history through the engine. Destructive operation with safety prompt.", cmds.Purge)
	parser.AddCommand("star", "Star or unstar a URL", "Add or remove a bookmark; starred URLs survive expiry with zeroed counts.", cmds.Star)

	return parser, &globals, cmds
}

// Run is the main entry point for the attic CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("attic %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
