package main

import (
	"fmt"
	"os"

	"github.com/runnerr0/attic/internal/cli"
)

var version = "0.1.0"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
