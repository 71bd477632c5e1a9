package main

import (
	"context"
	"fmt"
	"os"

	"weavecore/internal/cli"
)

// main is a deterministic boundary: argv canonicalizes into a validated
// Configuration before any planner/store/executor logic runs.
func main() {
	res, err := cli.Run(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(res.ExitCode)
}
