// Package cli is a thin, deterministic command-line entrypoint sufficient
// to drive the planner/store/executor core for manual testing — not a
// replacement for the out-of-scope form-UI/web-viewer front end. Grounded
// on the shape of the prior teacher invocation wrapper: flags parse into a
// canonicalized, validated value (now internal/config's Configuration, via
// pflag/Viper instead of the stdlib flag package) before any engine logic
// runs, and a stable ExitCode function maps failures to process exit codes
// without the caller needing to string-match errors.
package cli

import (
	"context"
	"errors"

	"weavecore/internal/clock"
	"weavecore/internal/config"
	"weavecore/internal/run"
)

const (
	ExitSuccess       = 0
	ExitConfigError   = 2
	ExitRunFailure    = 3
	ExitInternalError = 4
)

// Result is the outcome of one invocation: a semantic exit code plus the
// underlying run.Result, when the run got far enough to produce one.
type Result struct {
	ExitCode int
	Run      *run.Result
}

// Run parses args (excluding argv[0]) into a Configuration and executes one
// plan-then-build cycle against it.
func Run(ctx context.Context, args []string) (Result, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}

	res, err := run.Execute(ctx, cfg, clock.Real{})
	if err != nil {
		return Result{ExitCode: ExitRunFailure, Run: res}, err
	}

	exitCode := ExitSuccess
	if res.Summary != nil && res.Summary.Status != "succeeded" {
		exitCode = ExitRunFailure
	}
	return Result{ExitCode: exitCode, Run: res}, nil
}

// ExitCode extracts a semantic exit code from an error returned by Run.
// Unrecognized errors map to ExitInternalError so a caller never has to
// string-match.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *config.InvalidError
	if errors.As(err, &invErr) {
		return ExitConfigError
	}
	return ExitInternalError
}
