// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitError carries a specific exit code out of run(). Commands use it
// when the outcome is a verdict rather than a failure, for example a
// verify that found problems.
type ExitError struct {
	Code int
	Err  error
}

func (err *ExitError) Error() string { return err.Err.Error() }

func (err *ExitError) Unwrap() error { return err.Err }

// Fatal writes "error: err" to stderr and exits. The exit code is 1
// unless err wraps an ExitError.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(ExitCode(err))
}

// ExitCode returns the exit code Fatal would use for err.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}
	return 1
}
