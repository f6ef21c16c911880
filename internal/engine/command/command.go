// Package command runs the external programs behind the on-host speech engines.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotFound is returned when none of the candidate programs is installed.
var ErrNotFound = errors.New("program not found in PATH")

const errFmtExecution = "%s execution failed: %w - output: %s"

// Runner executes a program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, stdin, name string, args ...string) ([]byte, error)
}

// Exec runs programs with os/exec.
type Exec struct{}

// Run executes name with args, feeding stdin when it is not empty.
// A non-zero exit is reported together with the program's standard error.
func (Exec) Run(ctx context.Context, stdin, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- program names come from configuration or LookPath, text goes through stdin
	cmd := exec.CommandContext(ctx, name, args...)

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		return stdout.Bytes(), fmt.Errorf(errFmtExecution, name, runErr, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// FindFirst returns the resolved path of the first candidate that lookPath finds.
func FindFirst(lookPath func(string) (string, error), candidates ...string) (string, error) {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}

		path, err := lookPath(candidate)
		if err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrNotFound, strings.Join(candidates, ", "))
}
