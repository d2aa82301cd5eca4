// Package exec runs the plugin dependency installer (pip) as a bounded
// child process and captures its output, without committing the loader to
// any particular installer's argument conventions beyond Command/Args.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Config holds the configuration for one installer invocation (a dependency
// presence check or an install attempt).
type Config struct {
	// Command is the installer binary to invoke (required), e.g. "pip".
	Command string

	// Args are the installer's command-line arguments, e.g.
	// []string{"install", "numpy==1.26.0"}.
	Args []string

	// WorkDir is the working directory for the invocation (optional).
	WorkDir string

	// Env specifies the environment in "KEY=value" form (optional). If
	// nil, the invocation inherits the host process's environment.
	Env []string

	// Timeout bounds the invocation. Every call site sets one: a
	// dependency check and an install attempt each carry their own
	// deadline so one misbehaving package cannot stall plugin loading.
	Timeout time.Duration

	// StdinData is written to the invocation's stdin before it is closed
	// (optional).
	StdinData []byte
}

// Result holds the outcome of one installer invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Run executes the configured installer invocation and returns a Result
// with stdout, stderr, exit code, and duration.
//
// A non-zero exit code is not treated as an error: the Result is returned
// with ExitCode populated so the loader can distinguish "dependency
// missing" (pip show exits 1) from "installer itself could not run".
// Only an execution failure (binary not found, context deadline,
// cancellation) returns an error.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Command == "" {
		return nil, errors.New("command is required")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)

	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	if cfg.Env != nil {
		cmd.Env = cfg.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(cfg.StdinData) > 0 {
		cmd.Stdin = bytes.NewReader(cfg.StdinData)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: 0,
		Duration: duration,
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result, fmt.Errorf("command timed out after %v", cfg.Timeout)
		}
		if ctx.Err() == context.Canceled {
			return result, fmt.Errorf("command cancelled")
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		return result, fmt.Errorf("command execution failed: %w", err)
	}

	return result, nil
}
