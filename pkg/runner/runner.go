// Package runner executes Cobra commands in-process while capturing their
// output.
//
// The cluster engine (k3d) ships its lifecycle operations as Cobra commands;
// running them through this runner keeps everything in-process (no external
// binary) while still collecting stdout/stderr for parsing and reporting.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Result holds the captured output of a command run.
type Result struct {
	Stdout string
	Stderr string
}

// CommandRunner runs a Cobra command with the given arguments.
type CommandRunner interface {
	Run(ctx context.Context, cmd *cobra.Command, args []string) (Result, error)
}

// CobraCommandRunner executes Cobra commands, teeing their output to the
// configured writers while capturing it for the Result.
type CobraCommandRunner struct {
	stdout io.Writer
	stderr io.Writer
}

// NewCobraCommandRunner constructs a runner. Nil writers default to the
// process stdout/stderr.
func NewCobraCommandRunner(stdout, stderr io.Writer) *CobraCommandRunner {
	if stdout == nil {
		stdout = os.Stdout
	}

	if stderr == nil {
		stderr = os.Stderr
	}

	return &CobraCommandRunner{stdout: stdout, stderr: stderr}
}

// Run executes the command with args and returns its captured output.
// The command's own error is returned verbatim alongside the output collected
// up to the failure.
func (r *CobraCommandRunner) Run(
	ctx context.Context,
	cmd *cobra.Command,
	args []string,
) (Result, error) {
	var outBuf, errBuf bytes.Buffer

	cmd.SetOut(io.MultiWriter(&outBuf, r.stdout))
	cmd.SetErr(io.MultiWriter(&errBuf, r.stderr))
	cmd.SetArgs(args)

	runErr := cmd.ExecuteContext(ctx)

	res := Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if runErr != nil {
		return res, fmt.Errorf("execute %s: %w", cmd.Name(), runErr)
	}

	return res, nil
}
