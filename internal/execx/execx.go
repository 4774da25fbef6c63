// Package execx runs external programs on the local host or on a
// remote one over SSH, behind a common Executor interface.
package execx

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Command describes one external program invocation. Stdout and Stderr
// are wired straight through so the pushing git client sees build
// output inline.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Env     []string // KEY=VALUE pairs appended to the inherited environment
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// Executor runs a command to completion and reports its exit status.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a nonzero exit from an executed program.
type ExitError struct {
	Program string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Program, e.Code)
}

// ExitCode returns the program's exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
