package execx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Local runs commands on the local host.
type Local struct{}

// Run executes the command with the given working directory and
// environment. A nonzero exit is reported as an *ExitError carrying
// the real exit code.
func (Local) Run(ctx context.Context, cmd Command) error {
	prog := cmd.Program
	// exec resolves a relative path like "./build" against the parent's
	// cwd, not cmd.Dir, so anchor it to the working directory ourselves.
	if !filepath.IsAbs(prog) && strings.ContainsRune(prog, os.PathSeparator) && cmd.Dir != "" {
		prog = filepath.Join(cmd.Dir, prog)
	}

	c := exec.CommandContext(ctx, prog, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdin = cmd.Stdin
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	err := c.Run()
	var xerr *exec.ExitError
	if errors.As(err, &xerr) && xerr.ExitCode() > 0 {
		return &ExitError{Program: cmd.Program, Code: xerr.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", cmd.Program, err)
	}
	return nil
}
