package gate

import (
	"errors"
	"fmt"

	"github.com/mkarlsen/pushgate/internal/execx"
)

// CheckoutError means the pushed revision could not be materialized.
type CheckoutError struct {
	Revision string
	Err      error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Revision, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// TransferError means the tree could not be mirrored to the remote host.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer: %v", e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// BuildError means the build command failed.
type BuildError struct {
	Code int
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ExitCode returns the build command's exit code.
func (e *BuildError) ExitCode() int { return e.Code }

// DeployError means the deploy command failed.
type DeployError struct {
	Code int
	Err  error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy failed: %v", e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }

// ExitCode returns the deploy command's exit code.
func (e *DeployError) ExitCode() int { return e.Code }

// ExitCode maps an error to the hook's process exit code: the failing
// tool's own code when one exists, otherwise 1. A nil error is 0, which
// tells git to accept the push.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) && coded.ExitCode() > 0 {
		return coded.ExitCode()
	}
	return 1
}

func wrapBuild(err error) error {
	return &BuildError{Code: commandCode(err), Err: err}
}

func wrapDeploy(err error) error {
	return &DeployError{Code: commandCode(err), Err: err}
}

func commandCode(err error) int {
	var xerr *execx.ExitError
	if errors.As(err, &xerr) && xerr.Code > 0 {
		return xerr.Code
	}
	return 1
}
