// Package gate implements the pre-receive deploy gate: each update to
// the protected ref is checked out, built and optionally deployed, and
// the first failure rejects the push.
package gate

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mkarlsen/pushgate/internal/execx"
	"github.com/mkarlsen/pushgate/internal/refs"
)

// Materializer produces a working tree for a revision. The directory
// must end up containing exactly the revision's tree.
type Materializer interface {
	Materialize(ctx context.Context, revision, dir string) error
}

// Transfer mirrors the checked-out tree to the remote project
// directory. Mirror must delete remote files absent from the local
// tree so stale artifacts never reach a build.
type Transfer interface {
	EnsureProjectDir(ctx context.Context, stdout, stderr io.Writer) error
	Mirror(ctx context.Context, localDir string, stdout, stderr io.Writer) error
	Dir() string
}

// Attempt is the record of one gate run for one ref update. Step names
// the last step reached: checkout, transfer, build, deploy or done.
type Attempt struct {
	Repo      string
	Ref       string
	OldHash   string
	NewHash   string
	Step      string
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder persists gate attempts. Failures to record never reject a
// push.
type Recorder interface {
	Record(ctx context.Context, a Attempt) error
}

// Notifier announces finished gate attempts, e.g. to webhooks.
type Notifier interface {
	Notify(ctx context.Context, a Attempt)
}

// Runner processes ref updates strictly in order, one fully before the
// next. The scratch directory is a singleton per repository, so there
// is deliberately no parallelism.
type Runner struct {
	ProtectedRef  string
	ScratchDir    string
	BuildCommand  string
	DeployCommand string
	DeployEnabled bool
	RepoName      string

	Checkout Materializer
	Exec     execx.Executor
	Transfer Transfer // nil for the local variant
	Recorder Recorder // optional
	Notifier Notifier // optional

	Stdout io.Writer
	Stderr io.Writer
	Log    *slog.Logger
}

// Run reads ref updates from input and gates each one that targets the
// protected ref. The returned error is the first failure; ExitCode
// turns it into the hook's process exit code.
func (r *Runner) Run(ctx context.Context, input io.Reader) error {
	updates, err := refs.ReadUpdates(input)
	if err != nil {
		return err
	}

	for _, u := range updates {
		if u.RefName != r.ProtectedRef {
			r.log().Debug("ignoring ref", "ref", u.RefName)
			continue
		}
		if u.IsDelete() {
			r.log().Info("protected ref deleted, nothing to build", "ref", u.RefName)
			continue
		}
		if err := r.process(ctx, u); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) process(ctx context.Context, u refs.Update) (err error) {
	started := time.Now()
	step := "checkout"
	defer func() {
		r.report(ctx, u, step, err, started)
	}()

	r.log().Info("checking out", "ref", u.RefName, "revision", u.NewHash)
	if cerr := r.Checkout.Materialize(ctx, u.NewHash, r.ScratchDir); cerr != nil {
		return &CheckoutError{Revision: u.NewHash, Err: cerr}
	}

	workDir := r.ScratchDir
	if r.Transfer != nil {
		step = "transfer"
		r.log().Info("mirroring to remote host", "dir", r.Transfer.Dir())
		if terr := r.Transfer.EnsureProjectDir(ctx, r.Stdout, r.Stderr); terr != nil {
			return &TransferError{Err: terr}
		}
		if terr := r.Transfer.Mirror(ctx, r.ScratchDir, r.Stdout, r.Stderr); terr != nil {
			return &TransferError{Err: terr}
		}
		workDir = r.Transfer.Dir()
	}

	step = "build"
	if berr := r.runCommand(ctx, r.BuildCommand, workDir); berr != nil {
		return wrapBuild(berr)
	}

	if r.DeployEnabled {
		step = "deploy"
		if derr := r.runCommand(ctx, r.DeployCommand, workDir); derr != nil {
			return wrapDeploy(derr)
		}
	}

	step = "done"
	if r.Transfer == nil {
		// Local cycle finished, drop the scratch tree. The next checkout
		// wipes it anyway, so a failure here is only worth a warning.
		if rerr := os.RemoveAll(r.ScratchDir); rerr != nil {
			r.log().Warn("remove scratch dir", "dir", r.ScratchDir, "error", rerr)
		}
	}

	r.log().Info("push accepted", "ref", u.RefName, "revision", u.NewHash)
	return nil
}

func (r *Runner) runCommand(ctx context.Context, program, dir string) error {
	r.log().Info("running", "command", program, "dir", dir)
	return r.Exec.Run(ctx, execx.Command{
		Program: program,
		Dir:     dir,
		Stdout:  r.Stdout,
		Stderr:  r.Stderr,
	})
}

func (r *Runner) report(ctx context.Context, u refs.Update, step string, err error, started time.Time) {
	a := Attempt{
		Repo:      r.RepoName,
		Ref:       u.RefName,
		OldHash:   u.OldHash,
		NewHash:   u.NewHash,
		Step:      step,
		ExitCode:  ExitCode(err),
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if r.Recorder != nil {
		if rerr := r.Recorder.Record(ctx, a); rerr != nil {
			r.log().Warn("record attempt", "error", rerr)
		}
	}
	if r.Notifier != nil {
		r.Notifier.Notify(ctx, a)
	}
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
