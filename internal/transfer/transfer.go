// Package transfer mirrors a checked-out tree into a project directory
// on the remote build host.
package transfer

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/mkarlsen/pushgate/internal/execx"
)

// Remote mirrors trees into one project directory on the remote host.
// The directory name is derived from the repository name.
type Remote struct {
	exec  execx.Executor
	dir   string
	group string
}

// NewRemote returns a Remote targeting root/repoName on the host behind
// exec. When group is non-empty the project directory is group-owned
// and setgid so every group member can push later.
func NewRemote(exec execx.Executor, root, repoName, group string) *Remote {
	return &Remote{
		exec:  exec,
		dir:   path.Join(root, repoName),
		group: group,
	}
}

// Dir returns the remote project directory.
func (r *Remote) Dir() string { return r.dir }

// EnsureProjectDir creates the remote project directory if missing and
// applies group ownership and the setgid bit when a group is
// configured. Safe to run on every push.
func (r *Remote) EnsureProjectDir(ctx context.Context, stdout, stderr io.Writer) error {
	script := fmt.Sprintf("mkdir -p %s", execx.Quote(r.dir))
	if r.group != "" {
		script += fmt.Sprintf(" && chgrp %s %s && chmod g+ws %s",
			execx.Quote(r.group), execx.Quote(r.dir), execx.Quote(r.dir))
	}

	err := r.exec.Run(ctx, execx.Command{
		Program: "sh",
		Args:    []string{"-c", script},
		Stdout:  stdout,
		Stderr:  stderr,
	})
	if err != nil {
		return fmt.Errorf("ensure project dir %s: %w", r.dir, err)
	}
	return nil
}

// Mirror replaces the remote project directory's contents with exactly
// the tree under localDir: the remote side is emptied first, then a tar
// stream of the local tree is unpacked into it. Idempotent, and no
// stale remote file survives.
func (r *Remote) Mirror(ctx context.Context, localDir string, stdout, stderr io.Writer) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteTar(localDir, pw))
	}()
	defer pr.Close()

	script := fmt.Sprintf("cd %s && find . -mindepth 1 -delete && tar -xpf -", execx.Quote(r.dir))
	err := r.exec.Run(ctx, execx.Command{
		Program: "sh",
		Args:    []string{"-c", script},
		Stdin:   pr,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	if err != nil {
		return fmt.Errorf("mirror to %s: %w", r.dir, err)
	}
	return nil
}

// WriteTar packs the tree under dir into w as a tar stream with paths
// relative to dir. Regular files, directories and symlinks only, which
// is all a git checkout can contain.
func WriteTar(dir string, w io.Writer) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("pack %s: %w", dir, err)
	}

	return tw.Close()
}
