// Package git materializes revisions from a bare repository into a
// scratch working tree.
package git

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Checkout materializes commits from one repository.
type Checkout struct {
	repo *gogit.Repository
}

// NewCheckout opens the repository at path.
func NewCheckout(path string) (*Checkout, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repo %s: %w", path, err)
	}
	return &Checkout{repo: repo}, nil
}

// Materialize wipes dir and recreates it containing exactly the tree of
// the given revision: regular files byte-for-byte with the tree's
// executable bit, symlinks as symlinks. Wiping first guarantees no file
// from a previous checkout survives into this one.
func (c *Checkout) Materialize(ctx context.Context, revision, dir string) error {
	commit, err := c.repo.CommitObject(plumbing.NewHash(revision))
	if err != nil {
		return fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("tree of %s: %w", revision, err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean scratch dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	return tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return writeEntry(dir, f)
	})
}

func writeEntry(dir string, f *object.File) error {
	path := filepath.Join(dir, filepath.FromSlash(f.Name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}

	if f.Mode == filemode.Symlink {
		target, err := f.Contents()
		if err != nil {
			return fmt.Errorf("read symlink %s: %w", f.Name, err)
		}
		if err := os.Symlink(target, path); err != nil {
			return fmt.Errorf("write symlink %s: %w", f.Name, err)
		}
		return nil
	}

	mode, err := f.Mode.ToOSFileMode()
	if err != nil {
		return fmt.Errorf("mode of %s: %w", f.Name, err)
	}

	r, err := f.Blob.Reader()
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Name, err)
	}
	defer r.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return out.Close()
}

// RepoName derives the project name from a repository path: the
// directory basename with a trailing ".git" stripped.
func RepoName(path string) string {
	name := filepath.Base(filepath.Clean(path))
	return strings.TrimSuffix(name, ".git")
}
