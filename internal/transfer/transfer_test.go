package transfer_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/pushgate/internal/execx"
	"github.com/mkarlsen/pushgate/internal/transfer"
)

type recordingExecutor struct {
	cmds   []execx.Command
	stdins [][]byte
	err    error
}

func (r *recordingExecutor) Run(_ context.Context, cmd execx.Command) error {
	r.cmds = append(r.cmds, cmd)
	var stdin []byte
	if cmd.Stdin != nil {
		var err error
		if stdin, err = io.ReadAll(cmd.Stdin); err != nil {
			return err
		}
	}
	r.stdins = append(r.stdins, stdin)
	return r.err
}

func TestWriteTar(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "util.txt"), []byte("helper\n"), 0o644))
	require.NoError(t, os.Symlink("build", filepath.Join(dir, "b")))

	var buf bytes.Buffer
	require.NoError(t, transfer.WriteTar(dir, &buf))

	entries := map[string]*tar.Header{}
	contents := map[string]string{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		entries[hdr.Name] = hdr
		if hdr.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			require.NoError(t, err)
			contents[hdr.Name] = string(data)
		}
	}

	require.Contains(t, entries, "build")
	require.Contains(t, entries, "lib/")
	require.Contains(t, entries, "lib/util.txt")
	require.Contains(t, entries, "b")

	assert.Equal(t, "#!/bin/sh\n", contents["build"])
	assert.Equal(t, "helper\n", contents["lib/util.txt"])
	assert.NotZero(t, entries["build"].Mode&0o111, "executable bit lost")
	assert.Equal(t, byte(tar.TypeSymlink), entries["b"].Typeflag)
	assert.Equal(t, "build", entries["b"].Linkname)
}

func TestEnsureProjectDir(t *testing.T) {
	t.Parallel()

	t.Run("should create the directory", func(t *testing.T) {
		t.Parallel()

		exec := &recordingExecutor{}
		r := transfer.NewRemote(exec, "projects", "myapp", "")

		require.NoError(t, r.EnsureProjectDir(context.Background(), io.Discard, io.Discard))

		require.Len(t, exec.cmds, 1)
		assert.Equal(t, "sh", exec.cmds[0].Program)
		require.Len(t, exec.cmds[0].Args, 2)
		script := exec.cmds[0].Args[1]
		assert.Contains(t, script, "mkdir -p 'projects/myapp'")
		assert.NotContains(t, script, "chgrp")
	})

	t.Run("should apply group ownership and setgid when configured", func(t *testing.T) {
		t.Parallel()

		exec := &recordingExecutor{}
		r := transfer.NewRemote(exec, ".", "myapp", "deployers")

		require.NoError(t, r.EnsureProjectDir(context.Background(), io.Discard, io.Discard))

		script := exec.cmds[0].Args[1]
		assert.Contains(t, script, "chgrp 'deployers' 'myapp'")
		assert.Contains(t, script, "chmod g+ws 'myapp'")
	})
}

func TestMirror(t *testing.T) {
	t.Parallel()

	t.Run("should stream the tree and empty the remote side first", func(t *testing.T) {
		t.Parallel()

		local := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(local, "README"), []byte("v1\n"), 0o644))

		exec := &recordingExecutor{}
		r := transfer.NewRemote(exec, ".", "myapp", "")

		require.NoError(t, r.Mirror(context.Background(), local, io.Discard, io.Discard))

		require.Len(t, exec.cmds, 1)
		script := exec.cmds[0].Args[1]
		assert.Contains(t, script, "cd 'myapp'")
		assert.Contains(t, script, "find . -mindepth 1 -delete")
		assert.Contains(t, script, "tar -xpf -")

		// stdin carried a tar stream of the local tree
		tr := tar.NewReader(bytes.NewReader(exec.stdins[0]))
		hdr, err := tr.Next()
		require.NoError(t, err)
		assert.Equal(t, "README", hdr.Name)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		assert.Equal(t, "v1\n", string(data))
	})

	t.Run("should surface executor failures", func(t *testing.T) {
		t.Parallel()

		exec := &recordingExecutor{err: &execx.ExitError{Program: "sh", Code: 1}}
		r := transfer.NewRemote(exec, ".", "myapp", "")

		err := r.Mirror(context.Background(), t.TempDir(), io.Discard, io.Discard)

		require.Error(t, err)
	})
}
