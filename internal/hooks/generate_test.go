package hooks_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/pushgate/internal/hooks"
)

func bareRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/master\n"), 0o644))
	return dir
}

func TestInstall(t *testing.T) {
	t.Parallel()

	t.Run("should write an executable pre-receive script", func(t *testing.T) {
		t.Parallel()

		repo := bareRepo(t)

		require.NoError(t, hooks.Install(repo, "/usr/local/bin/pushgate", "/etc/pushgate.yaml"))

		path := filepath.Join(repo, "hooks", "pre-receive")
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&0o111, "hook script not executable")

		script, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(script), "#!/bin/sh")
		assert.Contains(t, string(script), "exec '/usr/local/bin/pushgate' hook pre-receive -config '/etc/pushgate.yaml'")
	})

	t.Run("should omit the config flag when no config is given", func(t *testing.T) {
		t.Parallel()

		repo := bareRepo(t)

		require.NoError(t, hooks.Install(repo, "/usr/local/bin/pushgate", ""))

		script, err := os.ReadFile(filepath.Join(repo, "hooks", "pre-receive"))
		require.NoError(t, err)
		assert.Contains(t, string(script), "exec '/usr/local/bin/pushgate' hook pre-receive\n")
	})

	t.Run("should refuse a directory that is not a repository", func(t *testing.T) {
		t.Parallel()

		err := hooks.Install(t.TempDir(), "/usr/local/bin/pushgate", "")

		require.Error(t, err)
	})
}
