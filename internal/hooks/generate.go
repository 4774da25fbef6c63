// Package hooks installs the pushgate hook script into bare
// repositories.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkarlsen/pushgate/internal/execx"
)

// Install writes the pre-receive hook script into the bare repository
// at repoPath. The script execs the pushgate binary, so the hook always
// runs whatever binary is installed at binPath. configPath may be empty.
func Install(repoPath, binPath, configPath string) error {
	if _, err := os.Stat(filepath.Join(repoPath, "HEAD")); err != nil {
		return fmt.Errorf("%s is not a bare git repository: %w", repoPath, err)
	}

	hooksDir := filepath.Join(repoPath, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return fmt.Errorf("create hooks dir: %w", err)
	}

	script := fmt.Sprintf(`#!/bin/sh
# pushgate pre-receive hook: gate pushes to the protected branch behind
# a build/deploy cycle.
exec %s hook pre-receive%s
`, execx.Quote(binPath), configArg(configPath))

	path := filepath.Join(hooksDir, "pre-receive")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return fmt.Errorf("write pre-receive hook: %w", err)
	}

	return nil
}

func configArg(configPath string) string {
	if configPath == "" {
		return ""
	}
	return " -config " + execx.Quote(configPath)
}
