package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RemoteConfig configures the remote-host variant: the tree is mirrored
// over SSH and built there instead of on the git host.
type RemoteConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	User           string `yaml:"user"`
	Port           int    `yaml:"port"`
	Group          string `yaml:"group"`
	PathPrefix     string `yaml:"path_prefix"`
	Root           string `yaml:"root"`
	KnownHostsPath string `yaml:"known_hosts"`
	IdentityPath   string `yaml:"identity_file"`
}

// WebhookConfig is one deploy-event webhook endpoint.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// Config is the top-level configuration for pushgate.
type Config struct {
	ProtectedRef  string          `yaml:"protected_ref"`
	DataPath      string          `yaml:"data_path"`
	ScratchPath   string          `yaml:"scratch_path"`
	BuildCommand  string          `yaml:"build_command"`
	DeployCommand string          `yaml:"deploy_command"`
	DeployEnabled *bool           `yaml:"deploy_enabled"`
	Remote        RemoteConfig    `yaml:"remote"`
	Webhooks      []WebhookConfig `yaml:"webhooks"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ProtectedRef:  "refs/heads/master",
		DataPath:      "./data",
		BuildCommand:  "./build",
		DeployCommand: "./deploy",
		Remote: RemoteConfig{
			Port: 22,
			Root: ".",
		},
	}
}

// Load reads the config from the given YAML file path, then applies
// environment variable overrides. If the file does not exist, defaults
// are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := parseFile(cfg, path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: %w", err)
			}
			// File not found — use defaults
		}
	}

	parseEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func parseFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return yaml.NewDecoder(f).Decode(cfg)
}

func parseEnv(cfg *Config) {
	if v := os.Getenv("PUSHGATE_PROTECTED_REF"); v != "" {
		cfg.ProtectedRef = v
	}
	if v := os.Getenv("PUSHGATE_DATA_PATH"); v != "" {
		cfg.DataPath = v
	}
	if v := os.Getenv("PUSHGATE_SCRATCH_PATH"); v != "" {
		cfg.ScratchPath = v
	}
	if v := os.Getenv("PUSHGATE_BUILD_COMMAND"); v != "" {
		cfg.BuildCommand = v
	}
	if v := os.Getenv("PUSHGATE_DEPLOY_COMMAND"); v != "" {
		cfg.DeployCommand = v
	}
	if v := os.Getenv("PUSHGATE_DEPLOY_ENABLED"); v != "" {
		enabled := v == "1" || v == "true" || v == "yes"
		cfg.DeployEnabled = &enabled
	}
	if v := os.Getenv("PUSHGATE_REMOTE_HOST"); v != "" {
		cfg.Remote.Enabled = true
		cfg.Remote.Host = v
	}
	if v := os.Getenv("PUSHGATE_REMOTE_USER"); v != "" {
		cfg.Remote.User = v
	}
	if v := os.Getenv("PUSHGATE_REMOTE_GROUP"); v != "" {
		cfg.Remote.Group = v
	}
	if v := os.Getenv("PUSHGATE_REMOTE_PATH_PREFIX"); v != "" {
		cfg.Remote.PathPrefix = v
	}
}

// Validate checks the config for consistency and resolves relative
// paths to absolute paths based on the data directory.
func (c *Config) Validate() error {
	if c.ProtectedRef == "" {
		return fmt.Errorf("protected_ref must not be empty")
	}

	if !filepath.IsAbs(c.DataPath) {
		abs, err := filepath.Abs(c.DataPath)
		if err != nil {
			return fmt.Errorf("resolve data_path: %w", err)
		}
		c.DataPath = abs
	}

	if c.ScratchPath == "" {
		c.ScratchPath = filepath.Join(c.DataPath, "scratch")
	} else if !filepath.IsAbs(c.ScratchPath) {
		c.ScratchPath = filepath.Join(c.DataPath, c.ScratchPath)
	}

	if c.Remote.Enabled {
		if c.Remote.Host == "" {
			return fmt.Errorf("remote.host is required when remote.enabled is set")
		}
		if c.Remote.User == "" {
			return fmt.Errorf("remote.user is required when remote.enabled is set")
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		if c.Remote.KnownHostsPath == "" {
			c.Remote.KnownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
		}
		if c.Remote.IdentityPath == "" {
			c.Remote.IdentityPath = filepath.Join(home, ".ssh", "id_ed25519")
		}
	}

	return nil
}

// Deploy reports whether the deploy step should run. Unless configured
// explicitly, deploy is on for the local variant and off for the remote
// one, where deployment is usually a separate concern on that host.
func (c *Config) Deploy() bool {
	if c.DeployEnabled != nil {
		return *c.DeployEnabled
	}
	return !c.Remote.Enabled
}

// DBPath returns the path to the SQLite history database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataPath, "pushgate.db")
}

// EnsureDirectories creates the required data directories if they don't
// exist.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataPath,
		c.ScratchPath,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
