package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/mkarlsen/pushgate/internal/config"
	"github.com/mkarlsen/pushgate/internal/db"
	"github.com/mkarlsen/pushgate/internal/execx"
	"github.com/mkarlsen/pushgate/internal/gate"
	gitx "github.com/mkarlsen/pushgate/internal/git"
	"github.com/mkarlsen/pushgate/internal/hooks"
	"github.com/mkarlsen/pushgate/internal/store"
	"github.com/mkarlsen/pushgate/internal/transfer"
	"github.com/mkarlsen/pushgate/internal/webhook"
)

var version = "dev"

const usage = `usage: pushgate <command> [flags]

commands:
  hook pre-receive   run the deploy gate (invoked by git, reads stdin)
  install <repo>     install the pre-receive hook into a bare repository
  history            list recent deploy attempts
  version            print the version
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "hook":
		runHook(os.Args[2:])
	case "install":
		runInstall(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "version":
		fmt.Println("pushgate " + version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func runHook(args []string) {
	if len(args) < 1 || args[0] != "pre-receive" {
		fmt.Fprintln(os.Stderr, "usage: pushgate hook pre-receive [-config path]")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("hook pre-receive", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args[1:]) //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		slog.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	// git runs pre-receive with the bare repository as working
	// directory; GIT_DIR, when set, points at it too.
	repoPath := os.Getenv("GIT_DIR")
	if repoPath == "" {
		repoPath = "."
	}
	repoPath, err = filepath.Abs(repoPath)
	if err != nil {
		slog.Error("resolve repository path", "error", err)
		os.Exit(1)
	}
	repoName := gitx.RepoName(repoPath)

	checkout, err := gitx.NewCheckout(repoPath)
	if err != nil {
		slog.Error("open repository", "path", repoPath, "error", err)
		os.Exit(1)
	}

	runner := &gate.Runner{
		ProtectedRef:  cfg.ProtectedRef,
		ScratchDir:    filepath.Join(cfg.ScratchPath, repoName),
		BuildCommand:  cfg.BuildCommand,
		DeployCommand: cfg.DeployCommand,
		DeployEnabled: cfg.Deploy(),
		RepoName:      repoName,
		Checkout:      checkout,
		Exec:          execx.Local{},
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Log:           slog.Default().With("repo", repoName),
	}

	if cfg.Remote.Enabled {
		sshExec, err := execx.DialSSH(execx.SSHConfig{
			Host:           cfg.Remote.Host,
			User:           cfg.Remote.User,
			Port:           cfg.Remote.Port,
			IdentityPath:   cfg.Remote.IdentityPath,
			KnownHostsPath: cfg.Remote.KnownHostsPath,
			PathPrefix:     cfg.Remote.PathPrefix,
		})
		if err != nil {
			slog.Error("connect to remote host", "host", cfg.Remote.Host, "error", err)
			os.Exit(1)
		}
		defer sshExec.Close()
		runner.Exec = sshExec
		runner.Transfer = transfer.NewRemote(sshExec, cfg.Remote.Root, repoName, cfg.Remote.Group)
	}

	// History and webhooks are best-effort extras: never reject a push
	// because of them.
	if database, err := db.Open(cfg.DBPath()); err != nil {
		slog.Warn("history database unavailable", "error", err)
	} else {
		defer database.Close()
		runner.Recorder = store.NewDeployments(database)
	}
	if len(cfg.Webhooks) > 0 {
		whs := make([]webhook.Webhook, 0, len(cfg.Webhooks))
		for _, w := range cfg.Webhooks {
			whs = append(whs, webhook.Webhook{URL: w.URL, Secret: w.Secret})
		}
		runner.Notifier = webhook.NewHub(whs)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runner.Run(ctx, os.Stdin); err != nil {
		slog.Error("push rejected", "error", err)
		os.Exit(gate.ExitCode(err))
	}
}

func runInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	configPath := fs.String("config", "", "config path baked into the hook script")
	fs.Parse(args) //nolint:errcheck

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pushgate install [-config path] <bare-repo-path>")
		os.Exit(2)
	}

	repoPath, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		slog.Error("resolve repository path", "error", err)
		os.Exit(1)
	}

	binPath, err := os.Executable()
	if err != nil {
		slog.Error("resolve own binary path", "error", err)
		os.Exit(1)
	}

	if err := hooks.Install(repoPath, binPath, *configPath); err != nil {
		slog.Error("install hook", "error", err)
		os.Exit(1)
	}

	slog.Info("pre-receive hook installed", "repo", repoPath)
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("n", 20, "number of attempts to show")
	fs.Parse(args) //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg.DBPath())
	if err != nil {
		slog.Error("open history database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	deployments, err := store.NewDeployments(database).Recent(context.Background(), *limit)
	if err != nil {
		slog.Error("load history", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tREPO\tREF\tREVISION\tSTEP\tSTATUS")
	for _, d := range deployments {
		status := "ok"
		if !d.Succeeded() {
			status = fmt.Sprintf("failed (%d)", d.ExitCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.7s\t%s\t%s\n",
			d.StartedAt, d.Repo, d.Ref, d.NewHash, d.Step, status)
	}
	w.Flush() //nolint:errcheck
}
