package execx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig holds what is needed to open an SSH connection to the
// remote build host.
type SSHConfig struct {
	Host           string
	User           string
	Port           int
	IdentityPath   string
	KnownHostsPath string
	PathPrefix     string // prepended to PATH on the remote host
}

// SSH runs commands on a remote host over a single SSH connection,
// one session per command.
type SSH struct {
	client     *gossh.Client
	pathPrefix string
}

// DialSSH opens the SSH connection. The remote host key is verified
// against the configured known_hosts file.
func DialSSH(cfg SSHConfig) (*SSH, error) {
	key, err := os.ReadFile(cfg.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	signer, err := gossh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}

	hostKeys, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	client, err := gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            cfg.User,
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &SSH{client: client, pathPrefix: cfg.PathPrefix}, nil
}

// Run executes the command on the remote host. The working directory
// and environment are applied by wrapping the command in a small shell
// line, since sshd only forwards env vars it was configured to accept.
func (s *SSH) Run(ctx context.Context, cmd Command) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("ssh session: %w", err)
	}
	defer sess.Close()

	sess.Stdin = cmd.Stdin
	sess.Stdout = cmd.Stdout
	sess.Stderr = cmd.Stderr

	err = sess.Run(s.commandLine(cmd))
	var xerr *gossh.ExitError
	if errors.As(err, &xerr) {
		return &ExitError{Program: cmd.Program, Code: xerr.ExitStatus()}
	}
	if err != nil {
		return fmt.Errorf("run %s on %s: %w", cmd.Program, s.client.RemoteAddr(), err)
	}
	return nil
}

func (s *SSH) commandLine(cmd Command) string {
	var b strings.Builder
	if cmd.Dir != "" {
		fmt.Fprintf(&b, "cd %s && ", Quote(cmd.Dir))
	}
	if s.pathPrefix != "" {
		fmt.Fprintf(&b, "PATH=%s:$PATH ", Quote(s.pathPrefix))
	}
	for _, kv := range cmd.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s=%s ", k, Quote(v))
	}
	b.WriteString(Quote(cmd.Program))
	for _, arg := range cmd.Args {
		b.WriteByte(' ')
		b.WriteString(Quote(arg))
	}
	return b.String()
}

// Close closes the underlying SSH connection.
func (s *SSH) Close() error {
	return s.client.Close()
}
