package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/kevinburke/ssh_config"
	"github.com/skeema/knownhosts"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"

	"steward/internal/api"
	"steward/pkg/logging"
)

// SSHOptions configures the SSH dialer.
type SSHOptions struct {
	// User is the login used when neither the host nor the ssh config
	// names one.
	User string

	// KnownHostsFile verifies host keys. Ignored when Insecure is set.
	KnownHostsFile string
	Insecure       bool

	// ConfigFile is an optional OpenSSH client config consulted for
	// User, Port and IdentityFile of hosts that do not carry them.
	ConfigFile string

	// UseAgent adds the keys of a running ssh agent.
	UseAgent bool

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// SSHDialer opens sessions over SSH.
type SSHDialer struct {
	opts      SSHOptions
	sshConfig *ssh_config.Config
}

// NewSSHDialer creates a dialer. The ssh config file is read once.
func NewSSHDialer(opts SSHOptions) (*SSHDialer, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	d := &SSHDialer{opts: opts}
	if opts.ConfigFile != "" {
		f, err := os.Open(expandHome(opts.ConfigFile))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open ssh config %s: %w", opts.ConfigFile, err)
		}
		if err == nil {
			defer f.Close()
			cfg, err := ssh_config.Decode(f)
			if err != nil {
				return nil, fmt.Errorf("failed to parse ssh config %s: %w", opts.ConfigFile, err)
			}
			d.sshConfig = cfg
		}
	}
	return d, nil
}

func (d *SSHDialer) lookup(alias, key string) string {
	if d.sshConfig == nil {
		return ""
	}
	v, err := d.sshConfig.Get(alias, key)
	if err != nil {
		return ""
	}
	return v
}

// Connect opens an SSH connection to host.
func (d *SSHDialer) Connect(ctx context.Context, host Host) (Session, error) {
	if host.User == "" {
		host.User = d.lookup(host.Name, "User")
	}
	if host.User == "" {
		host.User = d.opts.User
	}
	if host.Port == 0 {
		if p, err := strconv.Atoi(d.lookup(host.Name, "Port")); err == nil {
			host.Port = p
		}
	}
	addr := host.Addr()

	auth, agentConn, err := d.authMethods(host)
	if err != nil {
		return nil, &api.ExecutionError{Host: host.Name, Err: err}
	}

	cfg := &ssh.ClientConfig{
		User:    host.User,
		Auth:    auth,
		Timeout: d.opts.ConnectTimeout,
	}
	if d.opts.Insecure {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		db, err := knownhosts.NewDB(expandHome(d.opts.KnownHostsFile))
		if err != nil {
			closeQuietly(agentConn)
			return nil, &api.ExecutionError{Host: host.Name, Err: fmt.Errorf("failed to load known hosts: %w", err)}
		}
		cfg.HostKeyCallback = db.HostKeyCallback()
		cfg.HostKeyAlgorithms = db.HostKeyAlgorithms(addr)
	}

	logging.Debug(remoteSubsystem, "Connecting to %s@%s", host.User, addr)
	dialer := net.Dialer{Timeout: d.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeQuietly(agentConn)
		return nil, &api.ExecutionError{Host: host.Name, Err: fmt.Errorf("failed to reach %s: %w", addr, err)}
	}
	// The handshake itself has no timeout; a peer that accepts and stays
	// silent would block forever.
	deadline := time.Now().Add(d.opts.ConnectTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		closeQuietly(agentConn)
		return nil, &api.ExecutionError{Host: host.Name, Err: err}
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		closeQuietly(agentConn)
		return nil, &api.ExecutionError{Host: host.Name, Err: fmt.Errorf("ssh handshake with %s failed: %w", addr, err)}
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		closeQuietly(agentConn)
		return nil, &api.ExecutionError{Host: host.Name, Err: err}
	}

	return &sshSession{
		host:           host.Name,
		client:         ssh.NewClient(c, chans, reqs),
		agentConn:      agentConn,
		commandTimeout: d.opts.CommandTimeout,
	}, nil
}

func (d *SSHDialer) authMethods(host Host) ([]ssh.AuthMethod, io.Closer, error) {
	var methods []ssh.AuthMethod
	if host.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(host.PrivateKey))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid private key for %s: %w", host.Name, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if identity := d.lookup(host.Name, "IdentityFile"); identity != "" && host.PrivateKey == "" {
		pem, err := os.ReadFile(expandHome(identity))
		if err == nil {
			if signer, err := ssh.ParsePrivateKey(pem); err == nil {
				methods = append(methods, ssh.PublicKeys(signer))
			}
		}
	}

	var agentConn io.Closer
	if d.opts.UseAgent && sshagent.Available() {
		ag, conn, err := sshagent.New()
		if err != nil {
			logging.Warn(remoteSubsystem, "ssh agent unavailable: %v", err)
		} else {
			methods = append(methods, ssh.PublicKeysCallback(ag.Signers))
			if conn != nil {
				agentConn = conn
			}
		}
	}

	if len(methods) == 0 {
		return nil, nil, fmt.Errorf("no ssh credentials for %s", host.Name)
	}
	return methods, agentConn, nil
}

type sshSession struct {
	host           string
	client         *ssh.Client
	agentConn      io.Closer
	commandTimeout time.Duration
}

func (s *sshSession) Execute(ctx context.Context, argv []string) (string, error) {
	var stdout bytes.Buffer
	err := s.run(ctx, argv, nil, &stdout)
	return stdout.String(), err
}

func (s *sshSession) SendFile(ctx context.Context, content []byte, remotePath string) error {
	dir := filepath.Dir(remotePath)
	argv := Shell(fmt.Sprintf("mkdir -p %s && cat > %s", shellescape.Quote(dir), shellescape.Quote(remotePath)))
	var stdout bytes.Buffer
	return s.run(ctx, argv, bytes.NewReader(content), &stdout)
}

func (s *sshSession) run(ctx context.Context, argv []string, stdin io.Reader, out *bytes.Buffer) error {
	if s.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commandTimeout)
		defer cancel()
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return &api.ExecutionError{Host: s.host, Argv: argv, Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer sess.Close()

	var buf bytes.Buffer
	sess.Stdout = &buf
	sess.Stderr = &buf
	if stdin != nil {
		sess.Stdin = stdin
	}

	cmd := shellescape.QuoteCommand(argv)
	logging.Debug(remoteSubsystem, "[%s] %s", s.host, cmd)

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		sess.Close()
		<-done
		return &api.ExecutionError{Host: s.host, Argv: argv, Err: ctx.Err()}
	case err = <-done:
	}

	out.Write(buf.Bytes())
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &api.ExecutionError{Host: s.host, Argv: argv, ExitCode: exitErr.ExitStatus(), Output: buf.String()}
	}
	return &api.ExecutionError{Host: s.host, Argv: argv, Output: buf.String(), Err: err}
}

func (s *sshSession) Close() error {
	closeQuietly(s.agentConn)
	return s.client.Close()
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
