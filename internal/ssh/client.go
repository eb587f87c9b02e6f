package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/vbp1/magicwand/internal/log"
)

// Config describes connection parameters for an SSH session.
type Config struct {
	User     string        // remote user (required)
	Host     string        // remote host or host:port (required)
	Port     int           // used when Host carries no port; 0 means 22
	KeyPath  string        // path to private key; if empty, DefaultKeyPaths will be tried and agent auth is allowed as fallback
	Insecure bool          // if true: skip host key verification (StrictHostKeyChecking=no analogue)
	Timeout  time.Duration // dial timeout; if 0: DefaultTimeout

	ProxyJump string // [user@]host[:port] of a bastion, empty for a direct connection
}

// DefaultTimeout used when Config.Timeout==0.
const DefaultTimeout = 10 * time.Second

// DefaultKeyPaths tried when Config.KeyPath is empty.
var DefaultKeyPaths = []string{
	os.Getenv("HOME") + "/.ssh/id_ed25519",
	os.Getenv("HOME") + "/.ssh/id_rsa",
	os.Getenv("HOME") + "/.ssh/id_ecdsa",
}

// Client wraps ssh.Client and simplifies command execution.
// Close must be called when no longer needed.
type Client struct {
	cfg    Config
	client *ssh.Client
	jump   *ssh.Client
}

// Dial establishes SSH connection according to cfg.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.User == "" || cfg.Host == "" {
		return nil, fmt.Errorf("ssh: User and Host required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	authMethods, err := authMethodsForKey(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback(cfg.Insecure),
		Timeout:         cfg.Timeout,
	}

	addr := cfg.Addr()
	log.Component("ssh").Debug().Str("addr", addr).Str("user", cfg.User).Msg("ssh dial")

	type dialed struct{ client, jump *ssh.Client }
	connCh := make(chan dialed, 1)
	errCh := make(chan error, 1)
	go func() {
		if cfg.ProxyJump == "" {
			c, err := ssh.Dial("tcp", addr, sshCfg)
			if err != nil {
				errCh <- err
				return
			}
			connCh <- dialed{client: c}
			return
		}
		c, jump, err := dialVia(cfg, addr, sshCfg)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- dialed{client: c, jump: jump}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, err
	case d := <-connCh:
		return &Client{cfg: cfg, client: d.client, jump: d.jump}, nil
	}
}

// dialVia connects to addr through the ProxyJump host, reusing auth and host key settings.
func dialVia(cfg Config, addr string, sshCfg *ssh.ClientConfig) (*ssh.Client, *ssh.Client, error) {
	user, jumpAddr := jumpTarget(cfg.ProxyJump, cfg.User)
	jumpCfg := *sshCfg
	jumpCfg.User = user
	log.Component("ssh").Debug().Str("jump", jumpAddr).Str("addr", addr).Msg("ssh dial via jump host")

	jump, err := ssh.Dial("tcp", jumpAddr, &jumpCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh: jump host %s: %w", jumpAddr, err)
	}
	conn, err := jump.Dial("tcp", addr)
	if err != nil {
		jump.Close()
		return nil, nil, fmt.Errorf("ssh: %s via %s: %w", addr, jumpAddr, err)
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		jump.Close()
		return nil, nil, err
	}
	return ssh.NewClient(cc, chans, reqs), jump, nil
}

// Addr returns host:port, defaulting the port to 22.
func (cfg Config) Addr() string {
	if hasPort(cfg.Host) {
		return cfg.Host
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(port))
}

// Close underlying ssh.Client and the jump connection, if any.
func (c *Client) Close() error {
	err := c.client.Close()
	if c.jump != nil {
		if jerr := c.jump.Close(); err == nil {
			err = jerr
		}
	}
	return err
}

// Buffered is false: session stdout can be piped straight into a local process.
func (c *Client) Buffered() bool { return false }

func (c *Client) String() string { return "ssh://" + c.cfg.User + "@" + c.cfg.Addr() }

// Run executes cmd on remote host, attaching std streams to provided writers. If stdout/stderr nil: they are discarded.
func (c *Client) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil && err != io.EOF {
			log.Component("ssh").Debug().Err(err).Msg("ssh session close")
		}
	}()

	if stdout != nil {
		session.Stdout = stdout
	}
	if stderr != nil {
		session.Stderr = stderr
	}

	log.Component("ssh").Debug().Str("host", c.cfg.Host).Int("len", len(cmd)).Msg("ssh run")

	if err := session.Start(cmd); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Output runs cmd and returns its stdout. Stderr is only attached to the error.
func (c *Client) Output(ctx context.Context, cmd string) ([]byte, error) {
	out := &limitedBuffer{N: 1 << 20}
	errOut := &limitedBuffer{N: 64 << 10}
	if err := c.Run(ctx, cmd, out, errOut); err != nil {
		if msg := bytes.TrimSpace(errOut.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out.Bytes(), nil
}

// ----------------- helpers ------------------

func hasPort(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return true
		}
		if addr[i] == ']' { // IPv6 literals
			return false
		}
	}
	return false
}

func hostKeyCallback(insecure bool) ssh.HostKeyCallback {
	if insecure {
		return ssh.InsecureIgnoreHostKey()
	}

	// use standard OpenSSH known_hosts file
	knownPath := filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")
	cb, err := knownhosts.New(knownPath)
	if err != nil {
		log.Component("ssh").Warn().Err(err).Msg("cannot load known_hosts, falling back to insecure")
		return ssh.InsecureIgnoreHostKey()
	}
	return cb
}

func authMethodsForKey(keyPath string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("ssh: read key %s: %w", keyPath, err)
		}
		signer, err := signerFromKey(key)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else {
		// try default keys
		for _, p := range DefaultKeyPaths {
			if _, err := os.Stat(p); err == nil {
				key, err := os.ReadFile(p)
				if err != nil {
					continue
				}
				signer, err := signerFromKey(key)
				if err != nil {
					continue
				}
				methods = append(methods, ssh.PublicKeys(signer))
			}
		}
	}

	// agent
	if a, err := sshAgent(); err == nil && a != nil {
		methods = append(methods, ssh.PublicKeysCallback(a.Signers))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("ssh: no auth methods found (provide key or ensure agent running)")
	}
	return methods, nil
}

func signerFromKey(key []byte) (ssh.Signer, error) {
	// support encrypted keys (promptless): fail if passphrase protected
	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}
	return nil, fmt.Errorf("ssh: parse key: %w", err)
}

// sshAgent tries to connect to ssh-agent and return its client.
func sshAgent() (agent.Agent, error) {
	env := os.Getenv("SSH_AUTH_SOCK")
	if env == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}
	conn, err := net.Dial("unix", env)
	if err != nil {
		return nil, err
	}
	return agent.NewClient(conn), nil
}

// limitedBuffer prevents unbounded memory when capturing command output.
type limitedBuffer struct {
	buf bytes.Buffer
	N   int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.N > 0 && b.buf.Len()+len(p) > b.N {
		return 0, fmt.Errorf("ssh output exceeds %d bytes", b.N)
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Read(p []byte) (int, error) { return b.buf.Read(p) }

func (b *limitedBuffer) Bytes() []byte { return b.buf.Bytes() }
