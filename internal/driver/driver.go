// Package driver starts, polls and stops the Chrome process the browser
// path scrapes through.
package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/varoOP/unityscrape/internal/browser"
	"github.com/varoOP/unityscrape/internal/domain"
)

// Both the legacy headless shell and --headless=new put this token in the
// user agent; only the legacy shell puts it in the product name.
const headlessToken = "HeadlessChrome"

type Config struct {
	BinaryPath string
	Host       string
	Port       int
	Headless   bool
	// Args are appended after the flags the manager always passes.
	Args []string
	// Env is added to the environment of the spawned process.
	Env          []string
	StartTimeout time.Duration
	StopTimeout  time.Duration
	PollInterval time.Duration
}

// ConfigFrom converts the user facing driver settings.
func ConfigFrom(c domain.DriverConfig) Config {
	return Config{
		BinaryPath:   c.BinaryPath,
		Host:         c.Host,
		Port:         c.Port,
		Headless:     c.Headless,
		Args:         c.Args,
		StartTimeout: c.StartTimeout,
		StopTimeout:  c.StopTimeout,
	}
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 20 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return domain.NewError(domain.CodeInvalidConfig, fmt.Sprintf("driver port %d out of range", c.Port), nil)
	}
	return nil
}

func (c Config) endpoint() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DialFunc attaches a tab to the browser behind a DevTools websocket URL.
type DialFunc func(ctx context.Context, wsURL string, opts browser.Options) (browser.Tab, error)

func dialChrome(ctx context.Context, wsURL string, opts browser.Options) (browser.Tab, error) {
	return browser.Dial(ctx, wsURL, opts)
}

type Option func(*Manager)

func WithDialFunc(dial DialFunc) Option {
	return func(m *Manager) {
		m.dial = dial
	}
}

// WithTabOptions sets the options every connected tab is created with.
func WithTabOptions(opts browser.Options) Option {
	return func(m *Manager) {
		m.tabOpts = opts
	}
}

type versionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func (v *versionInfo) headless() bool {
	return strings.Contains(v.UserAgent, headlessToken) || strings.HasPrefix(v.Browser, headlessToken)
}

// Process is a driver the manager started or found already running.
type Process struct {
	Endpoint     string
	WebSocketURL string
	Product      string
	Headless     bool
	// Reused processes were running before Start and are not stopped.
	Reused bool
	PID    int

	cmd         *exec.Cmd
	done        chan struct{}
	waitErr     error
	userDataDir string
	stopOnce    sync.Once
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	if p == nil {
		return false
	}
	if p.done == nil {
		return p.Reused
	}

	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

type Manager struct {
	log     zerolog.Logger
	cfg     Config
	client  *resty.Client
	dial    DialFunc
	tabOpts browser.Options
}

func NewManager(log zerolog.Logger, cfg Config, opts ...Option) *Manager {
	cfg.setDefaults()

	client := resty.New().
		SetTimeout(time.Second)

	m := &Manager{
		log:    log.With().Str("module", "driver").Logger(),
		cfg:    cfg,
		client: client,
		dial:   dialChrome,
	}
	m.tabOpts.Log = log

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) version(ctx context.Context) (*versionInfo, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&versionInfo{}).
		Get(m.cfg.endpoint() + "/json/version")
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("status endpoint returned %s", resp.Status())
	}

	info := resp.Result().(*versionInfo)
	if info.WebSocketDebuggerURL == "" {
		return nil, errors.New("status endpoint did not advertise a websocket url")
	}

	return info, nil
}

func (m *Manager) args(userDataDir string) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(m.cfg.Port),
		"--remote-debugging-address=" + m.cfg.Host,
		"--user-data-dir=" + userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if m.cfg.Headless {
		args = append(args, "--headless=new")
	}
	return append(args, m.cfg.Args...)
}

// Start returns a ready driver. A driver already answering on the configured
// port is reused; otherwise the binary is spawned and polled until its
// status endpoint responds or StartTimeout elapses.
func (m *Manager) Start(ctx context.Context) (*Process, error) {
	if err := m.cfg.validate(); err != nil {
		return nil, err
	}

	if info, err := m.version(ctx); err == nil {
		m.log.Debug().Str("endpoint", m.cfg.endpoint()).Str("product", info.Browser).Msg("reusing running driver")
		return &Process{
			Endpoint:     m.cfg.endpoint(),
			WebSocketURL: info.WebSocketDebuggerURL,
			Product:      info.Browser,
			Headless:     info.headless(),
			Reused:       true,
		}, nil
	}

	if m.cfg.BinaryPath == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, "driver binary_path is required to spawn a driver", nil)
	}

	dir, err := os.MkdirTemp("", "unityscrape-driver-")
	if err != nil {
		return nil, domain.NewError(domain.CodeStartFailed, "create user data dir", err)
	}

	cmd := exec.Command(m.cfg.BinaryPath, m.args(dir)...)
	cmd.Env = append(os.Environ(), m.cfg.Env...)

	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, domain.NewError(domain.CodeStartFailed, m.cfg.BinaryPath, err)
	}

	p := &Process{
		Endpoint:    m.cfg.endpoint(),
		Headless:    m.cfg.Headless,
		PID:         cmd.Process.Pid,
		cmd:         cmd,
		done:        make(chan struct{}),
		userDataDir: dir,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	m.log.Debug().Int("pid", p.PID).Str("binary", m.cfg.BinaryPath).Msg("spawned driver")

	info, err := m.waitReady(ctx, p)
	if err != nil {
		m.Stop(p)
		return nil, err
	}

	p.WebSocketURL = info.WebSocketDebuggerURL
	p.Product = info.Browser
	if info.headless() {
		p.Headless = true
	}

	m.log.Info().Int("pid", p.PID).Str("product", p.Product).Msg("driver ready")

	return p, nil
}

func (m *Manager) waitReady(ctx context.Context, p *Process) (*versionInfo, error) {
	startCtx, cancel := context.WithTimeout(ctx, m.cfg.StartTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.PollInterval
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	exited := func() error {
		select {
		case <-p.done:
			return domain.NewError(domain.CodeStartFailed, "driver exited before it was ready", p.waitErr)
		default:
			return nil
		}
	}

	var info *versionInfo
	err := backoff.Retry(func() error {
		if err := exited(); err != nil {
			return backoff.Permanent(err)
		}

		v, err := m.version(startCtx)
		if err != nil {
			return err
		}
		info = v
		return nil
	}, backoff.WithContext(b, startCtx))
	if err == nil {
		return info, nil
	}

	if domain.CodeOf(err) != "" {
		return nil, err
	}
	if err := exited(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, domain.NewError(domain.CodeStartFailed, "start cancelled", ctx.Err())
	}
	return nil, domain.NewError(domain.CodeStartTimeout, fmt.Sprintf("driver not ready after %s", m.cfg.StartTimeout), err)
}

// Connect attaches a new tab to p. The requested headless mode must match
// what the process runs with.
func (m *Manager) Connect(ctx context.Context, p *Process, headless bool) (browser.Tab, error) {
	if !p.Alive() {
		return nil, domain.NewError(domain.CodeConnectFailed, "driver is not running", nil)
	}

	if p.Headless != headless {
		return nil, domain.NewError(domain.CodeConnectFailed,
			fmt.Sprintf("requested headless=%t but driver %q runs headless=%t", headless, p.Product, p.Headless), nil)
	}

	if p.WebSocketURL == "" {
		return nil, domain.NewError(domain.CodeConnectFailed, "driver did not advertise a websocket url", nil)
	}

	tab, err := m.dial(ctx, p.WebSocketURL, m.tabOpts)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeConnectFailed {
			return nil, err
		}
		return nil, domain.NewError(domain.CodeConnectFailed, p.WebSocketURL, err)
	}

	return tab, nil
}

// Stop terminates a process started by this manager and removes its
// profile directory. It is safe to call with nil, more than once, and on a
// reused process (which is left running).
func (m *Manager) Stop(p *Process) {
	if p == nil {
		return
	}

	p.stopOnce.Do(func() {
		if p.Reused || p.cmd == nil {
			m.log.Debug().Str("endpoint", p.Endpoint).Msg("leaving reused driver running")
			return
		}

		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			m.log.Warn().Err(err).Int("pid", p.PID).Msg("could not kill driver")
		}

		select {
		case <-p.done:
		case <-time.After(m.cfg.StopTimeout):
			m.log.Warn().Int("pid", p.PID).Dur("timeout", m.cfg.StopTimeout).Msg("driver did not exit in time")
		}

		if err := os.RemoveAll(p.userDataDir); err != nil {
			m.log.Warn().Err(err).Str("dir", p.userDataDir).Msg("could not remove user data dir")
		}

		m.log.Debug().Int("pid", p.PID).Msg("driver stopped")
	})
}
