package exportdriver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goliatone/go-static-export/export"
)

const (
	defaultProbeTimeout = 2 * time.Second
	defaultStartTimeout = 10 * time.Second
	defaultPollInterval = 50 * time.Millisecond
	maxPollInterval     = 500 * time.Millisecond
	defaultGracePeriod  = 3 * time.Second
)

// Manager detects, spawns and stops browser driver processes.
type Manager struct {
	Profile export.BrowserProfile
	// Binary overrides driver discovery.
	Binary string
	// Args are passed to the driver before the port arguments.
	Args []string
	// Env is appended to the inherited environment of spawned drivers.
	Env []string
	// DriverURL is the driver endpoint. Its explicit port wins over the port
	// passed to the manager; empty means loopback.
	DriverURL string

	ProbeTimeout time.Duration
	StartTimeout time.Duration
	PollInterval time.Duration
	GracePeriod  time.Duration

	HTTPClient *http.Client
	Logger     export.Logger
	// Output receives driver stdout and stderr. Nil discards it.
	Output io.Writer

	lookupEnv func(string) (string, bool)
}

var _ export.DriverManager = (*Manager)(nil)

// NewManager returns a manager for profile with default bounds.
func NewManager(profile export.BrowserProfile) *Manager {
	return &Manager{Profile: profile}
}

// ConnectOrSpawn reuses a driver already answering on port, or spawns one.
// Drivers are only spawned for loopback endpoints.
func (m *Manager) ConnectOrSpawn(ctx context.Context, port int) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	port = m.endpointPort(port)
	baseURL := m.BaseURL(port)
	probeErr := m.Probe(ctx, port)
	if probeErr == nil {
		m.logger().Infof("driver already running at %s, connecting without ownership", baseURL)
		return newExternalHandle(port, baseURL), nil
	}
	if !m.endpoint(port).LocalDriver() {
		return nil, export.NewError(export.KindDriverUnavailable, fmt.Sprintf("no driver answering at %s and it is not a local endpoint", baseURL), probeErr)
	}
	return m.spawn(ctx, port)
}

// ConnectOnly returns a handle for a driver already answering on port.
func (m *Manager) ConnectOnly(ctx context.Context, port int) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	port = m.endpointPort(port)
	baseURL := m.BaseURL(port)
	if err := m.Probe(ctx, port); err != nil {
		return nil, export.NewError(export.KindDriverUnavailable, fmt.Sprintf("no driver answering at %s", baseURL), err)
	}
	return newExternalHandle(port, baseURL), nil
}

// Acquire resolves a handle, spawning a driver when spawn is set.
func (m *Manager) Acquire(ctx context.Context, port int, spawn bool) (export.DriverHandle, error) {
	var (
		h   *Handle
		err error
	)
	if spawn {
		h, err = m.ConnectOrSpawn(ctx, port)
	} else {
		h, err = m.ConnectOnly(ctx, port)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Release stops handle if this manager produced it.
func (m *Manager) Release(ctx context.Context, handle export.DriverHandle) error {
	if handle == nil {
		return nil
	}
	h, ok := handle.(*Handle)
	if !ok {
		return export.NewError(export.KindInternal, fmt.Sprintf("unexpected driver handle %T", handle), nil)
	}
	return m.Stop(ctx, h)
}

// Stop terminates an owned driver process. It is a no-op for external or
// already stopped handles and safe to call more than once.
func (m *Manager) Stop(ctx context.Context, h *Handle) error {
	if h == nil || !h.owned {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	h.stopMu.Lock()
	defer h.stopMu.Unlock()
	if h.State() == export.ProcessStopped {
		return nil
	}
	defer h.setState(export.ProcessStopped)

	if h.Exited() {
		return nil
	}

	m.logger().Debugf("stopping driver pid %d on port %d", h.Pid(), h.port)
	if err := terminate(h.cmd); err != nil {
		m.logger().Warnf("terminate driver pid %d: %v", h.Pid(), err)
	}

	grace := time.NewTimer(m.gracePeriod())
	defer grace.Stop()
	select {
	case <-h.done:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	m.logger().Warnf("driver pid %d did not exit after %s, killing", h.Pid(), m.gracePeriod())
	if err := forceKill(h.cmd); err != nil {
		return export.NewError(export.KindInternal, fmt.Sprintf("kill driver pid %d", h.Pid()), err)
	}

	reap := time.NewTimer(m.gracePeriod())
	defer reap.Stop()
	select {
	case <-h.done:
	case <-reap.C:
		return export.NewError(export.KindInternal, fmt.Sprintf("driver pid %d not reaped after kill", h.Pid()), nil)
	}
	return nil
}

// Probe performs a bounded liveness check against GET /status.
func (m *Manager) Probe(ctx context.Context, port int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.BaseURL(port)+"/status", nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("driver status returned %d", resp.StatusCode)
	}
	return nil
}

// BaseURL returns the endpoint for port.
func (m *Manager) BaseURL(port int) string {
	return m.endpoint(port).BaseURL()
}

func (m *Manager) endpoint(port int) export.Config {
	return export.Config{DriverURL: m.DriverURL, DriverPort: port}
}

func (m *Manager) endpointPort(port int) int {
	return m.endpoint(port).EndpointPort()
}

func (m *Manager) spawn(ctx context.Context, port int) (*Handle, error) {
	binary, err := m.locate()
	if err != nil {
		return nil, export.NewError(export.KindDriverUnavailable, fmt.Sprintf("%s binary not found", m.driverName()), err)
	}

	args := append(append([]string{}, m.Args...), m.Profile.DriverArgs(port)...)
	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(), m.Env...)
	if m.Output != nil {
		cmd.Stdout = m.Output
		cmd.Stderr = m.Output
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, export.NewError(export.KindDriverUnavailable, fmt.Sprintf("start %s", binary), err)
	}

	h := newOwnedHandle(port, m.BaseURL(port), cmd)
	m.logger().Debugf("spawned %s pid %d on port %d", binary, h.Pid(), port)

	if err := m.waitReady(ctx, h); err != nil {
		if stopErr := m.Stop(context.Background(), h); stopErr != nil {
			m.logger().Warnf("stop driver that never became ready: %v", stopErr)
		}
		return nil, export.NewError(export.KindDriverUnavailable, fmt.Sprintf("%s did not become ready on port %d", m.driverName(), port), err)
	}

	h.setState(export.ProcessRunning)
	m.logger().Infof("driver ready at %s (pid %d)", h.baseURL, h.Pid())
	return h, nil
}

func (m *Manager) waitReady(ctx context.Context, h *Handle) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.pollInterval()
	b.MaxInterval = maxPollInterval
	b.MaxElapsedTime = m.startTimeout()

	operation := func() error {
		if h.Exited() {
			return backoff.Permanent(fmt.Errorf("driver exited before becoming ready: %v", h.exitErr()))
		}
		return m.Probe(ctx, h.port)
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (m *Manager) locate() (string, error) {
	if strings.TrimSpace(m.Binary) != "" {
		return exec.LookPath(m.Binary)
	}
	lookup := m.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range m.Profile.DriverEnv {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return exec.LookPath(value)
		}
	}
	if m.Profile.DriverBinary == "" {
		return "", fmt.Errorf("profile %q names no driver binary", m.Profile.Name)
	}
	return exec.LookPath(m.Profile.DriverBinary)
}

func (m *Manager) driverName() string {
	if m.Profile.DriverBinary != "" {
		return m.Profile.DriverBinary
	}
	return "driver"
}

func (m *Manager) logger() export.Logger {
	if m.Logger == nil {
		return export.NopLogger{}
	}
	return m.Logger
}

func (m *Manager) httpClient() *http.Client {
	if m.HTTPClient == nil {
		return http.DefaultClient
	}
	return m.HTTPClient
}

func (m *Manager) probeTimeout() time.Duration {
	if m.ProbeTimeout <= 0 {
		return defaultProbeTimeout
	}
	return m.ProbeTimeout
}

func (m *Manager) startTimeout() time.Duration {
	if m.StartTimeout <= 0 {
		return defaultStartTimeout
	}
	return m.StartTimeout
}

func (m *Manager) pollInterval() time.Duration {
	if m.PollInterval <= 0 {
		return defaultPollInterval
	}
	return m.PollInterval
}

func (m *Manager) gracePeriod() time.Duration {
	if m.GracePeriod <= 0 {
		return defaultGracePeriod
	}
	return m.GracePeriod
}
