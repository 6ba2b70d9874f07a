package exportdriver

import (
	"os/exec"
	"sync"

	"github.com/goliatone/go-static-export/export"
)

// Handle tracks one driver endpoint. Owned handles wrap a process started by
// the manager; external handles only record the port that answered a probe.
type Handle struct {
	port    int
	baseURL string
	owned   bool

	stopMu sync.Mutex

	mu      sync.Mutex
	state   export.ProcessState
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

var _ export.DriverHandle = (*Handle)(nil)

func newExternalHandle(port int, baseURL string) *Handle {
	return &Handle{
		port:    port,
		baseURL: baseURL,
		state:   export.ProcessRunning,
	}
}

func newOwnedHandle(port int, baseURL string, cmd *exec.Cmd) *Handle {
	h := &Handle{
		port:    port,
		baseURL: baseURL,
		owned:   true,
		state:   export.ProcessNotStarted,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h
}

// Port returns the driver port.
func (h *Handle) Port() int {
	return h.port
}

// BaseURL returns the driver endpoint.
func (h *Handle) BaseURL() string {
	return h.baseURL
}

// Owned reports whether stopping the handle terminates a process.
func (h *Handle) Owned() bool {
	return h.owned
}

// State returns the current lifecycle state.
func (h *Handle) State() export.ProcessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Pid returns the driver process id, or 0 for external handles.
func (h *Handle) Pid() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Exited reports whether the owned process has already exited.
func (h *Handle) Exited() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) setState(state export.ProcessState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}

func (h *Handle) exitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}
