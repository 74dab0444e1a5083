// Package supervisor owns the lifecycle of the single patcher daemon
// process launched by the shell.
package supervisor

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kvantos/patchbay/internal/events"
	"github.com/kvantos/patchbay/internal/infra/logger"
)

// Results returned to the UI collaborator.
const (
	ResultStarted    = "Backend started successfully"
	ResultRunning    = "Backend already running"
	ResultStopped    = "Backend stopped"
	ResultNotRunning = "Backend was not running"
)

// handle wraps one spawned daemon process. done is closed by the reaper
// goroutine once Wait returns, which is the only liveness signal: a child
// that exited stays a zombie until its Wait completes, so signal-based
// probing would report it alive.
type handle struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (h *handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Supervisor holds at most one live daemon handle behind a lock. The lock
// is held across check-and-spawn and take-and-terminate only, never across
// the startup grace wait or the exit wait.
type Supervisor struct {
	mu   sync.Mutex
	proc *handle

	binary string
	args   []string
	sink   events.Sink
	log    zerolog.Logger

	// startupGrace is how long to wait after a spawn for the daemon to
	// bind its port before announcing backend_started.
	startupGrace time.Duration

	// stopGrace bounds the wait for a signalled process to exit before
	// escalating to a forceful kill.
	stopGrace time.Duration
}

func New(binary string, args []string, sink events.Sink) *Supervisor {
	return &Supervisor{
		binary:       binary,
		args:         args,
		sink:         sink,
		log:          logger.New("supervisor"),
		startupGrace: 2 * time.Second,
		stopGrace:    5 * time.Second,
	}
}

// Start spawns the daemon if it is not already running. Calling Start on a
// live daemon is a no-op, not an error. A handle whose process has exited
// is cleared before the spawn decision, so at most one live handle ever
// exists.
func (s *Supervisor) Start() (string, error) {
	s.mu.Lock()
	if s.proc != nil {
		if !s.proc.exited() {
			s.mu.Unlock()
			return ResultRunning, nil
		}
		s.log.Debug().Msg("previous daemon exited, clearing handle")
		s.proc = nil
	}

	cmd := exec.Command(s.binary, s.args...)
	// stdout/stderr are discarded so the child never blocks on a full pipe;
	// the daemon does its own logging.
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("failed to start backend: %w", err)
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()
	s.proc = h
	s.mu.Unlock()

	s.log.Info().Int("pid", cmd.Process.Pid).Msg("daemon spawned")

	// Give the daemon time to bind its listening port before anyone acts
	// on the announcement.
	time.Sleep(s.startupGrace)
	s.sink.Publish(events.Event{Name: events.BackendStarted})

	return ResultStarted, nil
}

// Stop takes ownership of the current handle, requests termination and
// waits for the OS to confirm the exit. The wait is bounded: a daemon that
// ignores SIGTERM is killed after stopGrace. Stop with no live handle
// succeeds with ResultNotRunning.
func (s *Supervisor) Stop() (string, error) {
	s.mu.Lock()
	h := s.proc
	s.proc = nil
	s.mu.Unlock()

	if h == nil {
		return ResultNotRunning, nil
	}

	if !h.exited() {
		if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.log.Debug().Err(err).Msg("SIGTERM failed, process likely gone")
		}
	}

	select {
	case <-h.done:
	case <-time.After(s.stopGrace):
		s.log.Warn().Msg("daemon ignored SIGTERM, killing")
		if err := h.cmd.Process.Kill(); err != nil {
			return "", fmt.Errorf("failed to stop backend: %w", err)
		}
		<-h.done
	}

	s.log.Info().Msg("daemon stopped")
	return ResultStopped, nil
}
