package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/kvantos/patchbay/internal/events"
)

type recordSink struct {
	mu   sync.Mutex
	evts []events.Event
}

func (r *recordSink) Publish(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, evt)
}

func (r *recordSink) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.evts {
		if e.Name == name {
			n++
		}
	}
	return n
}

func newTestSupervisor(sink events.Sink, args ...string) *Supervisor {
	s := New("sleep", args, sink)
	s.startupGrace = 10 * time.Millisecond
	s.stopGrace = 2 * time.Second
	return s
}

func TestStartIsIdempotent(t *testing.T) {
	sink := &recordSink{}
	s := newTestSupervisor(sink, "60")
	defer s.Stop()

	result, err := s.Start()
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if result != ResultStarted {
		t.Fatalf("first start: expected %q, got %q", ResultStarted, result)
	}

	result, err = s.Start()
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if result != ResultRunning {
		t.Fatalf("second start: expected %q, got %q", ResultRunning, result)
	}

	if got := sink.count(events.BackendStarted); got != 1 {
		t.Errorf("expected one backend_started event, got %d", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sink := &recordSink{}
	s := newTestSupervisor(sink, "60")

	if _, err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	result, err := s.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result != ResultStopped {
		t.Fatalf("first stop: expected %q, got %q", ResultStopped, result)
	}

	result, err = s.Stop()
	if err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if result != ResultNotRunning {
		t.Fatalf("second stop: expected %q, got %q", ResultNotRunning, result)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := newTestSupervisor(&recordSink{}, "60")

	result, err := s.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result != ResultNotRunning {
		t.Fatalf("expected %q, got %q", ResultNotRunning, result)
	}
}

func TestStartClearsExitedHandle(t *testing.T) {
	sink := &recordSink{}
	s := newTestSupervisor(sink, "0")
	defer s.Stop()

	if _, err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Wait for the short-lived child to exit and be reaped.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		exited := s.proc != nil && s.proc.exited()
		s.mu.Unlock()
		if exited {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("child process never exited")
		}
		time.Sleep(10 * time.Millisecond)
	}

	result, err := s.Start()
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if result != ResultStarted {
		t.Fatalf("expected a fresh spawn after exit, got %q", result)
	}
	if got := sink.count(events.BackendStarted); got != 2 {
		t.Errorf("expected two backend_started events, got %d", got)
	}
}

func TestStartSpawnFailure(t *testing.T) {
	s := New("/nonexistent/patchbay-daemon", nil, &recordSink{})
	s.startupGrace = time.Millisecond

	if _, err := s.Start(); err == nil {
		t.Fatal("expected an error for a missing executable")
	}

	result, err := s.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result != ResultNotRunning {
		t.Fatalf("slot should stay empty after a failed spawn, got %q", result)
	}
}

func TestConcurrentStartSpawnsOnce(t *testing.T) {
	sink := &recordSink{}
	s := newTestSupervisor(sink, "60")
	defer s.Stop()

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.Start()
		}(i)
	}
	wg.Wait()

	started := 0
	for _, r := range results {
		if r == ResultStarted {
			started++
		}
	}
	if started != 1 {
		t.Fatalf("expected exactly one spawn across concurrent starts, got %d (%v)", started, results)
	}
}
