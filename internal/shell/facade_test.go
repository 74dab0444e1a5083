package shell

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/events"
	"github.com/kvantos/patchbay/internal/remote"
	"github.com/kvantos/patchbay/internal/supervisor"
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

func (r *recordSink) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.evts))
	copy(out, r.evts)
	return out
}

// fakeDaemon simulates the remote service: it accepts /update and serves a
// scripted /status sequence.
type fakeDaemon struct {
	mu    sync.Mutex
	snaps []domain.ProgressData
	i     int
}

func (d *fakeDaemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /update", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		snap := d.snaps[min(d.i, len(d.snaps)-1)]
		d.i++
		d.mu.Unlock()
		json.NewEncoder(w).Encode(snap)
	})
	return mux
}

func newTestFacade(url string, sink events.Sink) *Facade {
	sup := supervisor.New("sleep", []string{"60"}, sink)
	return NewFacade(sup, remote.NewClient(url), sink)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCheckHealthIsFalseWhenDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	facade := newTestFacade(srv.URL, &recordSink{})
	if facade.CheckHealth() {
		t.Error("expected CheckHealth to report down, not error")
	}
}

func TestStartUpdateStreamsRunThroughSink(t *testing.T) {
	daemon := &fakeDaemon{snaps: []domain.ProgressData{
		{
			Progress:     5,
			Total:        5,
			Logs:         []domain.LogEntry{{Message: "done", Type: domain.LogSuccess}},
			Completed:    true,
			StatusReport: &domain.StatusReport{Updated: []string{"a.bin"}},
		},
	}}
	srv := httptest.NewServer(daemon.handler())
	defer srv.Close()

	sink := &recordSink{}
	facade := newTestFacade(srv.URL, sink)

	result, err := facade.StartUpdate(domain.AppConfig{})
	if err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	if result != "Update started" {
		t.Fatalf("unexpected confirmation: %q", result)
	}

	waitFor(t, 5*time.Second, func() bool {
		for _, evt := range sink.snapshot() {
			if evt.Name == events.UpdateComplete {
				return true
			}
		}
		return false
	})

	names := []string{}
	for _, evt := range sink.snapshot() {
		names = append(names, evt.Name)
	}
	want := []string{events.UpdateProgress, events.LogMessage, events.UpdateComplete}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestStartUpdateRejectsConcurrentRun(t *testing.T) {
	daemon := &fakeDaemon{snaps: []domain.ProgressData{
		{Progress: 1, Total: 5}, // never completes
	}}
	srv := httptest.NewServer(daemon.handler())
	defer srv.Close()

	sink := &recordSink{}
	facade := newTestFacade(srv.URL, sink)

	if _, err := facade.StartUpdate(domain.AppConfig{}); err != nil {
		t.Fatalf("first StartUpdate failed: %v", err)
	}

	_, err := facade.StartUpdate(domain.AppConfig{})
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	// Ending the run frees the slot: closing the server makes the next
	// poll fail, which ends the run silently.
	srv.Close()
	waitFor(t, 5*time.Second, func() bool {
		facade.mu.Lock()
		defer facade.mu.Unlock()
		return facade.runCancel == nil
	})

	if _, err := facade.StartUpdate(domain.AppConfig{}); errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatal("run guard was not released after the run ended")
	}
}

func TestStartUpdateFailsWhenDaemonRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &recordSink{}
	facade := newTestFacade(srv.URL, sink)

	if _, err := facade.StartUpdate(domain.AppConfig{}); err == nil {
		t.Fatal("expected an error when the daemon rejects the update")
	}
	if len(sink.snapshot()) != 0 {
		t.Error("no poller run should start on a rejected update")
	}
}

func TestCloseAppExitsZero(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	facade := newTestFacade(srv.URL, &recordSink{})

	exitCode := -1
	facade.exit = func(code int) { exitCode = code }

	facade.CloseApp()
	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
}
