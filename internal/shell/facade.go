// Package shell exposes the operation set the UI collaborator invokes. It
// composes the supervisor, the remote client and the status poller; all
// asynchronous outcomes surface through the event sink.
package shell

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/events"
	"github.com/kvantos/patchbay/internal/infra/logger"
	"github.com/kvantos/patchbay/internal/poller"
	"github.com/kvantos/patchbay/internal/remote"
	"github.com/kvantos/patchbay/internal/supervisor"
)

type Facade struct {
	sup    *supervisor.Supervisor
	client *remote.Client
	sink   events.Sink
	log    zerolog.Logger

	mu        sync.Mutex
	runCancel context.CancelFunc // non-nil while a poll run is active

	// exit is swapped out in tests; CloseApp never returns otherwise.
	exit func(code int)
}

func NewFacade(sup *supervisor.Supervisor, client *remote.Client, sink events.Sink) *Facade {
	return &Facade{
		sup:    sup,
		client: client,
		sink:   sink,
		log:    logger.New("shell"),
		exit:   os.Exit,
	}
}

func (f *Facade) StartBackend() (string, error) {
	return f.sup.Start()
}

func (f *Facade) StopBackend() (string, error) {
	return f.sup.Stop()
}

// CheckHealth never errors; an unreachable daemon is simply "down".
func (f *Facade) CheckHealth() bool {
	return f.client.Health(context.Background())
}

func (f *Facade) LoadConfig() (domain.AppConfig, error) {
	return f.client.GetConfig(context.Background())
}

func (f *Facade) SaveConfig(cfg domain.AppConfig) (string, error) {
	if err := f.client.SetConfig(context.Background(), cfg); err != nil {
		return "", err
	}
	return "Configuration saved", nil
}

// StartUpdate kicks off an update run on the daemon and detaches one
// poller run to relay its progress. It returns as soon as the daemon has
// accepted the request; the caller observes everything after that through
// the event sink. A second call while a run is active is rejected, so two
// pollers can never interleave events.
func (f *Facade) StartUpdate(cfg domain.AppConfig) (string, error) {
	ctx, cancel := context.WithCancel(context.Background())

	f.mu.Lock()
	if f.runCancel != nil {
		f.mu.Unlock()
		cancel()
		return "", domain.ErrAlreadyRunning
	}
	f.runCancel = cancel
	f.mu.Unlock()

	if err := f.client.StartUpdate(ctx, cfg); err != nil {
		f.mu.Lock()
		f.runCancel = nil
		f.mu.Unlock()
		cancel()
		return "", err
	}

	go func() {
		defer func() {
			f.mu.Lock()
			f.runCancel = nil
			f.mu.Unlock()
			cancel()
		}()
		poller.New(f.client, f.sink).Run(ctx)
	}()

	return "Update started", nil
}

// CloseApp tears the shell down: any active poll run is cancelled, the
// daemon is stopped on a best-effort basis, then the process exits 0.
func (f *Facade) CloseApp() {
	f.mu.Lock()
	if f.runCancel != nil {
		f.runCancel()
	}
	f.mu.Unlock()

	if _, err := f.sup.Stop(); err != nil {
		f.log.Warn().Err(err).Msg("backend stop failed during shutdown")
	}
	f.exit(0)
}
