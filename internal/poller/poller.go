// Package poller turns the daemon's pull-based /status endpoint into a
// push-based event stream.
package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/events"
	"github.com/kvantos/patchbay/internal/infra/logger"
)

// DefaultInterval is the fixed inter-poll delay.
const DefaultInterval = 500 * time.Millisecond

// StatusSource is the one remote operation the poller needs.
type StatusSource interface {
	Status(ctx context.Context) (*domain.ProgressData, error)
}

// Poller runs one status-streaming loop per update run. A Poller is not
// reused: the log watermark belongs to a single run.
type Poller struct {
	source   StatusSource
	sink     events.Sink
	interval time.Duration
	log      zerolog.Logger
}

func New(source StatusSource, sink events.Sink) *Poller {
	return &Poller{
		source:   source,
		sink:     sink,
		interval: DefaultInterval,
		log:      logger.New("poller"),
	}
}

// Run polls until the daemon reports a terminal snapshot, the daemon
// becomes unreachable, or ctx is cancelled. Unreachability ends the run
// silently: no event is emitted for a failed poll.
//
// Per successful poll the emission order is fixed: update_progress first,
// then one log_message per newly appended entry in append order, then -
// on a terminal snapshot - update_complete and/or update_error.
func (p *Poller) Run(ctx context.Context) {
	delivered := 0

	for {
		status, err := p.source.Status(ctx)
		if err != nil {
			p.log.Debug().Err(err).Msg("status poll failed, ending run")
			return
		}
		if status == nil {
			// No decodable snapshot this round; keep polling.
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
			}
			continue
		}

		p.sink.Publish(events.Event{
			Name:    events.UpdateProgress,
			Payload: events.ProgressPayload{Progress: status.Progress, Total: status.Total},
		})

		if len(status.Logs) > delivered {
			for _, entry := range status.Logs[delivered:] {
				p.sink.Publish(events.Event{Name: events.LogMessage, Payload: entry})
			}
			delivered = len(status.Logs)
		}

		if status.Completed {
			if status.StatusReport != nil {
				p.sink.Publish(events.Event{Name: events.UpdateComplete, Payload: *status.StatusReport})
			}
			if status.Error != "" {
				p.sink.Publish(events.Event{Name: events.UpdateError, Payload: status.Error})
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}
