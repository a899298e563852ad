package metrics

import (
	"context"

	"github.com/kilianp07/taskalloc/core/events"
	coremetrics "github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/infra/logger"
	"github.com/kilianp07/taskalloc/internal/eventbus"
)

// StartEventCollector subscribes to the run event bus and records failed
// runs on sinks implementing FailureRecorder. It stops when the context is
// canceled or the bus is closed; the returned channel is closed once every
// event delivered before that point has been recorded.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.RunEvent], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	rec, ok := sink.(coremetrics.FailureRecorder)
	if !ok {
		close(done)
		return done
	}
	log := logger.New("event-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if ev.Kind != events.KindFailed {
					continue
				}
				msg := ""
				if ev.Err != nil {
					msg = ev.Err.Error()
				}
				fe := coremetrics.FailureEvent{RunID: ev.RunID, State: ev.State, Error: msg, Time: ev.Time}
				if err := rec.RecordFailure(fe); err != nil {
					log.Errorf("record failure %s: %v", ev.RunID, err)
				}
			}
		}
	}()
	return done
}
