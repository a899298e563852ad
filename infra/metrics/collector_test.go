package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taskalloc/core/events"
	coremetrics "github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/internal/eventbus"
)

type failureSink struct {
	coremetrics.NopSink
	mu       sync.Mutex
	failures []coremetrics.FailureEvent
}

func (f *failureSink) RecordFailure(ev coremetrics.FailureEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, ev)
	return nil
}

func (f *failureSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

func TestEventCollectorRecordsFailures(t *testing.T) {
	bus := eventbus.NewTyped[events.RunEvent]()
	defer bus.Close()
	sink := &failureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	// the collector subscribes synchronously, so nothing published below is lost
	bus.Publish(events.RunEvent{RunID: "r1", Kind: events.KindState, State: "shapley_computed"})
	bus.Publish(events.RunEvent{RunID: "r1", Kind: events.KindFailed, State: "initialized", Err: errors.New("boom"), Time: time.Now()})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	got := sink.failures[0]
	sink.mu.Unlock()
	require.Equal(t, "r1", got.RunID)
	require.Equal(t, "initialized", got.State)
	require.Equal(t, "boom", got.Error)
}

type failingRecorder struct {
	failureSink
}

func (f *failingRecorder) RecordFailure(ev coremetrics.FailureEvent) error {
	_ = f.failureSink.RecordFailure(ev)
	return errors.New("sink down")
}

func TestEventCollectorDrainsBeforeDone(t *testing.T) {
	bus := eventbus.NewTyped[events.RunEvent]()
	sink := &failureSink{}
	done := StartEventCollector(context.Background(), bus, sink)

	bus.Publish(events.RunEvent{RunID: "r2", Kind: events.KindFailed, Err: errors.New("no defense")})
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("collector did not stop after bus close")
	}
	require.Equal(t, 1, sink.count())
}

func TestEventCollectorKeepsGoingOnSinkError(t *testing.T) {
	bus := eventbus.NewTyped[events.RunEvent]()
	sink := &failingRecorder{}
	done := StartEventCollector(context.Background(), bus, sink)

	bus.Publish(events.RunEvent{RunID: "r3", Kind: events.KindFailed})
	bus.Publish(events.RunEvent{RunID: "r4", Kind: events.KindFailed})
	bus.Close()
	<-done
	require.Equal(t, 2, sink.count())
}

func TestEventCollectorIgnoresSinksWithoutRecorder(t *testing.T) {
	bus := eventbus.NewTyped[events.RunEvent]()
	defer bus.Close()
	done := StartEventCollector(context.Background(), bus, runOnlySink{})
	bus.Publish(events.RunEvent{Kind: events.KindFailed})
	require.Zero(t, bus.Dropped())
	select {
	case <-done:
	default:
		t.Fatalf("expected closed done channel when nothing is collected")
	}
}

type runOnlySink struct{}

func (runOnlySink) RecordRun(coremetrics.RunRecord) error { return nil }
