package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taskalloc/core/allocation"
	coremetrics "github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/core/runlog"
	"github.com/kilianp07/taskalloc/infra/mqtt"
)

type publishSink struct {
	coremetrics.NopSink
	mu  sync.Mutex
	evs []coremetrics.PublishEvent
}

func (p *publishSink) RecordPublish(ev coremetrics.PublishEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	return nil
}

func (p *publishSink) events() []coremetrics.PublishEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]coremetrics.PublishEvent(nil), p.evs...)
}

func situationPayload(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "situation", "testdata", "three_vs_two.json"))
	require.NoError(t, err)
	return data
}

type fixture struct {
	svc    *Service
	client *mqtt.MockClient
	store  *runlog.JSONLStore
	sink   *publishSink
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	engine, err := allocation.NewEngine(allocation.DefaultParams())
	require.NoError(t, err)
	store, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	client := mqtt.NewMockClient()
	sink := &publishSink{}
	svc, err := NewWithDeps(Deps{Engine: engine, Client: client, Store: store, Sink: sink})
	require.NoError(t, err)
	return fixture{svc: svc, client: client, store: store, sink: sink}
}

func TestHandlePublishesAndLogs(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Handle(context.Background(), situationPayload(t))
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Metadata.AttackAgents)
	assert.Equal(t, 2, rec.Metadata.Groups)

	pub := f.client.Published()
	require.Len(t, pub, 1)
	assert.Equal(t, rec.RunID, pub[0].RunID)

	stored, err := f.store.Query(context.Background(), runlog.Query{RunID: rec.RunID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.Membership(), stored[0].Membership())

	evs := f.sink.events()
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Success)
	assert.Equal(t, "mqtt", evs[0].Transport)
}

func TestHandleRejectsBadPayload(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
	assert.Empty(t, f.client.Published())
	assert.Empty(t, f.sink.events())
}

func TestHandlePublishFailureStillLogs(t *testing.T) {
	f := newFixture(t)
	f.client.Fail = true
	rec, err := f.svc.Handle(context.Background(), situationPayload(t))
	require.Error(t, err)

	stored, err := f.store.Query(context.Background(), runlog.Query{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.RunID, stored[0].RunID)
	evs := f.sink.events()
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Success)
}

func TestOfferKeepsLatest(t *testing.T) {
	f := newFixture(t)
	f.svc.offer([]byte("one"))
	f.svc.offer([]byte("two"))
	f.svc.offer([]byte("three"))
	assert.Equal(t, uint64(2), f.svc.Dropped())
	assert.Equal(t, []byte("three"), f.svc.take())
	assert.Nil(t, f.svc.take())

	status := f.svc.Status()
	assert.Equal(t, uint64(2), status["superseded"])
	assert.Equal(t, uint64(0), status["runs"])
}

func TestRunProcessesDeliveredSituations(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	payload := situationPayload(t)
	require.Eventually(t, func() bool {
		f.client.Deliver(payload)
		return len(f.client.Published()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	assert.GreaterOrEqual(t, f.svc.Runs(), uint64(1))
}

func TestNewWithDepsRequiresCollaborators(t *testing.T) {
	if _, err := NewWithDeps(Deps{Client: mqtt.NewMockClient()}); err == nil {
		t.Fatalf("expected missing engine error")
	}
	engine, err := allocation.NewEngine(allocation.DefaultParams())
	require.NoError(t, err)
	if _, err := NewWithDeps(Deps{Engine: engine}); err == nil {
		t.Fatalf("expected missing client error")
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Close())
}
