package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/taskalloc/config"
	coremon "github.com/kilianp07/taskalloc/core/monitoring"
)

type recordingTransport struct {
	events []*sentry.Event
}

func (r *recordingTransport) Configure(sentry.ClientOptions) {}
func (r *recordingTransport) SendEvent(e *sentry.Event)      { r.events = append(r.events, e) }
func (r *recordingTransport) Flush(time.Duration) bool       { return true }
func (r *recordingTransport) Close()                         {}

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	mon, err := NewSentryMonitor(config.SentryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := mon.(coremon.NopMonitor); !ok {
		t.Fatalf("expected NopMonitor, got %T", mon)
	}
}

func TestSentryMonitorTagsEvents(t *testing.T) {
	tr := &recordingTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Dsn: "https://key@example.com/1", Transport: tr})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	mon := &sentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}

	mon.CaptureException(nil, nil)
	mon.CaptureException(errors.New("publish failed"), map[string]string{"module": "mqtt"})
	mon.CapturePanic("boom", map[string]string{"module": "watch"})
	mon.Flush(time.Second)

	if len(tr.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(tr.events))
	}
	if tr.events[0].Tags["module"] != "mqtt" {
		t.Fatalf("exception tags not set: %v", tr.events[0].Tags)
	}
	if tr.events[1].Tags["module"] != "watch" || tr.events[1].Level != sentry.LevelFatal {
		t.Fatalf("panic event not tagged: %v %v", tr.events[1].Tags, tr.events[1].Level)
	}
}
