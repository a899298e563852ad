package mqtt

import (
	"context"

	"github.com/kilianp07/taskalloc/pkg/export"
)

// ResultPublisher delivers allocation records to downstream consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, rec export.Record) error
}

// SituationSubscriber delivers raw situation payloads to handler. The
// subscription survives reconnects.
type SituationSubscriber interface {
	SubscribeSituations(handler func(payload []byte)) error
}

// Client is the transport used by the watch service.
type Client interface {
	ResultPublisher
	SituationSubscriber
	Disconnect()
}
