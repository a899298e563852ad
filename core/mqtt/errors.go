package mqtt

import "errors"

var (
	// ErrPublishTimeout is returned when the broker does not confirm a publish in time.
	ErrPublishTimeout = errors.New("timeout waiting for publish confirmation")
	// ErrNoTopic is returned when a publish or subscribe has no topic configured.
	ErrNoTopic = errors.New("mqtt topic not configured")
)
