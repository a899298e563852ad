package config

import "fmt"

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
	// FlushTimeoutMS bounds how long the CLI waits for pending events on exit.
	FlushTimeoutMS int `json:"flush_timeout_ms"`
}

func (s *SentryConfig) SetDefaults() {
	if s.Environment == "" {
		s.Environment = "development"
	}
	if s.FlushTimeoutMS <= 0 {
		s.FlushTimeoutMS = 2000
	}
}

func (s SentryConfig) Validate() error {
	if s.TracesSampleRate < 0 || s.TracesSampleRate > 1 {
		return fmt.Errorf("sentry.traces_sample_rate must be within [0, 1], got %v", s.TracesSampleRate)
	}
	return nil
}
