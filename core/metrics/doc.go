package metrics

// Package metrics defines the sink interfaces used to observe allocation
// runs. Sinks like PromSink and InfluxSink live in infra/metrics and can be
// combined with NewMultiSink. Optional recorder interfaces let a sink opt
// into per-group loads, rebalance moves and publication outcomes.
