package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesSent      *prometheus.CounterVec
	sendErrors      prometheus.Counter
	controlReceived *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, *prometheus.CounterVec) {
	sent := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_frames_sent_total",
			Help: "Number of UDP frames sent to the command node",
		},
		[]string{"msg"},
	)
	errs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_send_errors_total",
			Help: "Number of UDP frames that failed to send",
		},
	)
	ctrl := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_control_received_total",
			Help: "Number of control messages received from the command node",
		},
		[]string{"type"},
	)
	return sent, errs, ctrl
}

func init() {
	framesSent, sendErrors, controlReceived = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers telemetry metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(framesSent, sendErrors, controlReceived)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	framesSent, sendErrors, controlReceived = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
