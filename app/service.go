// Package app wires the allocation engine to its transports for the watch
// service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/taskalloc/config"
	"github.com/kilianp07/taskalloc/core/allocation"
	"github.com/kilianp07/taskalloc/core/events"
	corelogger "github.com/kilianp07/taskalloc/core/logger"
	coremetrics "github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/core/monitoring"
	coremqtt "github.com/kilianp07/taskalloc/core/mqtt"
	"github.com/kilianp07/taskalloc/core/runlog"
	"github.com/kilianp07/taskalloc/infra/logger"
	"github.com/kilianp07/taskalloc/infra/metrics"
	"github.com/kilianp07/taskalloc/infra/mqtt"
	"github.com/kilianp07/taskalloc/internal/eventbus"
	"github.com/kilianp07/taskalloc/pkg/export"
	"github.com/kilianp07/taskalloc/situation"
)

// Deps are the collaborators of a Service. Store, Sink, Bus and Log are
// optional.
type Deps struct {
	Engine    *allocation.Engine
	Client    coremqtt.Client
	Store     runlog.Store
	Sink      coremetrics.MetricsSink
	Bus       *eventbus.TypedBus[events.RunEvent]
	Converter situation.Converter
	Log       logger.Logger
	PromAddr  string
}

// Service allocates every situation received on the situation topic and
// publishes the record on the result topic. Only the latest pending
// situation is kept: a payload arriving while a run is in progress replaces
// any payload still waiting.
type Service struct {
	d   Deps
	log logger.Logger

	mu      sync.Mutex
	pending []byte
	wake    chan struct{}
	dropped atomic.Uint64
	runs    atomic.Uint64
}

// New builds the service and its collaborators from cfg.
func New(cfg *config.Config) (*Service, error) {
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	bus := eventbus.NewTyped[events.RunEvent]()
	engine, err := allocation.NewEngine(cfg.Allocation,
		allocation.WithLogger(logger.New("allocation")),
		allocation.WithSink(sink),
		allocation.WithBus(bus),
	)
	if err != nil {
		return nil, fmt.Errorf("allocation engine: %w", err)
	}
	client, err := mqtt.NewPahoClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		client.Disconnect()
		return nil, fmt.Errorf("run log: %w", err)
	}
	return NewWithDeps(Deps{
		Engine:   engine,
		Client:   client,
		Store:    store,
		Sink:     sink,
		Bus:      bus,
		Log:      logger.New("watch"),
		PromAddr: cfg.Metrics.PrometheusAddr,
	})
}

// NewWithDeps builds a service from explicit collaborators.
func NewWithDeps(d Deps) (*Service, error) {
	if d.Engine == nil {
		return nil, errors.New("app: engine is required")
	}
	if d.Client == nil {
		return nil, errors.New("app: mqtt client is required")
	}
	if d.Sink == nil {
		d.Sink = coremetrics.NopSink{}
	}
	return &Service{d: d, log: corelogger.OrNop(d.Log), wake: make(chan struct{}, 1)}, nil
}

// Dropped returns how many situations were superseded before they ran.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// Runs returns how many situations were processed, successfully or not.
func (s *Service) Runs() uint64 { return s.runs.Load() }

// Status reports the service counters served on /status.
func (s *Service) Status() map[string]any {
	out := map[string]any{"runs": s.Runs(), "superseded": s.Dropped()}
	if s.d.Bus != nil {
		out["events_dropped"] = s.d.Bus.Dropped()
	}
	return out
}

// offer stores payload as the next situation to allocate.
func (s *Service) offer(payload []byte) {
	s.mu.Lock()
	if s.pending != nil {
		s.dropped.Add(1)
	}
	s.pending = append([]byte(nil), payload...)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// Run subscribes to situations and processes them until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.d.Bus, s.d.Sink)
	if s.d.PromAddr != "" {
		monitoring.Go(map[string]string{"module": "prom-server"}, func() {
			if err := metrics.StartPromServer(ctx, s.d.PromAddr, s.Status); err != nil {
				s.log.Errorf("prom server: %v", err)
				monitoring.CaptureException(err, map[string]string{"module": "prom-server"})
			}
		})
	}
	if err := s.d.Client.SubscribeSituations(s.offer); err != nil {
		return fmt.Errorf("subscribe situations: %w", err)
	}
	s.log.Infof("watching for situations")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			payload := s.take()
			if payload == nil {
				continue
			}
			if _, err := s.Handle(ctx, payload); err != nil {
				s.log.Errorf("situation: %v", err)
				monitoring.CaptureException(err, map[string]string{"module": "watch"})
			}
		}
	}
}

// Handle runs one allocation for a JSON situation payload, publishes the
// record and appends it to the run log.
func (s *Service) Handle(ctx context.Context, payload []byte) (export.Record, error) {
	s.runs.Add(1)
	sit, err := situation.ParseJSON(payload)
	if err != nil {
		return export.Record{}, err
	}
	conv, err := s.d.Converter.Convert(sit)
	if err != nil {
		return export.Record{}, err
	}
	res, err := s.d.Engine.Allocate(conv.Snapshot)
	if err != nil {
		return export.Record{}, err
	}
	rec := export.FromResult(res)

	start := time.Now()
	pubErr := s.d.Client.PublishResult(ctx, rec)
	if r, ok := s.d.Sink.(coremetrics.PublishRecorder); ok {
		ev := coremetrics.PublishEvent{RunID: rec.RunID, Transport: "mqtt", Success: pubErr == nil, Time: start}
		if err := r.RecordPublish(ev); err != nil {
			s.log.Errorf("record publish %s: %v", rec.RunID, err)
		}
	}
	if s.d.Store != nil {
		if err := s.d.Store.Append(ctx, rec); err != nil {
			s.log.Errorf("run log append %s: %v", rec.RunID, err)
			monitoring.CaptureException(err, map[string]string{"module": "runlog", "run_id": rec.RunID})
		}
	}
	if pubErr != nil {
		return rec, fmt.Errorf("publish %s: %w", rec.RunID, pubErr)
	}
	s.log.Infof("run %s: %d attackers over %d groups, %d moves",
		rec.RunID, rec.Metadata.AttackAgents, rec.Metadata.Groups, len(rec.Moves))
	return rec, nil
}

// Close releases the transport, the run log and the event bus.
func (s *Service) Close() error {
	s.d.Client.Disconnect()
	if s.d.Bus != nil {
		s.d.Bus.Close()
	}
	if s.d.Store != nil {
		return s.d.Store.Close()
	}
	return nil
}
