package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/infra/logger"
)

// InfluxSink writes allocation runs to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordRun writes one allocation_run point.
func (s *InfluxSink) RecordRun(rec coremetrics.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("allocation_run").
		AddTag("run_id", rec.RunID).
		AddTag("mode", rec.Mode).
		AddTag("rebalanced", strconv.FormatBool(rec.Rebalanced)).
		AddField("agents", rec.Agents).
		AddField("attackers", rec.Attackers).
		AddField("defenders", rec.Defenders).
		AddField("groups", rec.Groups).
		AddField("samples", rec.Samples).
		AddField("moves", rec.Moves).
		AddField("ratio_before", round3(rec.RatioBefore)).
		AddField("ratio_after", round3(rec.RatioAfter)).
		AddField("idle_groups", rec.IdleGroups).
		AddField("spread_after", rec.SpreadAfter).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordGroupLoads writes one group_load point per group.
func (s *InfluxSink) RecordGroupLoads(loads []coremetrics.GroupLoad) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, l := range loads {
		p := write.NewPointWithMeasurement("group_load").
			AddTag("run_id", l.RunID).
			AddTag("group_id", strconv.Itoa(l.GroupID)).
			AddTag("defense_agent", l.DefenseAgent).
			AddField("attack_load", l.AttackLoad).
			AddField("shapley_estimate", round3(l.ShapleyEstimate)).
			SetTime(l.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordMoves writes one rebalance_move point per move.
func (s *InfluxSink) RecordMoves(moves []coremetrics.MoveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, m := range moves {
		p := write.NewPointWithMeasurement("rebalance_move").
			AddTag("run_id", m.RunID).
			AddTag("agent_id", m.AgentID).
			AddField("from_group", m.FromGroup).
			AddField("to_group", m.ToGroup).
			SetTime(m.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordPublish writes the outcome of a downstream publication.
func (s *InfluxSink) RecordPublish(ev coremetrics.PublishEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("result_publish").
		AddTag("run_id", ev.RunID).
		AddTag("transport", ev.Transport).
		AddField("success", ev.Success).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFailure writes a failed run.
func (s *InfluxSink) RecordFailure(ev coremetrics.FailureEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("allocation_failure").
		AddTag("run_id", ev.RunID).
		AddTag("state", ev.State).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
