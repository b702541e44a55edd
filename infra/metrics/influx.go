package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/infra/logger"
)

const componentTag = "dispatch_board"

// InfluxSink writes dispatch board events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// InfluxConfig holds the connection settings of an InfluxSink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
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
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMutation writes one dispatch_mutation point.
func (s *InfluxSink) RecordMutation(ev coremetrics.MutationEvent) error {
	p := write.NewPointWithMeasurement("dispatch_mutation").
		AddTag("op", ev.Op).
		AddTag("outcome", ev.Outcome).
		AddTag("component", componentTag).
		AddField("booking_id", ev.BookingID).
		AddField("entry_id", ev.EntryID).
		AddField("promoted", ev.Promoted).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(eventTime(ev.Time))
	return s.write(p)
}

// RecordReconcile writes a reconcile_pass point.
func (s *InfluxSink) RecordReconcile(ev coremetrics.ReconcileEvent) error {
	p := write.NewPointWithMeasurement("reconcile_pass").
		AddTag("applied", boolLabel(ev.Applied)).
		AddTag("failed", boolLabel(ev.Failed)).
		AddTag("component", componentTag).
		AddField("token", int64(ev.Token)).
		AddField("persisted", ev.Persisted).
		AddField("synthesized", ev.Synthesized).
		AddField("merged", ev.Merged).
		AddField("visible", ev.Visible).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(eventTime(ev.Time))
	return s.write(p)
}

// RecordSideEffect writes a side_effect_failed point.
func (s *InfluxSink) RecordSideEffect(ev coremetrics.SideEffectEvent) error {
	p := write.NewPointWithMeasurement("side_effect_failed").
		AddTag("op", ev.Op).
		AddTag("component", componentTag).
		AddField("booking_id", ev.BookingID).
		AddField("error", ev.Error).
		SetTime(eventTime(ev.Time))
	return s.write(p)
}

// RecordWorkingSet writes one working_set point with a field per status.
func (s *InfluxSink) RecordWorkingSet(counts map[status.Status]int) error {
	p := write.NewPointWithMeasurement("working_set").
		AddTag("component", componentTag)
	for _, st := range status.All() {
		p.AddField(st.String(), counts[st])
	}
	p.SetTime(time.Now())
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
