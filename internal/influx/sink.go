package influx

import (
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

const alertMeasurement = "alert"

// Sink mirrors persisted alerts into InfluxDB through the non-blocking
// write API and remembers when the last asynchronous write failed.
type Sink struct {
	api     api.WriteAPI
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[entities.AlertType]int64
}

func NewSink(w api.WriteAPI) *Sink {
	s := &Sink{
		api:     w,
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[entities.AlertType]int64),
	}
	log := logger.WithComponent("influx-sink")
	go func() {
		for err := range w.Errors() {
			if err == nil {
				continue
			}
			s.mu.Lock()
			s.lastErr = time.Now()
			s.mu.Unlock()
			log.Warn().Err(err).Msg("influx write error")
		}
	}()
	return s
}

// Record queues a point for a; delivery errors surface via LastErrorAge.
func (s *Sink) Record(a entities.Alert) {
	if s == nil {
		return
	}
	s.api.WritePoint(AlertToPoint(a))
	s.mu.Lock()
	s.counts[a.Type]++
	s.mu.Unlock()
}

func (s *Sink) Flush() {
	if s != nil {
		s.api.Flush()
	}
}

func (s *Sink) LastErrorAge() time.Duration {
	if s == nil {
		return 99999 * time.Hour
	}
	s.mu.RLock()
	t := s.lastErr
	s.mu.RUnlock()
	return time.Since(t)
}

func (s *Sink) Count(t entities.AlertType) int64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[t]
}

// AlertToPoint normalizes an alert into an "alert" point.
func AlertToPoint(a entities.Alert) *write.Point {
	tags := map[string]string{
		"type":     string(a.Type),
		"severity": string(a.Severity),
	}
	if a.FieldID != "" {
		tags["field_id"] = a.FieldID
	}
	if a.SensorID != "" {
		tags["sensor_id"] = a.SensorID
	}

	fields := map[string]interface{}{"count": int64(1)}
	switch {
	case a.MoistureLevel != nil:
		fields["value"] = *a.MoistureLevel
	case a.WaterLevel != nil:
		fields["value"] = *a.WaterLevel
	}
	if a.Threshold != nil {
		fields["threshold"] = *a.Threshold
	}

	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(alertMeasurement, tags, fields, ts)
}
