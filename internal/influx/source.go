// Package influx reads sensor readings from and writes alert points to
// InfluxDB v2.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// Source serves the latest reading of a sensor with a Flux last() query.
type Source struct {
	query       api.QueryAPI
	bucket      string
	measurement string
	field       string
	lookback    time.Duration
}

type SourceConfig struct {
	Org         string
	Bucket      string
	Measurement string
	Field       string
	Lookback    time.Duration
}

func NewSource(client influxdb2.Client, cfg SourceConfig) *Source {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	return &Source{
		query:       client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: cfg.Measurement,
		field:       cfg.Field,
		lookback:    cfg.Lookback,
	}
}

func buildLatestFlux(bucket, measurement, field, sensorID string, lookback time.Duration) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q and r.sensor_id == %q)
  |> filter(fn: (r) => r._field == %q)
  |> last()
`, bucket, int64(lookback.Seconds()), measurement, sensorID, field)
}

// LatestReading returns (nil, nil) when the sensor has no point inside the
// lookback window.
func (s *Source) LatestReading(ctx context.Context, sensorID string) (*entities.Reading, error) {
	res, err := s.query.Query(ctx, buildLatestFlux(s.bucket, s.measurement, s.field, sensorID, s.lookback))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer func() { _ = res.Close() }()

	var out *entities.Reading
	for res.Next() {
		rec := res.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		if out == nil || rec.Time().After(out.Timestamp) {
			out = &entities.Reading{SensorID: sensorID, Value: v, Timestamp: rec.Time()}
		}
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
