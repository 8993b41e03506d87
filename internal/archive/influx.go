// Package archive keeps reading history and image payloads outside the
// relational store.
package archive

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"ecowatch.org/internal/domain"
)

// Measurement is the InfluxDB measurement every reading is written to.
const Measurement = "sensor_reading"

// Influx appends readings to an InfluxDB bucket, one point per reading.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInflux connects to url and writes into org/bucket.
func NewInflux(url, token, org, bucket string) *Influx {
	client := influxdb2.NewClient(url, token)
	return &Influx{client: client, write: client.WriteAPIBlocking(org, bucket)}
}

// Ping reports whether the InfluxDB server is healthy.
func (a *Influx) Ping(ctx context.Context) error {
	ok, err := a.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: influx: %v", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: influx not ready", domain.ErrStoreUnavailable)
	}
	return nil
}

// AppendReading writes r tagged with the sensor's zone, id and type.
func (a *Influx) AppendReading(ctx context.Context, s domain.Sensor, r domain.Reading) error {
	if err := a.write.WritePoint(ctx, readingPoint(s, r)); err != nil {
		return fmt.Errorf("%w: influx write: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (a *Influx) Close() { a.client.Close() }

// readingPoint carries the value and every metadata entry as fields.
func readingPoint(s domain.Sensor, r domain.Reading) *write.Point {
	fields := map[string]any{"value": r.Value}
	for k, v := range r.Metadata {
		if k == "value" || !v.Valid() {
			continue
		}
		fields[k] = v.Any()
	}
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{
			"zone_id":   s.ZoneID,
			"sensor_id": s.ID,
			"type":      string(s.Type),
		},
		fields,
		r.Timestamp,
	)
}
