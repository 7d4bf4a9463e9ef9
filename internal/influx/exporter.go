// Package influx exports stored snapshots to InfluxDB 2.x.
package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/VJean/velib/internal/config"
	"github.com/VJean/velib/internal/records"
)

const (
	Measurement = "station_occupancy"

	defaultBatchSize = 1000
)

var ErrNotConfigured = errors.New("influx: INFLUX_TOKEN and INFLUX_ORG are required")

type Exporter struct {
	client    influxdb2.Client
	writer    api.WriteAPIBlocking
	batchSize int
	logger    *slog.Logger
}

func NewExporter(cfg config.Config, logger *slog.Logger) (*Exporter, error) {
	if cfg.InfluxToken == "" || cfg.InfluxOrg == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken,
		influxdb2.DefaultOptions().SetPrecision(time.Second))
	return &Exporter{
		client:    client,
		writer:    client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		batchSize: defaultBatchSize,
		logger:    logger.With("component", "influx", "bucket", cfg.InfluxBucket),
	}, nil
}

// CheckHealth fails unless the server reports status "pass".
func (e *Exporter) CheckHealth(ctx context.Context) error {
	health, err := e.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influx health: status %s: %s", health.Status, msg)
	}
	return nil
}

// Export writes recs in batches and returns how many points were written.
func (e *Exporter) Export(ctx context.Context, recs []records.Record) (int, error) {
	written := 0
	for start := 0; start < len(recs); start += e.batchSize {
		end := min(start+e.batchSize, len(recs))
		points := make([]*write.Point, 0, end-start)
		for _, rec := range recs[start:end] {
			points = append(points, NewPoint(rec))
		}
		if err := e.writer.WritePoint(ctx, points...); err != nil {
			return written, fmt.Errorf("write points: %w", err)
		}
		written += len(points)
		e.logger.Debug("wrote points", "count", len(points), "total", written)
	}
	return written, nil
}

func (e *Exporter) Close() {
	e.client.Close()
}

// NewPoint maps one snapshot to a station_occupancy point. occupation_ratio is
// omitted for stations reporting no capacity.
func NewPoint(rec records.Record) *write.Point {
	fields := map[string]any{
		"mechanical":        rec.Mechanical,
		"ebike":             rec.EBike,
		"capacity":          rec.Capacity,
		"numdocksavailable": rec.NumDocksAvailable,
		"total_bikes":       rec.TotalBikes(),
	}
	if ratio, ok := rec.OccupationRatio(); ok {
		fields["occupation_ratio"] = ratio
	}
	return influxdb2.NewPoint(Measurement,
		map[string]string{"station_name": rec.StationName},
		fields,
		rec.Timestamp,
	)
}
