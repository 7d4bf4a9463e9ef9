package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/VJean/velib/internal/modules/datasource/types"
	"github.com/VJean/velib/internal/records"
)

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/insert-snapshot.sql
var insertSnapshotSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/get-series.sql
var getSeriesSQLTemplate string

//go:embed sql/get-snapshots.sql
var getSnapshotsSQL string

//go:embed sql/get-imported-days.sql
var getImportedDaysSQL string

//go:embed sql/mark-day-imported.sql
var markDayImportedSQL string

// seriesValueExpr maps a series column to its SQL sum expression. Only these
// literals are ever interpolated into get-series.sql.
var seriesValueExpr = map[string]string{
	columnBikes:      "sn.mechanical + sn.ebike",
	columnMechanical: "sn.mechanical",
	columnEBike:      "sn.ebike",
	columnFreeDocks:  "sn.numdocksavailable",
	columnDocks:      "sn.capacity",
}

const (
	columnBikes      = "bikes"
	columnMechanical = "mechanical"
	columnEBike      = "ebike"
	columnFreeDocks  = "freedocks"
	columnDocks      = "docks"
)

// SeriesQuery selects one aggregated series. Values are summed across the
// selected stations for every snapshot timestamp in [From, To].
type SeriesQuery struct {
	Metric      string
	BikeType    string
	StationName string
	From        time.Time
	To          time.Time
}

type DatasourceRepository interface {
	InsertSnapshots(ctx context.Context, recs []records.Record) (int, error)
	GetStations(ctx context.Context) ([]types.Station, error)
	GetSeries(ctx context.Context, q SeriesQuery) ([]types.Datapoint, error)
	GetSnapshots(ctx context.Context, from, to time.Time) ([]records.Record, error)
	GetImportedDays(ctx context.Context) (map[string]bool, error)
	MarkDayImported(ctx context.Context, day string, filename string, rows int) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) DatasourceRepository {
	return &repositoryImpl{db: db}
}

// InsertSnapshots stores recs in one transaction. Stations are upserted by
// name; a snapshot already stored for the same station and time is replaced.
func (r *repositoryImpl) InsertSnapshots(ctx context.Context, recs []records.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsertStation, err := tx.PrepareContext(ctx, upsertStationSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert station: %w", err)
	}
	defer func() { _ = upsertStation.Close() }()

	insertSnapshot, err := tx.PrepareContext(ctx, insertSnapshotSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert snapshot: %w", err)
	}
	defer func() { _ = insertSnapshot.Close() }()

	stationIDs := make(map[string]int64)
	for _, rec := range recs {
		id, ok := stationIDs[rec.StationName]
		if !ok {
			if err := upsertStation.QueryRowContext(ctx, rec.StationName, rec.Lon, rec.Lat).Scan(&id); err != nil {
				return 0, fmt.Errorf("upsert station %q: %w", rec.StationName, err)
			}
			stationIDs[rec.StationName] = id
		}
		if _, err := insertSnapshot.ExecContext(ctx,
			id,
			rec.Timestamp.UnixMilli(),
			rec.Mechanical,
			rec.EBike,
			rec.Capacity,
			rec.NumDocksAvailable,
		); err != nil {
			return 0, fmt.Errorf("insert snapshot %q at %s: %w", rec.StationName, rec.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(recs), nil
}

func (r *repositoryImpl) GetStations(ctx context.Context) ([]types.Station, error) {
	rows, err := r.db.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()
	out := []types.Station{}
	for rows.Next() {
		var s types.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Lon, &s.Lat); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSeries returns an empty, non-nil slice for unknown metrics.
func (r *repositoryImpl) GetSeries(ctx context.Context, q SeriesQuery) ([]types.Datapoint, error) {
	column, ok := seriesColumn(q.Metric, q.BikeType)
	if !ok {
		return []types.Datapoint{}, nil
	}
	query := fmt.Sprintf(getSeriesSQLTemplate, seriesValueExpr[column])

	rows, err := r.db.QueryContext(ctx, query,
		q.From.UnixMilli(), q.To.UnixMilli(),
		q.StationName, q.StationName,
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close series rows", "error", err)
		}
	}()

	out := []types.Datapoint{}
	for rows.Next() {
		var tsMs int64
		var value float64
		if err := rows.Scan(&tsMs, &value); err != nil {
			return nil, err
		}
		out = append(out, types.Datapoint{Value: value, Time: time.UnixMilli(tsMs).UTC()})
	}
	return out, rows.Err()
}

// seriesColumn resolves a metric and bike_type filter to a series column.
// bike_type only narrows the bikes metric.
func seriesColumn(metric, bikeType string) (string, bool) {
	switch metric {
	case types.MetricBikes:
		switch bikeType {
		case types.BikeTypeMechanical:
			return columnMechanical, true
		case types.BikeTypeElectric:
			return columnEBike, true
		default:
			return columnBikes, true
		}
	case types.MetricFreeDocks:
		return columnFreeDocks, true
	case types.MetricDocks:
		return columnDocks, true
	default:
		return "", false
	}
}

// GetSnapshots returns stored snapshots in [from, to]. Zero bounds are open.
func (r *repositoryImpl) GetSnapshots(ctx context.Context, from, to time.Time) ([]records.Record, error) {
	fromMs, toMs := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		fromMs = from.UnixMilli()
	}
	if !to.IsZero() {
		toMs = to.UnixMilli()
	}
	rows, err := r.db.QueryContext(ctx, getSnapshotsSQL, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close snapshots rows", "error", err)
		}
	}()

	var out []records.Record
	for rows.Next() {
		var rec records.Record
		var tsMs int64
		if err := rows.Scan(&tsMs, &rec.StationName, &rec.Lon, &rec.Lat,
			&rec.Mechanical, &rec.EBike, &rec.Capacity, &rec.NumDocksAvailable); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(tsMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetImportedDays(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, getImportedDaysSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close imported days rows", "error", err)
		}
	}()
	out := make(map[string]bool)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		out[day] = true
	}
	return out, rows.Err()
}

func (r *repositoryImpl) MarkDayImported(ctx context.Context, day string, filename string, rows int) error {
	if _, err := r.db.ExecContext(ctx, markDayImportedSQL, day, filename, rows); err != nil {
		return fmt.Errorf("mark day %s imported: %w", day, err)
	}
	return nil
}
