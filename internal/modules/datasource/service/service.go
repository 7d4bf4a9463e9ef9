package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VJean/velib/internal/modules/datasource/repository"
	"github.com/VJean/velib/internal/modules/datasource/types"
	"github.com/VJean/velib/internal/records"
)

var (
	ErrBadRequest      = errors.New("bad request")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

type Service struct {
	repository repository.DatasourceRepository
	recordsDir string
	loc        *time.Location
	logger     *slog.Logger
	now        func() time.Time

	// importMu serializes lazy day imports.
	importMu sync.Mutex
}

func NewService(repo repository.DatasourceRepository, recordsDir string, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repository: repo,
		recordsDir: recordsDir,
		loc:        loc,
		logger:     logger.With("component", "datasource"),
		now:        time.Now,
	}
}

func (s *Service) Metrics() []string {
	out := make([]string, len(types.Metrics))
	copy(out, types.Metrics)
	return out
}

func (s *Service) TagKeys() []types.TagKey {
	out := make([]types.TagKey, len(types.TagKeys))
	copy(out, types.TagKeys)
	return out
}

// TagValues answers /tag-values. Unknown keys get an empty list.
func (s *Service) TagValues(ctx context.Context, key string) ([]types.TagValue, error) {
	switch key {
	case types.TagBikeType:
		return []types.TagValue{{Text: types.BikeTypeMechanical}, {Text: types.BikeTypeElectric}}, nil
	case types.TagStationName:
		stations, err := s.repository.GetStations(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stations: %w", err)
		}
		out := make([]types.TagValue, 0, len(stations))
		for _, st := range stations {
			out = append(out, types.TagValue{Text: st.Name})
		}
		return out, nil
	default:
		return []types.TagValue{}, nil
	}
}

// Query answers /query. Day files covering the range are imported into the
// store first, then one series is built per timeseries target, in request order.
func (s *Service) Query(ctx context.Context, req types.QueryRequest) ([]types.TimeSeries, error) {
	from, to, err := s.parseRange(req.Range)
	if err != nil {
		return nil, err
	}
	days, err := records.DaysInRange(from, to, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if _, err := s.ImportDays(ctx, days); err != nil {
		return nil, err
	}

	bikeType, stationName := adhocFilters(req.AdhocFilters)
	out := []types.TimeSeries{}
	for _, target := range req.Targets {
		if target.Type != types.TargetTypeTimeseries {
			continue
		}
		points, err := s.repository.GetSeries(ctx, repository.SeriesQuery{
			Metric:      target.Target,
			BikeType:    bikeType,
			StationName: stationName,
			From:        from,
			To:          to,
		})
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", target.Target, err)
		}
		if points == nil {
			points = []types.Datapoint{}
		}
		out = append(out, types.TimeSeries{
			Target:     target.Target,
			Datapoints: thin(points, req.MaxDataPoints),
		})
	}
	return out, nil
}

func (s *Service) parseRange(r types.Range) (time.Time, time.Time, error) {
	if r.From == "" || r.To == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range.from and range.to are required", ErrBadRequest)
	}
	from, err := records.ParseTimestamp(r.From, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range.from: %w", ErrBadRequest, err)
	}
	to, err := records.ParseTimestamp(r.To, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range.to: %w", ErrBadRequest, err)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %w", ErrBadRequest, records.ErrInvalidRange)
	}
	return from, to, nil
}

// adhocFilters picks the equality filters the datasource understands.
func adhocFilters(filters []types.AdhocFilter) (bikeType, stationName string) {
	for _, f := range filters {
		if f.Operator != "" && f.Operator != "=" {
			continue
		}
		switch f.Key {
		case types.TagBikeType:
			bikeType = f.Value
		case types.TagStationName:
			stationName = f.Value
		}
	}
	return bikeType, stationName
}

// thin reduces points to at most limit by uniform stride, keeping the last point.
func thin(points []types.Datapoint, limit int) []types.Datapoint {
	if limit <= 0 || len(points) <= limit {
		return points
	}
	stride := (len(points) + limit - 1) / limit
	out := make([]types.Datapoint, 0, limit)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	last := points[len(points)-1]
	if !out[len(out)-1].Time.Equal(last.Time) {
		if len(out) == limit {
			out[len(out)-1] = last
		} else {
			out = append(out, last)
		}
	}
	return out
}

// ImportRange imports the day files covering [from, to].
func (s *Service) ImportRange(ctx context.Context, from, to time.Time) (int, error) {
	days, err := records.DaysInRange(from, to, s.loc)
	if err != nil {
		return 0, err
	}
	return s.ImportDays(ctx, days)
}

// ImportDays loads every day file not yet imported and returns the number of
// rows stored. Missing files are skipped. The current day, and any later one,
// is never marked imported since the recorder is still appending to it.
func (s *Service) ImportDays(ctx context.Context, days []time.Time) (int, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()

	imported, err := s.repository.GetImportedDays(ctx)
	if err != nil {
		return 0, fmt.Errorf("list imported days: %w", err)
	}
	today := records.DayKey(s.now().In(s.loc))

	total := 0
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		key := records.DayKey(day.In(s.loc))
		if imported[key] {
			continue
		}
		name := records.FileName(day.In(s.loc))
		path := filepath.Join(s.recordsDir, name)
		recs, err := records.ReadFile(path, s.loc)
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("records file missing", "file", name)
			continue
		}
		if err != nil {
			return total, fmt.Errorf("read %s: %w", name, err)
		}
		n, err := s.repository.InsertSnapshots(ctx, recs)
		if err != nil {
			return total, fmt.Errorf("import %s: %w", name, err)
		}
		total += n
		if key >= today {
			s.logger.Debug("imported open day", "file", name, "rows", n)
			continue
		}
		if err := s.repository.MarkDayImported(ctx, key, name, n); err != nil {
			return total, err
		}
		s.logger.Info("imported day", "file", name, "rows", n)
	}
	return total, nil
}

// Ingest validates and stores snapshots received from a message transport.
// Nothing is stored if any snapshot is invalid.
func (s *Service) Ingest(ctx context.Context, recs []records.Record) (int, error) {
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
	}
	n, err := s.repository.InsertSnapshots(ctx, recs)
	if err != nil {
		return 0, fmt.Errorf("store snapshots: %w", err)
	}
	return n, nil
}

// Snapshots returns stored snapshots in [from, to]. Zero bounds are open.
func (s *Service) Snapshots(ctx context.Context, from, to time.Time) ([]records.Record, error) {
	return s.repository.GetSnapshots(ctx, from, to)
}
