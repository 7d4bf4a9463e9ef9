// Package opendata fetches live station availability from the Paris open-data
// portal (dataset velib-disponibilite-en-temps-reel).
package opendata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/VJean/velib/internal/records"
)

const (
	// pageSize is the largest page the explore API serves.
	pageSize = 100
	// maxOffset is the explore API cap on offset+limit.
	maxOffset = 10000
)

var ErrEmptyFeed = errors.New("open data feed returned no stations")

type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Station is one row of the feed. Only the fields stored in snapshots are kept.
type Station struct {
	StationCode       string    `json:"stationcode"`
	Name              string    `json:"name"`
	IsInstalled       string    `json:"is_installed"`
	Capacity          int       `json:"capacity"`
	NumDocksAvailable int       `json:"numdocksavailable"`
	Mechanical        int       `json:"mechanical"`
	EBike             int       `json:"ebike"`
	DueDate           time.Time `json:"duedate"`
	Coordinates       GeoPoint  `json:"coordonnees_geo"`
}

// Record stamps the station with the snapshot time at.
func (s Station) Record(at time.Time) records.Record {
	return records.Record{
		Timestamp:         at,
		StationName:       s.Name,
		Lon:               s.Coordinates.Lon,
		Lat:               s.Coordinates.Lat,
		Mechanical:        s.Mechanical,
		EBike:             s.EBike,
		Capacity:          s.Capacity,
		NumDocksAvailable: s.NumDocksAvailable,
	}
}

type page struct {
	TotalCount int       `json:"total_count"`
	Results    []Station `json:"results"`
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type Client struct {
	http   *resty.Client
	url    string
	logger *slog.Logger
}

func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(500*time.Millisecond).
			SetHeader("Accept", "application/json"),
		url:    url,
		logger: logger.With("component", "opendata"),
	}
}

// FetchStations pages through the whole feed.
func (c *Client) FetchStations(ctx context.Context) ([]Station, error) {
	var out []Station
	for offset := 0; offset < maxOffset; {
		limit := min(pageSize, maxOffset-offset)
		var p page
		var apiErr apiError
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(limit),
				"offset": strconv.Itoa(offset),
			}).
			SetResult(&p).
			SetError(&apiErr).
			Get(c.url)
		if err != nil {
			return nil, fmt.Errorf("fetch stations: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch stations: status %d: %s", resp.StatusCode(), apiErr.Message)
		}

		out = append(out, p.Results...)
		offset += len(p.Results)
		c.logger.Debug("fetched stations page", "offset", offset, "total", p.TotalCount)
		if len(p.Results) == 0 || offset >= p.TotalCount {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyFeed
	}
	return out, nil
}

// Snapshot fetches the feed and returns one record per installed station, all
// stamped with at truncated to the minute.
func (c *Client) Snapshot(ctx context.Context, at time.Time) ([]records.Record, error) {
	stations, err := c.FetchStations(ctx)
	if err != nil {
		return nil, err
	}
	at = at.Truncate(time.Minute)
	recs := make([]records.Record, 0, len(stations))
	for _, st := range stations {
		if st.IsInstalled != "" && st.IsInstalled != "OUI" {
			continue
		}
		rec := st.Record(at)
		if err := rec.Validate(); err != nil {
			c.logger.Warn("skipping station", "stationcode", st.StationCode, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
