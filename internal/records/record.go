// Package records reads and writes Velib station snapshot files.
//
// A day of snapshots lives in <YYYYMMDD>-velib-records.csv. Files carry no
// header; the eight columns are consumed by position:
//
//	timestamp, station_name, lon, lat, mechanical, ebike, capacity, numdocksavailable
package records

import (
	"fmt"
	"strings"
	"time"
)

const (
	FileSuffix = "-velib-records.csv"
	dayLayout  = "20060102"
	numFields  = 8
)

// Record is one station snapshot. The JSON form is the payload exchanged over
// MQTT and Kafka.
type Record struct {
	Timestamp         time.Time `json:"timestamp"`
	StationName       string    `json:"station_name"`
	Lon               float64   `json:"lon"`
	Lat               float64   `json:"lat"`
	Mechanical        int       `json:"mechanical"`
	EBike             int       `json:"ebike"`
	Capacity          int       `json:"capacity"`
	NumDocksAvailable int       `json:"numdocksavailable"`
}

func (r Record) TotalBikes() int {
	return r.Mechanical + r.EBike
}

// OccupationRatio is total bikes over capacity. Some stations report a
// capacity of 0 while still holding bikes; ok is false for those.
func (r Record) OccupationRatio() (ratio float64, ok bool) {
	if r.Capacity <= 0 {
		return 0, false
	}
	return float64(r.TotalBikes()) / float64(r.Capacity), true
}

// Validate checks the invariants a snapshot must hold before it is stored.
func (r Record) Validate() error {
	if strings.TrimSpace(r.StationName) == "" {
		return fmt.Errorf("station_name is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("lon out of range: %f", r.Lon)
	}
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("lat out of range: %f", r.Lat)
	}
	if r.Mechanical < 0 || r.EBike < 0 || r.Capacity < 0 || r.NumDocksAvailable < 0 {
		return fmt.Errorf("negative counts for station %q", r.StationName)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp accepts the timestamp shapes found in recorded files.
// Timestamps without an offset are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Filter keeps records whose timestamp lies in [from, to]. A zero bound is open.
func Filter(recs []Record, from, to time.Time) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}
