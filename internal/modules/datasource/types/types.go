// Package types holds the Grafana SimpleJSON wire shapes and the store views
// served by the datasource.
package types

import (
	"encoding/json"
	"time"
)

const (
	MetricFreeDocks = "freedocks"
	MetricBikes     = "bikes"
	MetricDocks     = "docks"

	TagBikeType    = "bike_type"
	TagStationName = "station_name"

	BikeTypeMechanical = "mechanical"
	BikeTypeElectric   = "electric"

	TargetTypeTimeseries = "timeseries"
)

// Metrics is the /search answer, in this order.
var Metrics = []string{MetricFreeDocks, MetricBikes, MetricDocks}

type Station struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
}

// Datapoint is one [value, unix_ms] pair.
type Datapoint struct {
	Value float64
	Time  time.Time
}

func (d Datapoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{d.Value, float64(d.Time.UnixMilli())})
}

func (d *Datapoint) UnmarshalJSON(b []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	d.Value = pair[0]
	d.Time = time.UnixMilli(int64(pair[1])).UTC()
	return nil
}

type Range struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Target struct {
	Target string `json:"target"`
	RefID  string `json:"refId,omitempty"`
	Type   string `json:"type"`
}

type AdhocFilter struct {
	Key      string `json:"key"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type QueryRequest struct {
	Range         Range         `json:"range"`
	Targets       []Target      `json:"targets"`
	AdhocFilters  []AdhocFilter `json:"adhocFilters,omitempty"`
	MaxDataPoints int           `json:"maxDataPoints,omitempty"`
	IntervalMs    int64         `json:"intervalMs,omitempty"`
}

type TimeSeries struct {
	Target     string      `json:"target"`
	Datapoints []Datapoint `json:"datapoints"`
}

type TagKey struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TagKeys is the /tag-keys answer.
var TagKeys = []TagKey{
	{Type: "string", Text: TagBikeType},
	{Type: "string", Text: TagStationName},
}

type TagValue struct {
	Text string `json:"text"`
}

type TagValuesRequest struct {
	Key string `json:"key"`
}
