package charts

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/VJean/velib/internal/records"
)

const DefaultTopBusy = 10

// StationActivity counts how often a station's bike total changed between
// consecutive snapshots.
type StationActivity struct {
	StationName string
	Changes     int
	Snapshots   int
}

// TopBusyStations ranks stations by Changes, most active first, ties broken by
// name. n <= 0 returns every station.
func TopBusyStations(recs []records.Record, n int) ([]StationActivity, error) {
	if len(recs) == 0 {
		return nil, ErrNoData
	}
	byStation := make(map[string][]records.Record)
	for _, r := range recs {
		byStation[r.StationName] = append(byStation[r.StationName], r)
	}

	out := make([]StationActivity, 0, len(byStation))
	for name, rs := range byStation {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp.Before(rs[j].Timestamp) })
		changes := 0
		for i := 1; i < len(rs); i++ {
			if rs[i].TotalBikes() != rs[i-1].TotalBikes() {
				changes++
			}
		}
		out = append(out, StationActivity{StationName: name, Changes: changes, Snapshots: len(rs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Changes != out[j].Changes {
			return out[i].Changes > out[j].Changes
		}
		return out[i].StationName < out[j].StationName
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// WriteActivityTable prints a ranked table of stations.
func WriteActivityTable(w io.Writer, rows []StationActivity) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSTATION\tCHANGES\tSNAPSHOTS")
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", i+1, r.StationName, r.Changes, r.Snapshots)
	}
	return tw.Flush()
}
