package opendata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func feedServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		results := []map[string]any{}
		for i := offset; i < total && i < offset+limit; i++ {
			installed := "OUI"
			if i == 1 {
				installed = "NON"
			}
			results = append(results, map[string]any{
				"stationcode":       strconv.Itoa(10000 + i),
				"name":              fmt.Sprintf("Station %d", i),
				"is_installed":      installed,
				"capacity":          20,
				"numdocksavailable": 12,
				"mechanical":        5,
				"ebike":             3,
				"duedate":           "2024-03-01T08:03:12+00:00",
				"coordonnees_geo":   map[string]float64{"lon": 2.35, "lat": 48.85},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": total, "results": results})
	}))
}

func TestFetchStations_Pages(t *testing.T) {
	srv := feedServer(t, 250)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, nil)
	stations, err := c.FetchStations(context.Background())
	if err != nil {
		t.Fatalf("FetchStations: %v", err)
	}
	if len(stations) != 250 {
		t.Fatalf("got %d stations; want 250", len(stations))
	}
	st := stations[0]
	if st.Name != "Station 0" || st.Coordinates.Lon != 2.35 || st.Mechanical != 5 || st.EBike != 3 {
		t.Errorf("decoded %+v", st)
	}
	if !st.DueDate.Equal(time.Date(2024, 3, 1, 8, 3, 12, 0, time.UTC)) {
		t.Errorf("duedate = %v", st.DueDate)
	}
}

func TestSnapshot(t *testing.T) {
	srv := feedServer(t, 3)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, nil)
	at := time.Date(2024, 3, 1, 8, 4, 37, 0, time.UTC)
	recs, err := c.Snapshot(context.Background(), at)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records; want 2 (uninstalled station skipped)", len(recs))
	}
	want := time.Date(2024, 3, 1, 8, 4, 0, 0, time.UTC)
	for _, rec := range recs {
		if !rec.Timestamp.Equal(want) {
			t.Errorf("timestamp = %v; want %v", rec.Timestamp, want)
		}
		if rec.TotalBikes() != 8 || rec.Capacity != 20 || rec.NumDocksAvailable != 12 {
			t.Errorf("record %+v", rec)
		}
	}
	if recs[1].StationName != "Station 2" {
		t.Errorf("second record = %q", recs[1].StationName)
	}
}

func TestFetchStations_Empty(t *testing.T) {
	srv := feedServer(t, 0)
	defer srv.Close()

	_, err := NewClient(srv.URL, 5*time.Second, nil).FetchStations(context.Background())
	if !errors.Is(err, ErrEmptyFeed) {
		t.Fatalf("err = %v; want ErrEmptyFeed", err)
	}
}

func TestFetchStations_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"InvalidRESTParameterError","message":"Invalid value for limit"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 5*time.Second, nil).FetchStations(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "fetch stations: status 400: Invalid value for limit" {
		t.Errorf("err = %q", got)
	}
}
