package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/VJean/velib/internal/config"
)

type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) last(t *testing.T) map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.attrs) == 0 {
		t.Fatal("no log records")
	}
	return h.attrs[len(h.attrs)-1]
}

type fakeConn bool

func (f fakeConn) IsConnected() bool { return bool(f) }

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func getHealthz(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name     string
		mqtt     ConnectionStatus
		wantMQTT string
	}{
		{"disabled", nil, "disabled"},
		{"connected", fakeConn(true), "connected"},
		{"disconnected", fakeConn(false), "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := NewMux(openDB(t), tt.mqtt, quietLogger())
			rec, body := getHealthz(t, mux)
			if rec.Code != http.StatusOK {
				t.Fatalf("status=%d want=%d", rec.Code, http.StatusOK)
			}
			if body["status"] != "ok" || body["mqtt"] != tt.wantMQTT {
				t.Fatalf("body=%v", body)
			}
		})
	}
}

func TestHealthz_DatabaseDown(t *testing.T) {
	db := openDB(t)
	_ = db.Close()

	rec, body := getHealthz(t, NewMux(db, nil, quietLogger()))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want=%d", rec.Code, http.StatusInternalServerError)
	}
	if body["error"] != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("body=%v", body)
	}
}

func TestHandler_RequestID(t *testing.T) {
	capture := &captureHandler{}
	cfg := config.Config{CORSAllowedOrigins: []string{"*"}}
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := NewHandler(cfg, inner, slog.New(capture))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", nil))
	got := rec.Header().Get(RequestIDHeader)
	if got == "" || got != seen {
		t.Fatalf("header=%q context=%q", got, seen)
	}

	logged := capture.last(t)
	if logged["msg"].String() != "http request" {
		t.Fatalf("msg=%q", logged["msg"].String())
	}
	if logged["status"].Int64() != http.StatusTeapot || logged["path"].String() != "/query" {
		t.Fatalf("logged=%v", logged)
	}
	if logged["request_id"].String() != got {
		t.Fatalf("request_id=%q want %q", logged["request_id"].String(), got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "grafana-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "grafana-42" || seen != "grafana-42" {
		t.Fatalf("caller id not kept: header=%q context=%q", rec.Header().Get(RequestIDHeader), seen)
	}
}

func TestHandler_CORS(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: []string{"http://grafana.local:3000"}}
	h := NewHandler(cfg, NewMux(openDB(t), nil, quietLogger()), quietLogger())

	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "http://grafana.local:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://grafana.local:3000" {
		t.Fatalf("allowed origin=%q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(config.Config{HTTPAddr: ":9999"}, http.NewServeMux(), nil)
	if srv.Addr != ":9999" || srv.Handler == nil {
		t.Fatalf("server=%+v", srv)
	}
}
