package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
)

// NewMux registers /healthz. mqtt may be nil when the subscriber is disabled.
func NewMux(db *sql.DB, mqtt ConnectionStatus, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, mqtt, logger)
	return mux
}
