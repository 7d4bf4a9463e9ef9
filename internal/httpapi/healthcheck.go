package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/VJean/velib/internal/utils"
)

const healthzTimeout = 2 * time.Second

// ConnectionStatus reports whether an ingest transport is up.
type ConnectionStatus interface {
	IsConnected() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	mqtt   ConnectionStatus
	logger *slog.Logger
}

func NewHealthchecker(db *sql.DB, mqtt ConnectionStatus, logger *slog.Logger) healthchecker {
	return &healthcheckerImpl{db: db, mqtt: mqtt, logger: logger}
}

// handleHealthz fails only on the database. A missing broker is reported but
// the server keeps answering queries from what it has stored.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthzTimeout)
	defer cancel()

	var ok int
	if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	mqttStatus := "disabled"
	if h.mqtt != nil {
		mqttStatus = "disconnected"
		if h.mqtt.IsConnected() {
			mqttStatus = "connected"
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mqtt":   mqttStatus,
	})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, mqtt ConnectionStatus, logger *slog.Logger) {
	healthchecker := NewHealthchecker(db, mqtt, logger)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
