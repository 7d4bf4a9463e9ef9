package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/VJean/velib/internal/config"
)

// NewHandler wraps mux with CORS, request ids and access logging.
func NewHandler(cfg config.Config, mux http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return requestID(requestLogger(logger, withCORS(cfg.CORSAllowedOrigins, mux)))
}

func NewServer(cfg config.Config, mux http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(cfg, mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
