package datasource

import (
	"context"
	"log/slog"

	"github.com/VJean/velib/internal/mqtt"
	"github.com/VJean/velib/internal/records"
)

// SnapshotStore persists snapshots coming off the bus.
type SnapshotStore interface {
	Ingest(ctx context.Context, recs []records.Record) (int, error)
}

// RegisterMQTTHandler stores every snapshot the subscriber hands over.
func RegisterMQTTHandler(subscriber mqtt.SnapshotSubscriber, store SnapshotStore, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	subscriber.SetMessageHandler(func(ctx context.Context, rec records.Record) error {
		logger.Debug("processing snapshot message",
			"station_name", rec.StationName,
			"timestamp", rec.Timestamp,
		)

		if _, err := store.Ingest(ctx, []records.Record{rec}); err != nil {
			logger.Error("failed to store snapshot",
				"station_name", rec.StationName,
				"error", err,
			)
			return err
		}

		logger.Debug("successfully stored snapshot",
			"station_name", rec.StationName,
		)
		return nil
	})
}
