package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/VJean/velib/internal/config"
	"github.com/VJean/velib/internal/db"
	"github.com/VJean/velib/internal/httpapi"
	"github.com/VJean/velib/internal/migrate"
	"github.com/VJean/velib/internal/modules/datasource"
	"github.com/VJean/velib/internal/modules/datasource/repository"
	"github.com/VJean/velib/internal/modules/datasource/service"
	"github.com/VJean/velib/internal/mqtt"
	"github.com/VJean/velib/internal/queue"
)

const (
	mqttConnectTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// Run serves the datasource until ctx is canceled. MQTT and Kafka ingestion
// are optional; the server keeps answering from stored data without them.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"recordsDir", cfg.RecordsDir,
		"recordsTZ", cfg.RecordsLocation.String(),
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"kafkaBrokers", cfg.KafkaBrokers,
		"kafkaTopic", cfg.KafkaTopic,
	)

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return err
	}
	logger.Info("database ready", "migrations_applied", applied)

	svc := service.NewService(repository.NewRepository(dbConn), cfg.RecordsDir, cfg.RecordsLocation, logger)

	var (
		subscriber *mqtt.Subscriber
		mqttStatus httpapi.ConnectionStatus
	)
	if cfg.MQTTEnabled {
		// The handler must be set before Connect: the broker may deliver
		// queued messages right after CONNACK.
		subscriber = mqtt.NewSubscriber(cfg, logger)
		datasource.RegisterMQTTHandler(subscriber, svc, logger)
		mqttStatus = subscriber

		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt broker unavailable, retrying in background", "error", err)
		}
	}

	mux := httpapi.NewMux(dbConn, mqttStatus, logger)
	datasource.RegisterFeature(mux, svc)
	srv := httpapi.NewServer(cfg, mux, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var consumer *queue.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		consumer = queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		writer := queue.NewBatchWriter(consumer, svc.Ingest, logger)
		g.Go(func() error {
			logger.Info("kafka consuming", "topic", cfg.KafkaTopic, "group_id", cfg.KafkaGroupID)
			return writer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if subscriber != nil {
			logger.Info("mqtt disconnecting")
			subscriber.Disconnect()
		}

		logger.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if consumer != nil {
		logger.Info("kafka closing")
		if closeErr := consumer.Close(); closeErr != nil {
			logger.Error("kafka close", "error", closeErr)
		}
	}

	if err != nil {
		return err
	}
	return ctx.Err()
}
