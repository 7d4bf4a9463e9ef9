package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VJean/velib/internal/mqtt"
	"github.com/VJean/velib/internal/queue"
	"github.com/VJean/velib/internal/records"
)

const publishConnectTimeout = 10 * time.Second

const (
	transportMQTT  = "mqtt"
	transportKafka = "kafka"
)

var errNoKafkaBrokers = errors.New("KAFKA_BROKERS is empty")

func newPublishCmd(env *cliEnv) *cobra.Command {
	var (
		rf        rangeFlags
		transport string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Replay the day files of a range onto MQTT or Kafka",
		Long: `Replay recorded snapshots so a running server ingests them.

  mqtt   one message per snapshot on velib/stations/<slug>/snapshot
  kafka  one message per snapshot on KAFKA_TOPIC, keyed by station name`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if transport != transportMQTT && transport != transportKafka {
				return fmt.Errorf("invalid --transport %q (allowed: mqtt, kafka)", transport)
			}
			if transport == transportKafka && len(env.cfg.KafkaBrokers) == 0 {
				return errNoKafkaBrokers
			}
			from, to, err := rf.parse(env.cfg.RecordsLocation, env.now())
			if err != nil {
				return err
			}
			recs, err := env.loadRange(ctx, from, to)
			if err != nil {
				return err
			}

			var n int
			switch transport {
			case transportMQTT:
				n, err = publishMQTT(ctx, env, recs)
			case transportKafka:
				producer := queue.NewProducer(env.cfg.KafkaBrokers, env.cfg.KafkaTopic)
				err = producer.PublishSnapshots(ctx, recs)
				if closeErr := producer.Close(); err == nil {
					err = closeErr
				}
				if err == nil {
					n = len(recs)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d snapshots over %s\n", n, transport)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&transport, "transport", transportMQTT, "Bus to publish on (mqtt, kafka)")
	return cmd
}

func publishMQTT(ctx context.Context, env *cliEnv, recs []records.Record) (int, error) {
	publisher := mqtt.NewPublisher(env.cfg, env.logger)
	defer publisher.Disconnect()

	connectCtx, cancel := context.WithTimeout(ctx, publishConnectTimeout)
	err := publisher.Connect(connectCtx)
	cancel()
	if err != nil {
		return 0, err
	}
	return publisher.PublishAll(ctx, recs)
}
