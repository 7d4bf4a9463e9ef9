package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VJean/velib/internal/config"
	"github.com/VJean/velib/internal/records"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Publisher sends snapshots to SnapshotTopic(station).
type Publisher struct {
	client    mqtt.Client
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPublisher derives a unique client id from MQTT_CLIENT_ID so a replay can
// run next to the server without kicking its session.
func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}
	clientID := fmt.Sprintf("%s-pub-%s", cfg.MQTTClientID, uuid.NewString()[:8])
	opts := newClientOptions(cfg, clientID, p.logger,
		func(mqtt.Client) { p.setConnected(true) },
		func() { p.setConnected(false) },
	)
	p.client = mqtt.NewClient(opts)
	return p
}

func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// Publish sends one snapshot with QoS 1 and waits for the broker ack.
func (p *Publisher) Publish(rec records.Record) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := SnapshotTopic(rec.StationName)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	token := p.client.Publish(topic, qos, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		p.logger.Error("failed to publish snapshot", "topic", topic, "error", err)
		return fmt.Errorf("publish snapshot: %w", err)
	}

	p.logger.Debug("published snapshot", "topic", topic, "station_name", rec.StationName)
	return nil
}

// PublishAll publishes recs in order and stops at the first failure or when
// ctx is done.
func (p *Publisher) PublishAll(ctx context.Context, recs []records.Record) (int, error) {
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := p.Publish(rec); err != nil {
			return i, err
		}
	}
	return len(recs), nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
