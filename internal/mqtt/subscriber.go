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
)

const handleTimeout = 10 * time.Second

// MessageHandler stores one validated snapshot.
type MessageHandler func(ctx context.Context, rec records.Record) error

// SnapshotSubscriber is the part of Subscriber the datasource feature wires into.
type SnapshotSubscriber interface {
	SetMessageHandler(handler MessageHandler)
}

type Subscriber struct {
	client    mqtt.Client
	topic     string
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	handler   MessageHandler

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		topic:  cfg.MQTTTopic,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}
	opts := newClientOptions(cfg, cfg.MQTTClientID, s.logger,
		func(c mqtt.Client) {
			s.setConnected(true)
			// A clean session loses subscriptions on reconnect.
			s.subscribe(c)
		},
		func() { s.setConnected(false) },
	)
	s.client = mqtt.NewClient(opts)
	return s
}

func (s *Subscriber) SetMessageHandler(handler MessageHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Connect waits for the initial broker connection. It respects ctx and
// Disconnect. When ctx ends first the client keeps retrying in the
// background and subscribes once the broker is reachable. Subscribing
// happens on every (re)connect.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

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
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
}

// subscribe runs inside the connect callback and must not block on the token.
func (s *Subscriber) subscribe(c mqtt.Client) {
	token := c.Subscribe(s.topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			s.logger.Error("subscribe timeout", "topic", s.topic)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Error("subscribe failed", "topic", s.topic, "error", err)
			return
		}
		s.logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", qos)
	}()
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var rec records.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		s.logger.Warn("failed to parse snapshot message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if err := rec.Validate(); err != nil {
		s.logger.Warn("invalid snapshot message",
			"topic", topic,
			"station_name", rec.StationName,
			"error", err,
		)
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	if err := handler(ctx, rec); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"station_name", rec.StationName,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed snapshot message",
		"station_name", rec.StationName,
		"timestamp", rec.Timestamp,
	)
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the connection. Safe to call
// more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.topic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
