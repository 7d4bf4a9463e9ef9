// Package mqtt carries station snapshots over an MQTT broker: a Subscriber
// feeds them to the store and a Publisher replays recorded days.
package mqtt

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/VJean/velib/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// TopicPrefix is the root of every snapshot topic.
	TopicPrefix = "velib/stations"

	qos            = byte(1)
	publishTimeout = 5 * time.Second
)

// connectRetryInterval is the wait between attempts while the broker is down.
var connectRetryInterval = 5 * time.Second

func newClientOptions(cfg config.Config, clientID string, logger *slog.Logger, onConnect func(mqtt.Client), onLost func()) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(clientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", clientID)
		onConnect(c)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
		onLost()
	})
	return opts
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// StationSlug turns a station name into a single topic level.
func StationSlug(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unknown"
	}
	return s
}

// SnapshotTopic is the topic a station's snapshots are published on.
func SnapshotTopic(stationName string) string {
	return fmt.Sprintf("%s/%s/snapshot", TopicPrefix, StationSlug(stationName))
}
