// Package telemetry publishes tracker output to external consumers: a
// websocket hub for live target-snapshot viewers, and an MQTT
// publisher for the gimbal command stream. Both are fire-and-forget
// (spec §5): a disconnected consumer never blocks a tick.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fyt-labs/auto-aim/internal/solver"
)

// MQTTConfig configures the gimbal-command publisher.
type MQTTConfig struct {
	Broker   string
	Port     int
	ClientID string
	Topic    string
	Username string
	Password string
}

// GimbalPublisher publishes GimbalCommand values to an MQTT broker,
// one retained-false message per tick.
type GimbalPublisher struct {
	cfg    MQTTConfig
	client mqtt.Client
}

// NewGimbalPublisher constructs a publisher and connects to the
// broker. The connection uses auto-reconnect, matching the collector
// pattern a dropped broker should not require restarting the tracker.
func NewGimbalPublisher(cfg MQTTConfig) (*GimbalPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("auto-aim-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("telemetry: mqtt connection lost: %v (will auto-reconnect)", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("telemetry: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: mqtt connect: %w", err)
	}

	return &GimbalPublisher{cfg: cfg, client: client}, nil
}

// Publish sends cmd as a JSON payload at QoS 0. Publication is
// fire-and-forget: a slow or disconnected broker never blocks the
// caller waiting for acknowledgement (spec §5).
func (p *GimbalPublisher) Publish(cmd solver.GimbalCommand) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		log.Printf("telemetry: marshal gimbal command: %v", err)
		return
	}
	p.client.Publish(p.cfg.Topic, 0, false, payload)
}

// Close disconnects from the broker, waiting up to the given grace
// period for in-flight publishes to drain.
func (p *GimbalPublisher) Close(grace time.Duration) {
	p.client.Disconnect(uint(grace.Milliseconds()))
}
