// Package notify implements the notification tool family: immediate
// notifications published over MQTT and an in-memory reminder
// scheduler that publishes when reminders fire.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/voxmachina/jarvis/internal/config"
)

// Notification is the payload published for subscribers (dashboards,
// phones, TTS bridges).
type Notification struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timeout   int    `json:"timeout,omitempty"` // Display seconds
	Timestamp string `json:"timestamp"`
}

// Publisher maintains the MQTT connection and publishes notifications.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// NewPublisher creates a Publisher but does not connect. Call
// [Publisher.Start] to establish the connection.
func NewPublisher(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger}
}

// Start connects to the MQTT broker. autopaho reconnects in the
// background for the life of ctx.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.cfg.Topic + "/availability"

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			if _, err := cm.Publish(ctx, &paho.Publish{
				Topic:   availTopic,
				Payload: []byte("online"),
				QoS:     1,
				Retain:  true,
			}); err != nil {
				p.logger.Warn("mqtt availability publish failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "jarvis-notify",
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes an offline availability message and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.cfg.Topic + "/availability",
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "error", err)
	}
	return p.cm.Disconnect(ctx)
}

// Notify publishes one notification to the configured topic.
func (p *Publisher) Notify(ctx context.Context, n Notification) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}
	if n.Timestamp == "" {
		n.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.cfg.Topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	p.logger.Info("notification published", "title", n.Title)
	return nil
}
