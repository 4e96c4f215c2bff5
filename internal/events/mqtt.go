package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // events go to Topic/<type>
	Retain   bool
	// Timeout bounds connect and publish; zero uses 10s
	Timeout time.Duration
}

// mqttClient is the subset of mqtt.Client the sink needs
type mqttClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes events as JSON to an MQTT broker
type MQTTSink struct {
	cfg    MQTTConfig
	client mqttClient
	log    logger.Logger
	mu     sync.Mutex
}

// NewMQTTSink creates a sink with a paho client. Call Connect before
// registering it on the bus.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is required").
			Component("events").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Topic == "" {
		cfg.Topic = "birdhomie"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "birdhomie"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &MQTTSink{cfg: cfg, log: GetLogger()}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.log.Info("connected to MQTT broker", logger.String("broker", logger.RedactURL(cfg.Broker)))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("MQTT connection lost", logger.Error(err))
	})
	s.client = mqtt.NewClient(opts)
	return s, nil
}

func newMQTTSinkWithClient(cfg MQTTConfig, c mqttClient) *MQTTSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MQTTSink{cfg: cfg, client: c, log: GetLogger()}
}

// Connect connects to the broker
func (s *MQTTSink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client.IsConnected() {
		return nil
	}
	token := s.client.Connect()
	if err := waitToken(ctx, token, s.cfg.Timeout); err != nil {
		return errors.New(fmt.Errorf("mqtt connect: %w", err)).
			Component("events").
			Category(errors.CategoryMQTTConnection).
			Context("broker", logger.RedactURL(s.cfg.Broker)).
			Build()
	}
	return nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Consume publishes e to Topic/<type>
func (s *MQTTSink) Consume(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := strings.TrimSuffix(s.cfg.Topic, "/") + "/" + string(e.Type)
	token := s.client.Publish(topic, 0, s.cfg.Retain, payload)
	if err := waitToken(ctx, token, s.cfg.Timeout); err != nil {
		return errors.New(fmt.Errorf("mqtt publish to %s: %w", topic, err)).
			Component("events").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return nil
}

// Close disconnects from the broker
func (s *MQTTSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s", timeout)
	}
}
