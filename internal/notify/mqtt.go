package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/worker"
)

// MQTTConfig configures the broker connection
type MQTTConfig struct {
	Broker   string // tcp://host:1883, ssl://host:8883, ws://...
	Topic    string // base topic; outcomes go to <Topic>/<owner>/<repo>
	ClientID string
	QoS      byte          // default 1
	Timeout  time.Duration // connect and publish timeout, default 10s
	Logger   logrus.FieldLogger
}

// MQTTNotifier publishes outcome events to an MQTT broker
type MQTTNotifier struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewMQTTNotifier connects to the broker
func NewMQTTNotifier(cfg MQTTConfig) (*MQTTNotifier, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	cfg = withDefaults(cfg)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetCleanSession(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("timed out connecting to mqtt broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	n := newMQTTNotifier(client, cfg)
	n.log.WithField("broker", cfg.Broker).Info("connected to mqtt broker")
	return n, nil
}

func withDefaults(cfg MQTTConfig) MQTTConfig {
	if cfg.Topic == "" {
		cfg.Topic = "mohtion/bounties"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "mohtion-" + uuid.New().String()[:8]
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return cfg
}

func newMQTTNotifier(client mqtt.Client, cfg MQTTConfig) *MQTTNotifier {
	return &MQTTNotifier{
		client:  client,
		topic:   strings.TrimSuffix(cfg.Topic, "/"),
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		log:     cfg.Logger.WithField("component", "notify"),
		now:     time.Now,
	}
}

// Notify publishes the outcome and waits for the broker to acknowledge it
func (n *MQTTNotifier) Notify(ctx context.Context, o worker.Outcome) error {
	payload, err := Payload(o, n.now())
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	topic := n.topicFor(o.Job)
	token := n.client.Publish(topic, n.qos, false, payload)

	timer := time.NewTimer(n.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	n.log.WithField("topic", topic).Debug("published bounty event")
	return nil
}

// topicFor keeps owner and repo free of MQTT wildcards and separators
func (n *MQTTNotifier) topicFor(job worker.Job) string {
	clean := strings.NewReplacer("/", "_", "+", "_", "#", "_")
	return n.topic + "/" + clean.Replace(job.Owner) + "/" + clean.Replace(job.Repo)
}

// Close disconnects, allowing in-flight work a short grace period
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}

var _ worker.Notifier = (*MQTTNotifier)(nil)
