package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// MQTTConfig configures the MQTT notifier
type MQTTConfig struct {
	// Broker is host:port or a full URL such as tcp://host:1883
	Broker   string
	ClientID string
	// Topic is the prefix; events go to <Topic>/<event name>
	Topic string
	QoS   byte
}

// MQTTNotifier publishes events as JSON to an MQTT broker
type MQTTNotifier struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// NewMQTTNotifier creates a notifier. Call Connect before publishing.
func NewMQTTNotifier(cfg MQTTConfig) *MQTTNotifier {
	if cfg.Topic == "" {
		cfg.Topic = "nd3/events"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "nd3d"
	}
	return &MQTTNotifier{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// BrokerURL normalizes a broker address to a URL paho accepts
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection. Reconnection is automatic afterwards.
func (n *MQTTNotifier) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(n.cfg.Broker))
	opts.SetClientID(n.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		log.Printf("✓ MQTT connected to %s as %s", n.cfg.Broker, n.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		log.Printf("Warning: MQTT connection lost, reconnecting: %v", err)
	}

	n.client = mqtt.NewClient(opts)

	token := n.client.Connect()
	if !waitToken(ctx, token, 5*time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	n.setConnected(true)
	return nil
}

// Notify publishes ev to <Topic>/<ev.Name>
func (n *MQTTNotifier) Notify(ctx context.Context, ev pipeline.Event) error {
	if n.client == nil || !n.isConnected() {
		n.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := n.cfg.Topic + "/" + ev.Name
	token := n.client.Publish(topic, n.cfg.QoS, false, payload)
	if !waitToken(ctx, token, 2*time.Second) {
		n.countError()
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		n.countError()
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	n.mu.Lock()
	n.published[topic]++
	n.mu.Unlock()
	return nil
}

// Close disconnects from the broker
func (n *MQTTNotifier) Close() {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		log.Printf("MQTT disconnected")
	}
	n.setConnected(false)
}

// MQTTStats contains notifier statistics
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns a copy of the notifier statistics
func (n *MQTTNotifier) Stats() MQTTStats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	published := make(map[string]uint64, len(n.published))
	for k, v := range n.published {
		published[k] = v
	}
	return MQTTStats{Connected: n.connected, Published: published, Errors: n.errors}
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = v
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors++
}

// waitToken waits for token until timeout or ctx is done
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
