package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Options configures the broker connection.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Prefix     string
	QoS        byte
	BufferSize int
}

// RealClient is a paho-backed Client.
type RealClient struct {
	client paho.Client
	topics Topics
	qos    byte
	logger *zap.Logger

	mu            sync.Mutex
	subs          map[string]Handler
	buffer        *ringBuffer
	connectedOnce bool
}

// NewRealClient connects to the broker. If the broker is not reachable
// within the connect timeout, the client keeps retrying in the background
// and buffers publishes until it connects.
func NewRealClient(o Options, logger *zap.Logger) (*RealClient, error) {
	c := &RealClient{
		topics: Topics{Prefix: o.Prefix},
		qos:    o.QoS,
		logger: logger,
		subs:   make(map[string]Handler),
		buffer: newRingBuffer(o.BufferSize, logger),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(c.topics.System(), string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn("mqtt broker not reachable yet, buffering until connected",
			zap.String("broker", o.Broker))
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// onConnect restores subscriptions and replays buffered messages.
func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for f, h := range c.subs {
		subs[f] = h
	}
	pending := c.buffer.drain()
	reconnect := c.connectedOnce
	c.connectedOnce = true
	c.mu.Unlock()

	for filter, h := range subs {
		if err := c.subscribe(filter, h); err != nil {
			c.logger.Error("mqtt resubscribe failed", zap.String("filter", filter), zap.Error(err))
		}
	}
	for _, m := range pending {
		client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	c.logger.Info("mqtt connected",
		zap.Int("subscriptions", len(subs)),
		zap.Int("replayed", len(pending)))

	if reconnect {
		payload, err := reconnectedPayload(time.Now())
		if err != nil {
			c.logger.Error("mqtt reconnected event not published", zap.Error(err))
			return
		}
		client.Publish(c.topics.System(), 1, false, payload)
	}
}

func reconnectedPayload(now time.Time) ([]byte, error) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: now, Event: "RECONNECTED"})
	if err != nil {
		return nil, fmt.Errorf("format reconnected payload: %w", err)
	}
	return payload, nil
}

func (c *RealClient) subscribe(filter string, h Handler) error {
	token := c.client.Subscribe(filter, c.qos, func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", filter)
	}
	return token.Error()
}

// Subscribe registers handler for filter and subscribes now if connected.
func (c *RealClient) Subscribe(filter string, handler Handler) error {
	c.mu.Lock()
	c.subs[filter] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(filter, handler)
}

// Publish sends payload, buffering it while disconnected.
func (c *RealClient) Publish(topic string, payload []byte, retained bool) error {
	return c.publish(message{topic: topic, payload: payload, qos: c.qos, retained: retained})
}

func (c *RealClient) publish(m message) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.buffer.push(m)
		c.mu.Unlock()
		return nil
	}

	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		c.mu.Lock()
		c.buffer.push(m)
		c.mu.Unlock()
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// PublishSystem sends a lifecycle event with QoS 1 so shutdown notices are delivered.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(message{topic: c.topics.System(), payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the connection is active.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
