package bus

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish within the configured timeout.
var ErrPublishTimeout = errors.New("publish timed out")

// ClientConfig holds the broker connection settings.
type ClientConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Client wraps the paho MQTT client. It implements Publisher and
// Subscriber. Reconnects are automatic; subscriptions are re-established by
// the OnConnect handler so a broker restart does not silence the core.
type Client struct {
	client         mqtt.Client
	qos            byte
	publishTimeout time.Duration
	logger         *zap.SugaredLogger
}

// NewClient creates a bus client. Connect must be called before use.
func NewClient(cfg ClientConfig, logger *zap.SugaredLogger) *Client {
	c := &Client{
		qos:            cfg.QoS,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Infow("Connected to MQTT broker", "host", cfg.Host, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warnw("Lost connection to MQTT broker", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect establishes the broker connection.
func (c *Client) Connect() error {
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter at the configured QoS.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	tok := c.client.Subscribe(filter, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	c.logger.Infow("Subscribed", "filter", filter, "qos", c.qos)
	return nil
}

// Publish sends a payload to a topic. It waits for the broker ack up to the
// publish timeout; callers treat errors as best-effort delivery failures.
func (c *Client) Publish(topic string, retain bool, payload []byte) error {
	tok := c.client.Publish(topic, c.qos, retain, payload)
	if !tok.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (c *Client) Close() {
	c.client.Disconnect(250)
}
