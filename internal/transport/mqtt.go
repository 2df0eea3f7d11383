// Package transport provides the MQTT implementation of the narrow
// pub/sub contract the core consumes: subscribe, unsubscribe, publish
// and an inbound delivery callback.
package transport

import (
	"context"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler receives every inbound payload with its topic.
type MessageHandler func(topic string, payload []byte)

// Options configure the MQTT connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
}

// Client wraps a paho MQTT client. Active subscriptions are remembered
// and replayed on reconnect.
type Client struct {
	logger  *log.Logger
	qos     byte
	handler MessageHandler

	mu     sync.Mutex
	topics map[string]struct{}

	cli mqtt.Client
}

// NewClient builds a client; Connect must be called before use.
func NewClient(opts Options, logger *log.Logger, handler MessageHandler) *Client {
	c := &Client{
		logger:  logger,
		qos:     opts.QoS,
		handler: handler,
		topics:  make(map[string]struct{}),
	}

	h := func(_ mqtt.Client, msg mqtt.Message) {
		c.handler(msg.Topic(), msg.Payload())
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetDefaultPublishHandler(h)

	if opts.Username != "" {
		mqttOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		mqttOpts.SetPassword(opts.Password)
	}

	mqttOpts.OnConnect = func(cli mqtt.Client) {
		logger.Printf("connected to broker %s", opts.BrokerURL)
		c.mu.Lock()
		topics := make([]string, 0, len(c.topics))
		for t := range c.topics {
			topics = append(topics, t)
		}
		c.mu.Unlock()
		for _, t := range topics {
			if token := cli.Subscribe(t, c.qos, h); token.Wait() && token.Error() != nil {
				logger.Printf("resubscribe %s error: %v", t, token.Error())
			}
		}
	}
	mqttOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Printf("connection lost: %v", err)
	}

	c.cli = mqtt.NewClient(mqttOpts)
	return c
}

// ConnectWithBackoff connects, retrying with exponential backoff until
// the context is cancelled.
func (c *Client) ConnectWithBackoff(ctx context.Context, start, max time.Duration) error {
	backoff := start
	for {
		token := c.cli.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		c.logger.Printf("connect error: %v; retrying in %s", token.Error(), backoff)
		select {
		case <-time.After(backoff):
			if backoff < max {
				backoff *= 2
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe registers the topic for delivery to the message handler.
func (c *Client) Subscribe(topic string) error {
	h := func(_ mqtt.Client, msg mqtt.Message) {
		c.handler(msg.Topic(), msg.Payload())
	}
	if token := c.cli.Subscribe(topic, c.qos, h); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Unsubscribe stops delivery for the topic.
func (c *Client) Unsubscribe(topic string) error {
	if token := c.cli.Unsubscribe(topic); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
	return nil
}

// Publish sends a payload on the topic.
func (c *Client) Publish(topic string, payload []byte) error {
	if token := c.cli.Publish(topic, c.qos, false, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Disconnect closes the connection, allowing in-flight work to finish.
func (c *Client) Disconnect() {
	c.cli.Disconnect(250)
}
