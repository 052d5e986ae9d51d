// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/irrigation_alerts/pkg/rabbitmq"
)

type Token struct{ err error }

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Done() <-chan struct{}          { c := make(chan struct{}); close(c); return c }
func (t *Token) Error() error                   { return t.err }

type Message struct {
	TopicName string
	Body      []byte
	QoSLevel  byte
	Dup       bool
}

func (m *Message) Duplicate() bool   { return m.Dup }
func (m *Message) Qos() byte         { return m.QoSLevel }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}

type Published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Client routes Publish calls to matching subscriptions synchronously and
// records everything published.
type Client struct {
	mu        sync.Mutex
	subs      map[string]mqtt.MessageHandler
	qos       map[string]byte
	published []Published
	connected bool
	// SubscribeErr, when set, fails every Subscribe.
	SubscribeErr error
}

func NewClient() *Client {
	return &Client{subs: map[string]mqtt.MessageHandler{}, qos: map[string]byte{}, connected: true}
}

func (c *Client) IsConnected() bool      { c.mu.Lock(); defer c.mu.Unlock(); return c.connected }
func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }
func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return &Token{}
}
func (c *Client) Disconnect(uint)                         { c.mu.Lock(); c.connected = false; c.mu.Unlock() }
func (c *Client) AddRoute(string, mqtt.MessageHandler)    {}
func (c *Client) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *Client) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	c.mu.Lock()
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Payload: body})
	var handlers []mqtt.MessageHandler
	for filter, h := range c.subs {
		if Match(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(c, &Message{TopicName: topic, Body: body, QoSLevel: qos})
	}
	return &Token{}
}

func (c *Client) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	if c.SubscribeErr != nil {
		return &Token{err: c.SubscribeErr}
	}
	c.mu.Lock()
	c.subs[topic] = cb
	c.qos[topic] = qos
	c.mu.Unlock()
	return &Token{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, cb mqtt.MessageHandler) mqtt.Token {
	for t, q := range filters {
		c.Subscribe(t, q, cb)
	}
	return &Token{}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
		delete(c.qos, t)
	}
	c.mu.Unlock()
	return &Token{}
}

// Subscriptions returns the active filters and their QoS.
func (c *Client) Subscriptions() map[string]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]byte, len(c.qos))
	for k, v := range c.qos {
		out[k] = v
	}
	return out
}

func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Match reports whether topic matches filter.
func Match(filter, topic string) bool { return rabbitmq.TopicMatches(filter, topic) }

var _ mqtt.Client = (*Client)(nil)
