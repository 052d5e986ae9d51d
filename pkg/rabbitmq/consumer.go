package rabbitmq

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Handler processes one delivery. Returned errors are logged only; the
// message is acknowledged either way.
type Handler func(topic string, message mqtt.Message) error

type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// Subscription is a topic filter and the QoS to subscribe with.
type Subscription struct {
	Topic string
	QoS   byte
}

// MultiConsumer subscribes one handler to several topic filters and blocks
// until ctx is cancelled.
type MultiConsumer struct {
	client  mqtt.Client
	subs    []Subscription
	handler Handler
	ready   chan struct{}
}

func NewMultiConsumer(client mqtt.Client, subs []Subscription, handler Handler) *MultiConsumer {
	return &MultiConsumer{client: client, subs: subs, handler: handler, ready: make(chan struct{})}
}

func NewConsumer(client mqtt.Client, topic string, handler Handler) *MultiConsumer {
	return NewMultiConsumer(client, []Subscription{{Topic: topic, QoS: 1}}, handler)
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.handler = handler
}

// Ready is closed once every subscription was attempted.
func (m *MultiConsumer) Ready() <-chan struct{} { return m.ready }

func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	for _, sub := range m.subs {
		topic := sub.Topic
		token := m.client.Subscribe(topic, sub.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if m.handler == nil {
				log.Warn().Str("topic", topic).Msg("no handler set")
				return
			}
			if err := m.handler(msg.Topic(), msg); err != nil {
				log.Error().Err(err).Str("topic", msg.Topic()).Msg("error handling message")
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
			continue
		}
		log.Info().Str("topic", topic).Uint8("qos", sub.QoS).Msg("subscribed")
	}
	close(m.ready)

	<-ctx.Done()

	for _, sub := range m.subs {
		m.client.Unsubscribe(sub.Topic).Wait()
	}
}

var _ IConsumer = (*MultiConsumer)(nil)
