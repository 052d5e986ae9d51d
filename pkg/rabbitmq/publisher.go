package rabbitmq

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

type IPublisher interface {
	PublishMessage(message interface{}) error
	PublishTo(topic string, message interface{}) error
}

// Publisher writes to a default topic, or to any topic via PublishTo.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func NewPublisher(client mqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos}
}

func (p *Publisher) PublishMessage(message interface{}) error {
	return p.PublishTo(p.topic, message)
}

// PublishTo sends strings and byte slices as-is and JSON-encodes anything else.
func (p *Publisher) PublishTo(topic string, message interface{}) error {
	var payload []byte
	switch m := message.(type) {
	case string:
		payload = []byte(m)
	case []byte:
		payload = m
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		payload = b
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	log.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("message published")
	return nil
}

// ExpandTopic fills {name} placeholders of tmpl from vars. Empty values
// become "unknown" so the topic stays routable.
func ExpandTopic(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		if v == "" {
			v = "unknown"
		}
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// TopicMatches implements MQTT filter matching with + and #.
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
