package alerting

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/metrics"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/messages"
	"github.com/LeonardoBeccarini/irrigation_alerts/pkg/dedup"
	"github.com/LeonardoBeccarini/irrigation_alerts/pkg/rabbitmq"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://irrigation-alerts.local/schemas/"

var ErrInvalidEvent = errors.New("alerting: invalid event")

// Topics are the MQTT filters the router listens on.
type Topics struct {
	Status       string
	Advisory     string
	Verification string
	Trigger      string
}

type route struct {
	kind   string
	filter string
	schema *jsonschema.Schema
	handle func(ctx context.Context, topic string, payload []byte) error
}

// Sweeper runs a named sweep; the scheduler implements it to keep triggered
// sweeps from overlapping with ticks.
type Sweeper interface {
	Run(ctx context.Context, name string) (Report, error)
}

// Router validates bus events and dispatches them to the service.
type Router struct {
	svc     *Service
	sweeper Sweeper
	routes  []route
	dedup   *dedup.Deduper
	timeout time.Duration
	log     zerolog.Logger
}

// NewRouter compiles the event schemas. A nil sweeper runs triggered sweeps
// directly on svc.
func NewRouter(svc *Service, sweeper Sweeper, topics Topics, d *dedup.Deduper) (*Router, error) {
	if d == nil {
		d = dedup.New(10*time.Minute, 20000)
	}
	r := &Router{svc: svc, sweeper: sweeper, dedup: d, timeout: time.Minute, log: logger.WithComponent("router")}
	if r.sweeper == nil {
		r.sweeper = sweepFunc(svc.Sweep)
	}

	compiler := jsonschema.NewCompiler()
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", e.Name(), err)
		}
		if err := compiler.AddResource(schemaBase+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
	}

	add := func(kind, filter, schema string, h func(context.Context, string, []byte) error) error {
		if filter == "" {
			return nil
		}
		sch, err := compiler.Compile(schemaBase + schema)
		if err != nil {
			return fmt.Errorf("compile schema %s: %w", schema, err)
		}
		r.routes = append(r.routes, route{kind: kind, filter: filter, schema: sch, handle: h})
		return nil
	}
	if err := errors.Join(
		add("cycle_status", topics.Status, "cycle_status.json", r.onCycleStatus),
		add("advisory", topics.Advisory, "advisory.json", r.onAdvisory),
		add("verification", topics.Verification, "verification.json", r.onVerification),
		add("sweep_trigger", topics.Trigger, "sweep_trigger.json", r.onTrigger),
	); err != nil {
		return nil, err
	}
	return r, nil
}

type sweepFunc func(ctx context.Context, name string) (Report, error)

func (f sweepFunc) Run(ctx context.Context, name string) (Report, error) { return f(ctx, name) }

// Subscriptions lists the filters with QoS 1; redeliveries are absorbed by
// the payload deduper.
func (r *Router) Subscriptions() []rabbitmq.Subscription {
	subs := make([]rabbitmq.Subscription, 0, len(r.routes))
	for _, rt := range r.routes {
		subs = append(subs, rabbitmq.Subscription{Topic: rt.filter, QoS: 1})
	}
	return subs
}

// Handle is a rabbitmq.Handler.
func (r *Router) Handle(topic string, m mqtt.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.Dispatch(ctx, topic, m.Payload())
}

// Dispatch routes one payload. Unknown topics are ignored.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) error {
	for _, rt := range r.routes {
		if !rabbitmq.TopicMatches(rt.filter, topic) {
			continue
		}
		if !r.dedup.ShouldProcessPayload(topic, payload) {
			metrics.EventsConsumed.WithLabelValues(rt.kind, "duplicate").Inc()
			return nil
		}
		if err := validate(rt.schema, payload); err != nil {
			metrics.EventsConsumed.WithLabelValues(rt.kind, "invalid").Inc()
			r.log.Warn().Err(err).Str("topic", topic).Msg("event rejected")
			return err
		}
		if err := rt.handle(ctx, topic, payload); err != nil {
			metrics.EventsConsumed.WithLabelValues(rt.kind, "error").Inc()
			return fmt.Errorf("%s: %w", rt.kind, err)
		}
		metrics.EventsConsumed.WithLabelValues(rt.kind, "ok").Inc()
		return nil
	}
	return nil
}

func validate(sch *jsonschema.Schema, payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

func (r *Router) onCycleStatus(ctx context.Context, topic string, payload []byte) error {
	var evt messages.CycleStatusChanged
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if evt.CycleID == "" {
		evt.CycleID = lastSegment(topic)
	}
	return r.svc.HandleCycleStatus(ctx, evt)
}

func (r *Router) onAdvisory(ctx context.Context, topic string, payload []byte) error {
	var evt messages.AdvisoryEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if evt.FieldID == "" {
		evt.FieldID = lastSegment(topic)
	}
	return r.svc.HandleAdvisory(ctx, evt)
}

func (r *Router) onVerification(ctx context.Context, topic string, payload []byte) error {
	var evt messages.VerificationRequested
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if evt.VerificationID == "" {
		evt.VerificationID = lastSegment(topic)
	}
	return r.svc.HandleVerificationRequested(ctx, evt)
}

func (r *Router) onTrigger(ctx context.Context, topic string, payload []byte) error {
	var evt messages.SweepTrigger
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
	}
	if evt.Signal == "" {
		evt.Signal = lastSegment(topic)
	}
	rep, err := r.sweeper.Run(ctx, evt.Signal)
	if errors.Is(err, ErrSweepRunning) {
		r.log.Info().Str("signal", evt.Signal).Msg("sweep already running, trigger dropped")
		return nil
	}
	if err != nil {
		return err
	}
	r.log.Info().Str("signal", evt.Signal).Int("entities", rep.Entities).Msg("triggered sweep done")
	return nil
}

func lastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func expandAlertTopic(tmpl string, a entities.Alert) string {
	return rabbitmq.ExpandTopic(tmpl, map[string]string{
		"field": a.FieldID,
		"type":  string(a.Type),
	})
}
