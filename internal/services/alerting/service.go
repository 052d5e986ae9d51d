// Package alerting evaluates sensors and schedules against the alert policy,
// persists admitted alerts and pushes notifications.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/lock"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/metrics"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/notify"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/tracing"
)

// Notifier pushes an envelope to every device of a user.
type Notifier interface {
	SendToUser(ctx context.Context, userID string, env policy.Envelope) (notify.Delivery, error)
}

// AlertSink receives a copy of every persisted alert.
type AlertSink interface {
	Record(a entities.Alert)
}

// AlertPublisher re-publishes persisted alerts on the bus.
type AlertPublisher interface {
	PublishTo(topic string, message interface{}) error
}

type Options struct {
	Store    store.Store
	Readings store.ReadingSource // defaults to Store
	Locker   lock.Locker         // defaults to an in-process lock
	Notifier Notifier
	Mailer   notify.Mailer
	Sink     AlertSink
	Bus      AlertPublisher
	// AlertTopic is a template with {field} and {type}; empty disables publishing.
	AlertTopic string

	Policy        policy.Config
	Mail          MailSettings
	Concurrency   int
	EntityTimeout time.Duration
	Now           func() time.Time
}

// MailSettings drive the admin verification mail.
type MailSettings struct {
	From        string
	Admins      []string
	ApprovalURL string // base URL of the approval service
}

type Service struct {
	store    store.Store
	readings store.ReadingSource
	locker   lock.Locker
	notifier Notifier
	mailer   notify.Mailer
	sink     AlertSink
	bus      AlertPublisher
	topic    string

	policy        policy.Config
	mail          MailSettings
	concurrency   int
	entityTimeout time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

func NewService(opts Options) *Service {
	s := &Service{
		store:         opts.Store,
		readings:      opts.Readings,
		locker:        opts.Locker,
		notifier:      opts.Notifier,
		mailer:        opts.Mailer,
		sink:          opts.Sink,
		bus:           opts.Bus,
		topic:         opts.AlertTopic,
		policy:        opts.Policy,
		mail:          opts.Mail,
		concurrency:   opts.Concurrency,
		entityTimeout: opts.EntityTimeout,
		now:           opts.Now,
		log:           logger.WithComponent("alerting"),
	}
	if s.readings == nil {
		s.readings = opts.Store
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.mailer == nil {
		s.mailer = notify.DisabledMailer{}
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// field loads a field; a missing one yields nil so display names fall back.
func (s *Service) field(ctx context.Context, id string) (*entities.Field, error) {
	if id == "" {
		return nil, nil
	}
	f, err := s.store.GetField(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load field %s: %w", id, err)
	}
	return f, nil
}

// evaluateSensor runs one sensor through
// fetch -> tier -> cooldown gate -> persist -> notify.
// Once the alert is persisted, a notification failure is still returned but
// the alert stays, so a retried sweep is suppressed by the cooldown.
func (s *Service) evaluateSensor(ctx context.Context, p policy.SignalPolicy, sensor entities.Sensor) (out policy.Outcome, err error) {
	ctx, span := tracing.Start(ctx, "alerting.evaluate_sensor")
	span.SetAttributes(attribute.String("sensor_id", sensor.ID), attribute.String("signal", string(p.Signal)))
	defer func() {
		label := out.String()
		if err != nil {
			label = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", label))
		span.End()
		metrics.EvaluationsTotal.WithLabelValues(string(p.Signal), label).Inc()
	}()

	log := s.log.With().Str("sensor_id", sensor.ID).Str("field_id", sensor.FieldID).Logger()

	reading, err := s.readings.LatestReading(ctx, sensor.ID)
	if err != nil {
		return policy.OutcomeNoData, fmt.Errorf("latest reading %s: %w", sensor.ID, err)
	}
	if reading == nil {
		log.Debug().Msg("no reading yet")
		return policy.OutcomeNoData, nil
	}

	class, ok := policy.Classify(p, sensor, *reading)
	if !ok {
		return policy.OutcomeBelowThreshold, nil
	}

	unlock, err := s.locker.Lock(ctx, class.Key.String())
	if err != nil {
		return policy.OutcomeSuppressed, fmt.Errorf("lock %s: %w", class.Key, err)
	}
	defer unlock()

	last, err := s.store.LastAlert(ctx, class.Key)
	if err != nil {
		return policy.OutcomeSuppressed, fmt.Errorf("last alert %s: %w", class.Key, err)
	}
	field, err := s.field(ctx, sensor.FieldID)
	if err != nil {
		return policy.OutcomeSuppressed, err
	}

	d := policy.Decide(p, sensor, field, reading, last, s.now())
	if d.Outcome != policy.OutcomeAdmitted {
		log.Debug().Str("alert_type", string(class.Key.Type)).Str("severity", string(class.Tier)).Msg("inside cooldown")
		return d.Outcome, nil
	}

	if err := s.store.AppendAlert(ctx, class.Key, last, *d.Alert); err != nil {
		if errors.Is(err, store.ErrCooldownConflict) {
			log.Info().Str("alert_type", string(class.Key.Type)).Msg("concurrent writer won the cooldown key")
			return policy.OutcomeSuppressed, nil
		}
		return policy.OutcomeSuppressed, fmt.Errorf("append alert: %w", err)
	}
	s.mirror(*d.Alert)
	log.Info().
		Str("alert_id", d.Alert.ID).
		Str("alert_type", string(d.Alert.Type)).
		Str("severity", string(d.Alert.Severity)).
		Float64("value", reading.Value).
		Float64("threshold", class.Threshold).
		Msg("alert created")

	if err := s.push(ctx, d.Alert.UserID, d.Alert.Type, d.Alert.Severity, d.Values()); err != nil {
		return policy.OutcomeAdmitted, err
	}
	return policy.OutcomeAdmitted, nil
}

// mirror forwards a persisted alert to the sink and the bus. Both are
// best effort.
func (s *Service) mirror(a entities.Alert) {
	if s.sink != nil {
		s.sink.Record(a)
	}
	if s.bus == nil || s.topic == "" {
		return
	}
	topic := expandAlertTopic(s.topic, a)
	if err := s.bus.PublishTo(topic, a); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("alert publish failed")
	}
}

func (s *Service) push(ctx context.Context, userID string, kind entities.AlertType, sev entities.Severity, v policy.Values) error {
	if userID == "" {
		s.log.Warn().Str("alert_type", string(kind)).Msg("no owner to notify")
		return nil
	}
	env, ok := policy.ComposeNotification(kind, sev, v)
	if !ok {
		return nil
	}
	if s.notifier == nil {
		return nil
	}
	if _, err := s.notifier.SendToUser(ctx, userID, env); err != nil {
		return fmt.Errorf("notify %s: %w", userID, err)
	}
	return nil
}
