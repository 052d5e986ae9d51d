package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/metrics"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/tracing"
)

// Sweep names accepted by Sweep, the CLI and the trigger topic.
const (
	SweepSoil      = "soil"
	SweepWater     = "water"
	SweepReminders = "reminders"
)

var ErrUnknownSweep = errors.New("alerting: unknown sweep")

// Report counts entity outcomes of one sweep.
type Report struct {
	Sweep    string         `json:"sweep"`
	Entities int            `json:"entities"`
	Outcomes map[string]int `json:"outcomes"`
	Failed   int            `json:"failed"`
}

type collector struct {
	mu     sync.Mutex
	report Report
	errs   []error
}

func newCollector(sweep string) *collector {
	return &collector{report: Report{Sweep: sweep, Outcomes: map[string]int{}}}
}

func (c *collector) add(o policy.Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Entities++
	if err != nil {
		c.report.Failed++
		c.errs = append(c.errs, err)
		return
	}
	c.report.Outcomes[o.String()]++
}

// Sweep runs the named sweep.
func (s *Service) Sweep(ctx context.Context, name string) (Report, error) {
	switch name {
	case SweepSoil:
		return s.SweepSignal(ctx, entities.SignalSoilMoisture)
	case SweepWater:
		return s.SweepSignal(ctx, entities.SignalWaterLevel)
	case SweepReminders:
		return s.SweepReminders(ctx)
	}
	return Report{}, fmt.Errorf("%w: %q", ErrUnknownSweep, name)
}

// SweepSignal evaluates every sensor of a signal. Sensors run concurrently
// and independently: one failure is logged and collected, siblings go on,
// and the joined error is returned for the scheduler to retry.
func (s *Service) SweepSignal(ctx context.Context, sig entities.Signal) (Report, error) {
	p, ok := s.policy.For(sig)
	if !ok {
		return Report{}, fmt.Errorf("%w: signal %q", ErrUnknownSweep, sig)
	}
	name := string(sig)
	ctx, span := tracing.Start(ctx, "alerting.sweep")
	span.SetAttributes(attribute.String("signal", name))
	defer span.End()
	start := time.Now()
	defer func() { metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()

	sensors, err := s.store.ListSensors(ctx, sig)
	if err != nil {
		return Report{Sweep: name}, fmt.Errorf("list %s sensors: %w", sig, err)
	}

	c := newCollector(name)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, sensor := range sensors {
		g.Go(func() error {
			ectx, cancel := s.entityContext(ctx)
			defer cancel()
			o, err := s.evaluateSensor(ectx, p, sensor)
			if err != nil {
				metrics.SweepErrors.WithLabelValues(name).Inc()
				s.log.Error().Err(err).Str("sensor_id", sensor.ID).Str("signal", name).Msg("sensor evaluation failed")
			}
			c.add(o, err)
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().Str("signal", name).Int("sensors", c.report.Entities).Int("failed", c.report.Failed).
		Interface("outcomes", c.report.Outcomes).Msg("sweep finished")
	return c.report, errors.Join(c.errs...)
}

// SweepReminders pushes one reminder per active schedule starting within
// the lead window, at most once per dedup window.
func (s *Service) SweepReminders(ctx context.Context) (Report, error) {
	ctx, span := tracing.Start(ctx, "alerting.sweep")
	span.SetAttributes(attribute.String("signal", SweepReminders))
	defer span.End()
	start := time.Now()
	defer func() { metrics.SweepDuration.WithLabelValues(SweepReminders).Observe(time.Since(start).Seconds()) }()

	schedules, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return Report{Sweep: SweepReminders}, fmt.Errorf("list schedules: %w", err)
	}

	c := newCollector(SweepReminders)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, sc := range schedules {
		g.Go(func() error {
			ectx, cancel := s.entityContext(ctx)
			defer cancel()
			o, err := s.remind(ectx, sc)
			label := o.String()
			if err != nil {
				label = "error"
				metrics.SweepErrors.WithLabelValues(SweepReminders).Inc()
				s.log.Error().Err(err).Str("schedule_id", sc.ID).Msg("reminder failed")
			}
			metrics.EvaluationsTotal.WithLabelValues(SweepReminders, label).Inc()
			c.add(o, err)
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().Int("schedules", c.report.Entities).Int("failed", c.report.Failed).
		Interface("outcomes", c.report.Outcomes).Msg("reminder sweep finished")
	return c.report, errors.Join(c.errs...)
}

func (s *Service) remind(ctx context.Context, sc entities.Schedule) (policy.Outcome, error) {
	if sc.ScheduledTime == nil {
		return policy.OutcomeNoData, nil
	}
	now := s.now()
	until, due := policy.ReminderDue(*sc.ScheduledTime, now, s.policy.Reminders.Lead)
	if !due {
		return policy.OutcomeBelowThreshold, nil
	}

	inserted, err := s.store.AppendReminder(ctx, sc.ID, now, s.policy.Reminders.Dedup)
	if err != nil {
		return policy.OutcomeSuppressed, fmt.Errorf("record reminder %s: %w", sc.ID, err)
	}
	if !inserted {
		return policy.OutcomeSuppressed, nil
	}

	field, err := s.field(ctx, sc.FieldID)
	if err != nil {
		return policy.OutcomeAdmitted, err
	}
	userID := sc.UserID
	if userID == "" && field != nil {
		userID = field.UserID
	}
	v := policy.Values{ScheduleID: sc.ID, FieldID: sc.FieldID, Until: until.Minutes()}
	if field != nil {
		v.FieldName = field.Name
	}
	s.log.Info().Str("schedule_id", sc.ID).Float64("minutes", until.Minutes()).Msg("schedule reminder")
	return policy.OutcomeAdmitted, s.push(ctx, userID, entities.AlertScheduleReminder, entities.SeverityLow, v)
}

func (s *Service) entityContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.entityTimeout > 0 {
		return context.WithTimeout(ctx, s.entityTimeout)
	}
	return context.WithCancel(ctx)
}
