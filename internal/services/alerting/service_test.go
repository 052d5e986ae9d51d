package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/messages"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/notify"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type push struct {
	userID string
	env    policy.Envelope
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []push
	err  error
}

func (f *fakeNotifier) SendToUser(_ context.Context, userID string, env policy.Envelope) (notify.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return notify.Delivery{}, f.err
	}
	f.sent = append(f.sent, push{userID: userID, env: env})
	return notify.Delivery{Sent: 1}, nil
}

func (f *fakeNotifier) pushes() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push(nil), f.sent...)
}

type fakeMailer struct {
	sent []notify.Mail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m notify.Mail) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []entities.Alert
}

func (r *recordingSink) Record(a entities.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// failingReadings fails for one sensor and delegates otherwise.
type failingReadings struct {
	store.ReadingSource
	sensorID string
}

func (f failingReadings) LatestReading(ctx context.Context, id string) (*entities.Reading, error) {
	if id == f.sensorID {
		return nil, errors.New("influx unavailable")
	}
	return f.ReadingSource.LatestReading(ctx, id)
}

// conflictingStore loses every cooldown race.
type conflictingStore struct {
	*store.MemoryStore
}

func (conflictingStore) AppendAlert(context.Context, entities.CooldownKey, *entities.Alert, entities.Alert) error {
	return store.ErrCooldownConflict
}

func clock(t *time.Time) func() time.Time { return func() time.Time { return *t } }

func newTestService(st store.Store, mutate ...func(*Options)) (*Service, *fakeNotifier) {
	n := &fakeNotifier{}
	opts := Options{
		Store:       st,
		Notifier:    n,
		Policy:      policy.DefaultConfig(),
		Concurrency: 4,
		Now:         func() time.Time { return now },
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewService(opts), n
}

func seedSoil(st *store.MemoryStore, value float64) {
	st.PutField(entities.Field{ID: "f1", UserID: "u1", Name: "North Field"})
	st.PutUser(entities.User{ID: "u1", FCMTokens: []string{"tok"}})
	st.PutSensor(entities.Sensor{ID: "s1", Type: entities.SignalSoilMoisture, FieldID: "f1", Name: "Probe 1"})
	st.AddReading(entities.Reading{SensorID: "s1", Value: value, Timestamp: now.Add(-5 * time.Minute)})
}

func seedWater(st *store.MemoryStore, value float64) {
	st.PutField(entities.Field{ID: "f1", UserID: "u1", Name: "North Field"})
	st.PutSensor(entities.Sensor{ID: "w1", Type: entities.SignalWaterLevel, FieldID: "f1", UserID: "u1", Name: "Tank A"})
	st.AddReading(entities.Reading{SensorID: "w1", Value: value, Timestamp: now.Add(-time.Minute)})
}

func TestSweepSoil_MediumAlertAndNotification(t *testing.T) {
	st := store.NewMemoryStore()
	seedSoil(st, 35)
	sink := &recordingSink{}
	svc, n := newTestService(st, func(o *Options) { o.Sink = sink })

	rep, err := svc.Sweep(context.Background(), SweepSoil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Entities)
	assert.Equal(t, 1, rep.Outcomes["admitted"])

	alerts := st.Alerts()
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, entities.AlertIrrigationNeeded, a.Type)
	assert.Equal(t, entities.SeverityMedium, a.Severity)
	assert.Equal(t, "u1", a.UserID)
	assert.Equal(t, "North Field", a.FieldName)
	require.NotNil(t, a.MoistureLevel)
	assert.Equal(t, 35.0, *a.MoistureLevel)
	require.NotNil(t, a.Threshold)
	assert.Equal(t, 50.0, *a.Threshold)
	assert.False(t, a.Read)

	pushes := n.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "u1", pushes[0].userID)
	assert.Equal(t, "💧 Irrigation Needed", pushes[0].env.Title)
	assert.Equal(t, "35", pushes[0].env.Data["moistureLevel"])
	assert.Len(t, sink.alerts, 1)
}

func TestSweepSoil_CriticalAtDefaultThreshold(t *testing.T) {
	st := store.NewMemoryStore()
	seedSoil(st, 30)
	svc, n := newTestService(st)

	_, err := svc.Sweep(context.Background(), SweepSoil)
	require.NoError(t, err)

	alerts := st.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, entities.AlertSoilDry, alerts[0].Type)
	assert.Equal(t, entities.SeverityCritical, alerts[0].Severity)
	require.NotNil(t, alerts[0].Threshold)
	assert.Equal(t, 30.0, *alerts[0].Threshold)
	require.Len(t, n.pushes(), 1)
	assert.Equal(t, "🚨 Critical: Soil Too Dry", n.pushes()[0].env.Title)
}

func TestSweepSoil_RerunInsideCooldownIsSuppressed(t *testing.T) {
	st := store.NewMemoryStore()
	seedSoil(st, 35)
	at := now
	svc, n := newTestService(st, func(o *Options) { o.Now = clock(&at) })

	_, err := svc.Sweep(context.Background(), SweepSoil)
	require.NoError(t, err)
	at = now.Add(time.Hour)
	rep, err := svc.Sweep(context.Background(), SweepSoil)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Outcomes["suppressed"])
	assert.Len(t, st.Alerts(), 1)
	assert.Len(t, n.pushes(), 1)
}

func TestSweepWater_CriticalInsideCooldownSuppressed(t *testing.T) {
	st := store.NewMemoryStore()
	seedWater(st, 8)
	crit := 9.0
	require.NoError(t, st.InsertAlert(context.Background(), entities.Alert{
		ID: "prev", UserID: "u1", FieldID: "f1", SensorID: "w1",
		Type: entities.AlertWaterLow, Severity: entities.SeverityCritical,
		WaterLevel: &crit, Timestamp: now.Add(-2 * time.Hour),
	}))
	svc, n := newTestService(st)

	rep, err := svc.Sweep(context.Background(), SweepWater)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Outcomes["suppressed"])
	assert.Len(t, st.Alerts(), 1)
	assert.Empty(t, n.pushes())
}

func TestSweepWater_EscalationBypassesCooldown(t *testing.T) {
	st := store.NewMemoryStore()
	seedWater(st, 8)
	med := 18.0
	require.NoError(t, st.InsertAlert(context.Background(), entities.Alert{
		ID: "prev", UserID: "u1", FieldID: "f1", SensorID: "w1",
		Type: entities.AlertWaterLow, Severity: entities.SeverityMedium,
		WaterLevel: &med, Timestamp: now.Add(-time.Hour),
	}))
	svc, n := newTestService(st)

	rep, err := svc.Sweep(context.Background(), SweepWater)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Outcomes["admitted"])

	alerts := st.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, entities.SeverityCritical, alerts[1].Severity)
	pushes := n.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "🚨 Critical: Water Level Alert", pushes[0].env.Title)
}

func TestSweepSignal_FailureDoesNotStopSiblings(t *testing.T) {
	st := store.NewMemoryStore()
	seedSoil(st, 35)
	st.PutSensor(entities.Sensor{ID: "s2", Type: entities.SignalSoilMoisture, FieldID: "f1"})
	st.AddReading(entities.Reading{SensorID: "s2", Value: 30, Timestamp: now})
	svc, n := newTestService(st, func(o *Options) {
		o.Readings = failingReadings{ReadingSource: st, sensorID: "s1"}
	})

	rep, err := svc.Sweep(context.Background(), SweepSoil)
	require.Error(t, err)
	assert.Equal(t, 2, rep.Entities)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Outcomes["admitted"])
	require.Len(t, st.Alerts(), 1)
	assert.Equal(t, "s2", st.Alerts()[0].SensorID)
	assert.Len(t, n.pushes(), 1)
}

func TestSweepSignal_LostRaceIsSuppressed(t *testing.T) {
	mem := store.NewMemoryStore()
	seedSoil(mem, 35)
	svc, n := newTestService(conflictingStore{mem}, func(o *Options) { o.Readings = mem })

	rep, err := svc.Sweep(context.Background(), SweepSoil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Outcomes["suppressed"])
	assert.Empty(t, mem.Alerts())
	assert.Empty(t, n.pushes())
}

func TestSweepSignal_ConcurrentSweepsAlertOnce(t *testing.T) {
	st := store.NewMemoryStore()
	seedSoil(st, 35)
	svc, n := newTestService(st)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Sweep(context.Background(), SweepSoil)
		}()
	}
	wg.Wait()

	assert.Len(t, st.Alerts(), 1)
	assert.Len(t, n.pushes(), 1)
}

func TestSweepSignal_NotificationFailureKeepsAlert(t *testing.T) {
	st := store.NewMemoryStore()
	seedSoil(st, 35)
	svc, n := newTestService(st)
	n.err = errors.New("push down")

	_, err := svc.Sweep(context.Background(), SweepSoil)
	require.Error(t, err)
	assert.Len(t, st.Alerts(), 1)
}

func TestSweep_Unknown(t *testing.T) {
	svc, _ := newTestService(store.NewMemoryStore())
	_, err := svc.Sweep(context.Background(), "humidity")
	assert.ErrorIs(t, err, ErrUnknownSweep)
}

func TestSweepReminders_SentOncePerWindow(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutField(entities.Field{ID: "f1", UserID: "u1", Name: "North Field"})
	start := now.Add(20 * time.Minute)
	st.PutSchedule(entities.Schedule{ID: "sc1", FieldID: "f1", Status: entities.ScheduleActive, ScheduledTime: &start})
	later := now.Add(3 * time.Hour)
	st.PutSchedule(entities.Schedule{ID: "sc2", FieldID: "f1", Status: entities.ScheduleActive, ScheduledTime: &later})
	at := now
	svc, n := newTestService(st, func(o *Options) { o.Now = clock(&at) })

	rep, err := svc.Sweep(context.Background(), SweepReminders)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Outcomes["admitted"])
	assert.Equal(t, 1, rep.Outcomes["below_threshold"])

	pushes := n.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "u1", pushes[0].userID)
	assert.Equal(t, "Irrigation scheduled for North Field in 20 minutes.", pushes[0].env.Body)

	at = now.Add(5 * time.Minute)
	rep, err = svc.Sweep(context.Background(), SweepReminders)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Outcomes["suppressed"])
	assert.Len(t, n.pushes(), 1)
	assert.Len(t, st.Reminders(), 1)
}

func TestHandleCycleStatus(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutField(entities.Field{ID: "f1", UserID: "u1", Name: "North Field"})
	svc, n := newTestService(st)
	ctx := context.Background()

	require.NoError(t, svc.HandleCycleStatus(ctx, messages.CycleStatusChanged{
		CycleID: "c1", FieldID: "f1", OldStatus: entities.CycleRunning, NewStatus: entities.CycleRunning,
	}))
	assert.Empty(t, n.pushes())

	require.NoError(t, svc.HandleCycleStatus(ctx, messages.CycleStatusChanged{
		CycleID: "c1", FieldID: "f1", OldStatus: entities.CycleRunning, NewStatus: entities.CycleCompleted,
	}))
	pushes := n.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "Irrigation completed for North Field. Total water used: 0L", pushes[0].env.Body)
	assert.Empty(t, st.Alerts())

	require.NoError(t, svc.HandleCycleStatus(ctx, messages.CycleStatusChanged{
		CycleID: "c1", FieldID: "f1", OldStatus: entities.CycleCompleted, NewStatus: "paused",
	}))
	assert.Len(t, n.pushes(), 1)
}

func TestHandleAdvisory_AlwaysStored(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutField(entities.Field{ID: "f1", UserID: "u1", Name: "North Field"})
	svc, n := newTestService(st)
	evt := messages.AdvisoryEvent{FieldID: "f1", Title: "Rain ahead", Message: "Skip tomorrow", Priority: "high"}

	require.NoError(t, svc.HandleAdvisory(context.Background(), evt))
	require.NoError(t, svc.HandleAdvisory(context.Background(), evt))

	alerts := st.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, entities.AlertAIAdvice, alerts[0].Type)
	assert.Len(t, n.pushes(), 2)
	assert.Equal(t, "Rain ahead", n.pushes()[0].env.Title)
}

func seedVerification(st *store.MemoryStore) {
	st.PutUser(entities.User{ID: "u9", Name: "Ada"})
	st.PutVerification(entities.Verification{
		ID: "v1", UserID: "u9", Name: "Ada", Email: "ada@example.com", Token: "secret",
		Status: entities.VerificationPending, CreatedAt: now.Add(-time.Hour),
	})
}

func TestHandleVerificationRequested_SendsOnce(t *testing.T) {
	st := store.NewMemoryStore()
	seedVerification(st)
	m := &fakeMailer{}
	svc, _ := newTestService(st, func(o *Options) {
		o.Mailer = m
		o.Mail = MailSettings{From: "no-reply@example.com", Admins: []string{"admin@example.com"}, ApprovalURL: "https://approve.example.com/"}
	})
	ctx := context.Background()

	require.NoError(t, svc.HandleVerificationRequested(ctx, messages.VerificationRequested{VerificationID: "v1"}))
	require.Len(t, m.sent, 1)
	assert.Equal(t, []string{"admin@example.com"}, m.sent[0].To)
	assert.Contains(t, m.sent[0].HTML, "https://approve.example.com/approve?token=secret&amp;verificationId=v1")

	v, err := st.GetVerification(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, v.EmailSentAt)
	assert.Empty(t, v.EmailError)

	require.NoError(t, svc.HandleVerificationRequested(ctx, messages.VerificationRequested{VerificationID: "v1"}))
	assert.Len(t, m.sent, 1)
}

func TestHandleVerificationRequested_RecordsFailure(t *testing.T) {
	st := store.NewMemoryStore()
	seedVerification(st)
	m := &fakeMailer{err: errors.New("relay refused")}
	svc, _ := newTestService(st, func(o *Options) {
		o.Mailer = m
		o.Mail = MailSettings{Admins: []string{"admin@example.com"}}
	})
	ctx := context.Background()

	err := svc.HandleVerificationRequested(ctx, messages.VerificationRequested{VerificationID: "v1"})
	require.Error(t, err)

	v, err := st.GetVerification(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, v.EmailSentAt)
	assert.Equal(t, "relay refused", v.EmailError)
}

func TestHandleVerificationRequested_NoAdmins(t *testing.T) {
	st := store.NewMemoryStore()
	seedVerification(st)
	m := &fakeMailer{}
	svc, _ := newTestService(st, func(o *Options) { o.Mailer = m })

	require.Error(t, svc.HandleVerificationRequested(context.Background(), messages.VerificationRequested{VerificationID: "v1"}))
	assert.Empty(t, m.sent)
	v, err := st.GetVerification(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "no admin recipients configured", v.EmailError)
}

func TestApprovalLink(t *testing.T) {
	assert.Equal(t, "http://h:8081/approve?token=a%2Bb&verificationId=v1", ApprovalLink("http://h:8081/", "v1", "a+b"))
}
