package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// MemoryStore keeps everything in process. It has the same conditional
// write semantics as GormStore and backs dev mode and tests.
type MemoryStore struct {
	mu sync.RWMutex

	fields        map[string]entities.Field
	users         map[string]entities.User
	sensors       map[string]entities.Sensor
	schedules     map[string]entities.Schedule
	readings      map[string][]entities.Reading
	alerts        []entities.Alert
	heads         map[string]string // cooldown key -> last alert id
	reminders     []entities.Reminder
	verifications map[string]entities.Verification
	audit         []entities.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fields:        make(map[string]entities.Field),
		users:         make(map[string]entities.User),
		sensors:       make(map[string]entities.Sensor),
		schedules:     make(map[string]entities.Schedule),
		readings:      make(map[string][]entities.Reading),
		heads:         make(map[string]string),
		verifications: make(map[string]entities.Verification),
	}
}

// Seeding helpers.

func (m *MemoryStore) PutField(f entities.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f.ID] = f
}

func (m *MemoryStore) PutUser(u entities.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.FCMTokens = slices.Clone(u.FCMTokens)
	m.users[u.ID] = u
}

func (m *MemoryStore) PutSensor(s entities.Sensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensors[s.ID] = s
}

func (m *MemoryStore) PutSchedule(s entities.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
}

func (m *MemoryStore) PutVerification(v entities.Verification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[v.ID] = v
}

func (m *MemoryStore) AddReading(r entities.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[r.SensorID] = append(m.readings[r.SensorID], r)
}

// Alerts returns a copy of every persisted alert in insertion order.
func (m *MemoryStore) Alerts() []entities.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.alerts)
}

func (m *MemoryStore) Reminders() []entities.Reminder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.reminders)
}

func (m *MemoryStore) Audit() []entities.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.audit)
}

func (m *MemoryStore) GetField(_ context.Context, id string) (*entities.Field, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fields[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*entities.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.FCMTokens = slices.Clone(u.FCMTokens)
	return &u, nil
}

func (m *MemoryStore) ListSensors(_ context.Context, signal entities.Signal) ([]entities.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entities.Sensor
	for _, s := range m.sensors {
		if s.Type == signal {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListActiveSchedules(_ context.Context) ([]entities.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entities.Schedule
	for _, s := range m.schedules {
		if s.Status == entities.ScheduleActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) LatestReading(_ context.Context, sensorID string) (*entities.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.readings[sensorID]
	if len(rs) == 0 {
		return nil, nil
	}
	latest := rs[0]
	for _, r := range rs[1:] {
		if !r.Timestamp.Before(latest.Timestamp) {
			latest = r
		}
	}
	return &latest, nil
}

func (m *MemoryStore) InsertReading(_ context.Context, r entities.Reading) error {
	m.AddReading(r)
	return nil
}

func matchesKey(a entities.Alert, key entities.CooldownKey) bool {
	if a.Type != key.Type || a.SensorID != key.SensorID {
		return false
	}
	return key.FieldID == "" || a.FieldID == key.FieldID
}

func (m *MemoryStore) LastAlert(_ context.Context, key entities.CooldownKey) (*entities.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *entities.Alert
	for i := range m.alerts {
		a := m.alerts[i]
		if !matchesKey(a, key) {
			continue
		}
		if last == nil || !a.Timestamp.Before(last.Timestamp) {
			last = &a
		}
	}
	return last, nil
}

func (m *MemoryStore) AppendAlert(_ context.Context, key entities.CooldownKey, prev *entities.Alert, a entities.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key.String()
	head, exists := m.heads[k]
	switch {
	case !exists:
	case prev != nil && head == prev.ID:
	default:
		return ErrCooldownConflict
	}
	m.heads[k] = a.ID
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *MemoryStore) InsertAlert(_ context.Context, a entities.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *MemoryStore) AppendReminder(_ context.Context, scheduleID string, now time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[scheduleID]; !ok {
		return false, ErrNotFound
	}
	since := now.Add(-window)
	for _, r := range m.reminders {
		if r.ScheduleID == scheduleID && r.Timestamp.After(since) {
			return false, nil
		}
	}
	m.reminders = append(m.reminders, entities.Reminder{ID: uuid.NewString(), ScheduleID: scheduleID, Timestamp: now})
	return true, nil
}

func (m *MemoryStore) RemoveUserTokens(_ context.Context, userID string, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FCMTokens = slices.DeleteFunc(slices.Clone(u.FCMTokens), func(t string) bool {
		return slices.Contains(tokens, t)
	})
	m.users[userID] = u
	return nil
}

func (m *MemoryStore) GetVerification(_ context.Context, id string) (*entities.Verification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryStore) ApproveVerification(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[id]
	if !ok {
		return ErrNotFound
	}
	if v.Status != entities.VerificationPending {
		return ErrStale
	}
	v.Status = entities.VerificationApproved
	v.ApprovedAt = &now
	m.verifications[id] = v
	if u, ok := m.users[v.UserID]; ok {
		u.Verified = true
		m.users[v.UserID] = u
	}
	return nil
}

func (m *MemoryStore) RejectVerification(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[id]
	if !ok {
		return ErrNotFound
	}
	if v.Status != entities.VerificationPending {
		return ErrStale
	}
	v.Status = entities.VerificationRejected
	m.verifications[id] = v
	return nil
}

func (m *MemoryStore) RecordVerificationEmail(_ context.Context, id string, sentAt *time.Time, sendErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[id]
	if !ok {
		return ErrNotFound
	}
	v.EmailSentAt = sentAt
	v.EmailError = sendErr
	m.verifications[id] = v
	return nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, e entities.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.audit = append(m.audit, e)
	return nil
}

var _ Store = (*MemoryStore)(nil)
