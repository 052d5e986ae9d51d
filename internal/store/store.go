// Package store is the document store behind the alert services: fields,
// users, sensors, schedules, alerts, reminders and verification requests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrCooldownConflict is returned by AppendAlert when the cooldown key
	// moved on since the caller read its last alert.
	ErrCooldownConflict = errors.New("store: cooldown key changed concurrently")
	// ErrStale is returned when a conditional state transition found the
	// record in another state.
	ErrStale = errors.New("store: record changed concurrently")
)

// ReadingSource yields the most recent reading of a sensor.
// A sensor without readings yields (nil, nil).
type ReadingSource interface {
	LatestReading(ctx context.Context, sensorID string) (*entities.Reading, error)
}

type ReadingWriter interface {
	InsertReading(ctx context.Context, r entities.Reading) error
}

type Store interface {
	ReadingSource
	ReadingWriter

	GetField(ctx context.Context, id string) (*entities.Field, error)
	GetUser(ctx context.Context, id string) (*entities.User, error)
	ListSensors(ctx context.Context, signal entities.Signal) ([]entities.Sensor, error)
	ListActiveSchedules(ctx context.Context) ([]entities.Schedule, error)

	// LastAlert returns the newest alert under key, or (nil, nil).
	LastAlert(ctx context.Context, key entities.CooldownKey) (*entities.Alert, error)
	// AppendAlert persists a only if prev is still the newest alert under key.
	AppendAlert(ctx context.Context, key entities.CooldownKey, prev *entities.Alert, a entities.Alert) error
	// InsertAlert persists a unconditionally.
	InsertAlert(ctx context.Context, a entities.Alert) error
	// AppendReminder records a reminder for the schedule unless one was
	// recorded in (now-window, now]. It reports whether it inserted.
	AppendReminder(ctx context.Context, scheduleID string, now time.Time, window time.Duration) (bool, error)

	RemoveUserTokens(ctx context.Context, userID string, tokens []string) error

	GetVerification(ctx context.Context, id string) (*entities.Verification, error)
	// ApproveVerification moves a pending request to approved and marks the
	// user verified, atomically. ErrStale if it is no longer pending.
	ApproveVerification(ctx context.Context, id string, now time.Time) error
	RejectVerification(ctx context.Context, id string, now time.Time) error
	RecordVerificationEmail(ctx context.Context, id string, sentAt *time.Time, sendErr string) error
	AppendAudit(ctx context.Context, e entities.AuditEntry) error
}
