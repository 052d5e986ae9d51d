package store

import (
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

type fieldRow struct {
	ID     string `gorm:"primaryKey;size:64"`
	UserID string `gorm:"size:64;index"`
	Name   string
}

func (fieldRow) TableName() string { return "fields" }

type userRow struct {
	ID       string `gorm:"primaryKey;size:64"`
	Email    string
	Name     string
	Role     string `gorm:"size:32"`
	Verified bool
}

func (userRow) TableName() string { return "users" }

type userTokenRow struct {
	UserID string `gorm:"primaryKey;size:64"`
	Token  string `gorm:"primaryKey;size:255"`
}

func (userTokenRow) TableName() string { return "user_fcm_tokens" }

type sensorRow struct {
	ID                string `gorm:"primaryKey;size:64"`
	Type              string `gorm:"size:32;index"`
	FieldID           string `gorm:"size:64"`
	UserID            string `gorm:"size:64"`
	Name              string
	LowThreshold      *float64
	CriticalThreshold *float64
}

func (sensorRow) TableName() string { return "sensors" }

type readingRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	SensorID  string `gorm:"size:64;index:idx_reading_sensor_ts,priority:1"`
	Value     float64
	Timestamp time.Time `gorm:"column:ts;index:idx_reading_sensor_ts,priority:2"`
}

func (readingRow) TableName() string { return "sensor_readings" }

type scheduleRow struct {
	ID            string `gorm:"primaryKey;size:64"`
	UserID        string `gorm:"size:64"`
	FieldID       string `gorm:"size:64"`
	Status        string `gorm:"size:16;index"`
	ScheduledTime *time.Time
}

func (scheduleRow) TableName() string { return "irrigation_schedules" }

type reminderRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	ScheduleID string    `gorm:"size:64;index:idx_reminder_schedule_ts,priority:1"`
	Timestamp  time.Time `gorm:"column:ts;index:idx_reminder_schedule_ts,priority:2"`
}

func (reminderRow) TableName() string { return "schedule_reminders" }

type alertRow struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"size:64;index"`
	FieldID       string `gorm:"size:64;index:idx_alert_key,priority:2"`
	FieldName     string
	SensorID      string `gorm:"size:64;index:idx_alert_key,priority:3"`
	SensorName    string
	Type          string `gorm:"size:32;index:idx_alert_key,priority:1"`
	Severity      string `gorm:"size:16"`
	Message       string `gorm:"type:text"`
	MoistureLevel *float64
	WaterLevel    *float64
	Threshold     *float64
	CreatedAt     time.Time `gorm:"index:idx_alert_key,priority:4"`
	Read          bool
}

func (alertRow) TableName() string { return "alerts" }

// cooldownRow is the head of one cooldown key: the id of the newest alert
// written under it. Conditional appends compare-and-swap this row.
type cooldownRow struct {
	CooldownKey string `gorm:"primaryKey;size:200"`
	LastAlertID string `gorm:"size:36"`
	LastAt      time.Time
	Severity    string `gorm:"size:16"`
}

func (cooldownRow) TableName() string { return "alert_cooldowns" }

type verificationRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	UserID      string `gorm:"size:64"`
	Email       string
	Name        string
	Token       string `gorm:"size:128"`
	Status      string `gorm:"size:16"`
	CreatedAt   time.Time
	ApprovedAt  *time.Time
	EmailSentAt *time.Time
	EmailError  string `gorm:"type:text"`
}

func (verificationRow) TableName() string { return "verification_requests" }

type auditRow struct {
	ID             string `gorm:"primaryKey;size:36"`
	Action         string `gorm:"size:32"`
	VerificationID string `gorm:"size:64;index"`
	Outcome        string `gorm:"size:32"`
	Detail         string
	RemoteAddr     string    `gorm:"size:64"`
	Timestamp      time.Time `gorm:"column:ts"`
}

func (auditRow) TableName() string { return "approval_audit" }

func allModels() []any {
	return []any{
		&fieldRow{}, &userRow{}, &userTokenRow{}, &sensorRow{}, &readingRow{},
		&scheduleRow{}, &reminderRow{}, &alertRow{}, &cooldownRow{},
		&verificationRow{}, &auditRow{},
	}
}

func (r alertRow) entity() entities.Alert {
	return entities.Alert{
		ID:            r.ID,
		UserID:        r.UserID,
		FieldID:       r.FieldID,
		FieldName:     r.FieldName,
		SensorID:      r.SensorID,
		SensorName:    r.SensorName,
		Type:          entities.AlertType(r.Type),
		Severity:      entities.Severity(r.Severity),
		Message:       r.Message,
		MoistureLevel: r.MoistureLevel,
		WaterLevel:    r.WaterLevel,
		Threshold:     r.Threshold,
		Timestamp:     r.CreatedAt,
		Read:          r.Read,
	}
}

func toAlertRow(a entities.Alert) alertRow {
	return alertRow{
		ID:            a.ID,
		UserID:        a.UserID,
		FieldID:       a.FieldID,
		FieldName:     a.FieldName,
		SensorID:      a.SensorID,
		SensorName:    a.SensorName,
		Type:          string(a.Type),
		Severity:      string(a.Severity),
		Message:       a.Message,
		MoistureLevel: a.MoistureLevel,
		WaterLevel:    a.WaterLevel,
		Threshold:     a.Threshold,
		CreatedAt:     a.Timestamp,
		Read:          a.Read,
	}
}

func (r sensorRow) entity() entities.Sensor {
	return entities.Sensor{
		ID:                r.ID,
		Type:              entities.Signal(r.Type),
		FieldID:           r.FieldID,
		UserID:            r.UserID,
		Name:              r.Name,
		LowThreshold:      r.LowThreshold,
		CriticalThreshold: r.CriticalThreshold,
	}
}

func (r verificationRow) entity() entities.Verification {
	return entities.Verification{
		ID:          r.ID,
		UserID:      r.UserID,
		Email:       r.Email,
		Name:        r.Name,
		Token:       r.Token,
		Status:      entities.VerificationStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		ApprovedAt:  r.ApprovedAt,
		EmailSentAt: r.EmailSentAt,
		EmailError:  r.EmailError,
	}
}
