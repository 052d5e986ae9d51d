package entities

import "time"

// Severity of an alert. Tiers produced by the threshold resolver reuse it,
// with TierNone meaning "nothing actionable".
type Severity string

const (
	TierNone         Severity = ""
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps free-form priorities (advisories) onto a Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	}
	return TierNone, false
}

// AlertType identifies the kind of alert; it is part of the cooldown key.
type AlertType string

const (
	AlertIrrigationNeeded AlertType = "irrigation_needed"
	AlertSoilDry          AlertType = "soil_dry"
	AlertWaterLow         AlertType = "water_low"
	AlertScheduleReminder AlertType = "schedule_reminder"
	AlertIrrigationStatus AlertType = "irrigation_status"
	AlertAIAdvice         AlertType = "ai_advice"
)

// Alert is an append-only record consumed by the mobile UI.
// MoistureLevel / WaterLevel are set according to the signal that raised it.
type Alert struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	FieldID       string    `json:"field_id"`
	FieldName     string    `json:"field_name"`
	SensorID      string    `json:"sensor_id,omitempty"`
	SensorName    string    `json:"sensor_name,omitempty"`
	Type          AlertType `json:"type"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	MoistureLevel *float64  `json:"moisture_level,omitempty"`
	WaterLevel    *float64  `json:"water_level,omitempty"`
	Threshold     *float64  `json:"threshold,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Read          bool      `json:"read"`
}

// Key returns the cooldown grouping this alert belongs to.
func (a Alert) Key() CooldownKey {
	return CooldownKey{Type: a.Type, FieldID: a.FieldID, SensorID: a.SensorID}
}

// CooldownKey groups alerts for the "last alert of this kind" lookup.
// An empty FieldID means the key is (type, sensor) only.
type CooldownKey struct {
	Type     AlertType
	FieldID  string
	SensorID string
}

func (k CooldownKey) String() string {
	return string(k.Type) + "|" + k.FieldID + "|" + k.SensorID
}

// Reading is a single measurement captured by a sensor.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
