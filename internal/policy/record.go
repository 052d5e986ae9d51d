package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/messages"
)

// AlertInput carries everything BuildAlert needs for a threshold breach.
type AlertInput struct {
	ID        string // generated when empty
	Policy    SignalPolicy
	Sensor    entities.Sensor
	Field     *entities.Field // may be nil
	Tier      entities.Severity
	Value     float64
	Threshold float64
	Now       time.Time
}

// BuildAlert assembles the alert record for a threshold breach.
// The measured value, threshold, timestamp and read=false are always set.
func BuildAlert(in AlertInput) entities.Alert {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	fieldName := in.Field.DisplayName()
	value, threshold := in.Value, in.Threshold

	a := entities.Alert{
		ID:         id,
		UserID:     in.Sensor.Owner(in.Field),
		FieldID:    in.Sensor.FieldID,
		FieldName:  fieldName,
		SensorID:   in.Sensor.ID,
		SensorName: in.Sensor.DisplayName(),
		Type:       in.Policy.AlertType(in.Tier),
		Severity:   in.Tier,
		Threshold:  &threshold,
		Timestamp:  in.Now,
		Read:       false,
	}
	switch in.Policy.Signal {
	case entities.SignalWaterLevel:
		a.WaterLevel = &value
	default:
		a.MoistureLevel = &value
	}
	a.Message = alertMessage(a.Type, a.Severity, value, fieldName, a.SensorName)
	return a
}

func alertMessage(t entities.AlertType, sev entities.Severity, value float64, fieldName, sensorName string) string {
	switch t {
	case entities.AlertIrrigationNeeded:
		return fmt.Sprintf("Soil moisture is low (%.1f%%) in %s. Irrigation recommended.", value, fieldName)
	case entities.AlertSoilDry:
		return fmt.Sprintf("Soil moisture is critically low (%.1f%%) in %s. Irrigate as soon as possible.", value, fieldName)
	case entities.AlertWaterLow:
		if sev == entities.SeverityCritical {
			return fmt.Sprintf("Water level is critically low (%.1f%%) at %s.", value, sensorName)
		}
		return fmt.Sprintf("Water level is low (%.1f%%) at %s.", value, sensorName)
	}
	return fmt.Sprintf("%s reading %.1f in %s.", sensorName, value, fieldName)
}

// BuildAdvisoryAlert turns an AI advisory into an alert record.
// Unknown priorities are reported as medium.
func BuildAdvisoryAlert(evt messages.AdvisoryEvent, field *entities.Field, now time.Time) entities.Alert {
	sev, ok := entities.ParseSeverity(evt.Priority)
	if !ok {
		sev = entities.SeverityMedium
	}
	id := evt.AdvisoryID
	if id == "" {
		id = uuid.NewString()
	}
	msg := evt.Message
	if evt.Recommendation != "" {
		msg = msg + " " + evt.Recommendation
	}
	userID := evt.UserID
	if userID == "" && field != nil {
		userID = field.UserID
	}
	return entities.Alert{
		ID:        id,
		UserID:    userID,
		FieldID:   evt.FieldID,
		FieldName: field.DisplayName(),
		SensorID:  evt.SensorID,
		Type:      entities.AlertAIAdvice,
		Severity:  sev,
		Message:   msg,
		Timestamp: now,
		Read:      false,
	}
}
