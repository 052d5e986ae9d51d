package policy

import (
	"fmt"
	"math"
	"strconv"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// Envelope is what gets handed to the push gateway. Data values are
// strings because the gateway rejects any other type.
type Envelope struct {
	Title string
	Body  string
	Data  map[string]string
}

// Values are the computed inputs a notification template may use.
// Only the fields relevant to the alert kind need to be set.
type Values struct {
	FieldID    string
	FieldName  string
	SensorID   string
	SensorName string
	Value      float64

	ScheduleID string
	Until      float64 // minutes

	CycleID   string
	Status    entities.CycleStatus
	WaterUsed float64

	AdvisoryID string
	Title      string
	Message    string
}

const yourField = "your field"

// ComposeNotification maps an alert kind and severity onto a push envelope.
// ok is false when there is nothing to say (unknown kind or cycle status).
func ComposeNotification(kind entities.AlertType, sev entities.Severity, v Values) (Envelope, bool) {
	switch kind {
	case entities.AlertIrrigationNeeded:
		return Envelope{
			Title: "💧 Irrigation Needed",
			Body:  fmt.Sprintf("Soil moisture is low (%.1f%%) in %s. Time to irrigate!", v.Value, orDefault(v.FieldName, entities.UnknownField)),
			Data: map[string]string{
				"type":          string(kind),
				"fieldId":       v.FieldID,
				"sensorId":      v.SensorID,
				"moistureLevel": formatNumber(v.Value),
			},
		}, true

	case entities.AlertSoilDry:
		return Envelope{
			Title: "🚨 Critical: Soil Too Dry",
			Body:  fmt.Sprintf("Soil moisture is critically low (%.1f%%) in %s. Irrigate immediately!", v.Value, orDefault(v.FieldName, entities.UnknownField)),
			Data: map[string]string{
				"type":          string(kind),
				"fieldId":       v.FieldID,
				"sensorId":      v.SensorID,
				"moistureLevel": formatNumber(v.Value),
				"severity":      string(sev),
			},
		}, true

	case entities.AlertWaterLow:
		env := Envelope{
			Title: "⚠️ Low Water Level",
			Body:  fmt.Sprintf("Water level is low (%.1f%%) at %s. Please refill soon.", v.Value, v.SensorName),
			Data: map[string]string{
				"type":       string(kind),
				"sensorId":   v.SensorID,
				"waterLevel": formatNumber(v.Value),
				"severity":   string(sev),
			},
		}
		if sev == entities.SeverityCritical {
			env.Title = "🚨 Critical: Water Level Alert"
			env.Body = fmt.Sprintf("Water level is critically low (%.1f%%) at %s. Immediate action required!", v.Value, v.SensorName)
		}
		return env, true

	case entities.AlertScheduleReminder:
		return Envelope{
			Title: "⏰ Irrigation Reminder",
			Body:  fmt.Sprintf("Irrigation scheduled for %s in %d minutes.", orDefault(v.FieldName, yourField), int(math.Round(v.Until))),
			Data: map[string]string{
				"type":       string(kind),
				"scheduleId": v.ScheduleID,
				"fieldId":    v.FieldID,
			},
		}, true

	case entities.AlertIrrigationStatus:
		return composeStatus(v)

	case entities.AlertAIAdvice:
		title := v.Title
		if title == "" {
			title = "🤖 Irrigation Advice"
		}
		return Envelope{
			Title: title,
			Body:  v.Message,
			Data: map[string]string{
				"type":       string(kind),
				"advisoryId": v.AdvisoryID,
				"fieldId":    v.FieldID,
				"severity":   string(sev),
			},
		}, true
	}
	return Envelope{}, false
}

func composeStatus(v Values) (Envelope, bool) {
	name := orDefault(v.FieldName, yourField)
	var title, body string
	switch v.Status {
	case entities.CycleRunning:
		title = "💧 Irrigation Started"
		body = fmt.Sprintf("Irrigation has started for %s.", name)
	case entities.CycleCompleted:
		title = "✅ Irrigation Completed"
		body = fmt.Sprintf("Irrigation completed for %s. Total water used: %sL", name, formatNumber(v.WaterUsed))
	case entities.CycleStopped:
		title = "⏸️ Irrigation Stopped"
		body = fmt.Sprintf("Irrigation was manually stopped for %s.", name)
	case entities.CycleFailed:
		title = "❌ Irrigation Failed"
		body = fmt.Sprintf("Irrigation failed for %s. Please check the system.", name)
	default:
		return Envelope{}, false
	}
	return Envelope{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":    string(entities.AlertIrrigationStatus),
			"cycleId": v.CycleID,
			"fieldId": v.FieldID,
			"status":  string(v.Status),
		},
	}, true
}

// formatNumber prints the shortest representation (35, 35.5, 8.25).
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
