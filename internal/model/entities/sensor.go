package entities

// Signal is the monitored quantity of a sensor.
type Signal string

const (
	SignalSoilMoisture Signal = "soil_moisture"
	SignalWaterLevel   Signal = "water_level"
)

// Sensor represents a single device in the field.
// Thresholds are optional: nil means "use the signal default".
type Sensor struct {
	ID                string   `json:"id"`
	Type              Signal   `json:"type"`
	FieldID           string   `json:"field_id"`
	UserID            string   `json:"user_id"`
	Name              string   `json:"name"`
	LowThreshold      *float64 `json:"low_threshold,omitempty"`
	CriticalThreshold *float64 `json:"critical_threshold,omitempty"`
}

// DisplayName falls back to the sensor id when the name was never set.
func (s Sensor) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Owner returns the sensor's user, or the field's when the sensor has none.
func (s Sensor) Owner(f *Field) string {
	if s.UserID != "" {
		return s.UserID
	}
	if f != nil {
		return f.UserID
	}
	return ""
}
