package messages

import (
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// CycleStatusChanged is published when an irrigation cycle document changes status.
// Topic: event/cycleStatus/{cycle}
type CycleStatusChanged struct {
	CycleID   string               `json:"cycle_id"`
	FieldID   string               `json:"field_id"`
	UserID    string               `json:"user_id"`
	OldStatus entities.CycleStatus `json:"old_status"`
	NewStatus entities.CycleStatus `json:"new_status"`
	WaterUsed *float64             `json:"water_used,omitempty"` // liters, missing = 0
	Timestamp time.Time            `json:"timestamp"`
}

// Liters returns WaterUsed with the documented default.
func (e CycleStatusChanged) Liters() float64 {
	if e.WaterUsed == nil {
		return 0
	}
	return *e.WaterUsed
}
