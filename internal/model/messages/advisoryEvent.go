package messages

import "time"

// AdvisoryEvent is produced by the AI advisor for a field.
// Topic: event/advisory/{field}
type AdvisoryEvent struct {
	AdvisoryID     string    `json:"advisory_id"`
	UserID         string    `json:"user_id"`
	FieldID        string    `json:"field_id"`
	SensorID       string    `json:"sensor_id,omitempty"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Priority       string    `json:"priority"` // low|medium|high|critical
	Recommendation string    `json:"recommendation,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
