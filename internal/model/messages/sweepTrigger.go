package messages

import "time"

// SweepTrigger asks the alerting service to run one sweep now.
// Topic: trigger/sweep/{signal}
type SweepTrigger struct {
	Signal      string    `json:"signal"` // soil|water|reminders
	RequestedAt time.Time `json:"requested_at"`
}
