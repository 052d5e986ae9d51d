package entities

import "time"

const ScheduleActive = "active"

// Schedule is a planned irrigation run.
type Schedule struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	FieldID       string     `json:"field_id"`
	Status        string     `json:"status"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

// Reminder records that a schedule reminder was pushed.
type Reminder struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// CycleStatus is the lifecycle state of an irrigation cycle.
type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
	CycleStopped   CycleStatus = "stopped"
	CycleFailed    CycleStatus = "failed"
)
