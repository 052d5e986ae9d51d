package policy

import (
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// ShouldAlert is the cooldown gate.
//
// With no previous alert it always admits. Otherwise it admits once
// minInterval has elapsed since last; when requireSameSeverity is set, a
// severity different from last's also admits inside the window.
func ShouldAlert(last *entities.Alert, now time.Time, minInterval time.Duration, requireSameSeverity bool, current entities.Severity) bool {
	if last == nil {
		return true
	}
	if now.Sub(last.Timestamp) >= minInterval {
		return true
	}
	return requireSameSeverity && last.Severity != current
}

// ReminderDue reports whether a schedule starting at scheduled is inside
// (now, now+lead], and how long until it starts.
func ReminderDue(scheduled, now time.Time, lead time.Duration) (time.Duration, bool) {
	until := scheduled.Sub(now)
	return until, until > 0 && until <= lead
}
