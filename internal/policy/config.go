// Package policy holds the alert evaluation policy: threshold tiers,
// cooldown gating, alert record building and notification composition.
// Everything here is a pure function of its inputs.
package policy

import (
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// Thresholds are the resolved tier boundaries for one sensor.
// MediumInclusive selects "<=" instead of "<" for the medium tier.
type Thresholds struct {
	Low             float64
	Critical        float64
	MediumInclusive bool
}

// SignalPolicy is the canonical per-signal configuration.
type SignalPolicy struct {
	Signal            entities.Signal
	LowThreshold      float64
	CriticalThreshold float64
	MediumInclusive   bool

	MediumCooldown   time.Duration
	CriticalCooldown time.Duration
	// SeverityBypass lets a severity change re-arm alerting inside the cooldown window.
	SeverityBypass bool

	MediumAlert   entities.AlertType
	CriticalAlert entities.AlertType
	// KeyByField adds the field to the cooldown key: (type, field, sensor).
	KeyByField bool
}

// ReminderPolicy drives schedule reminders: a reminder is due when the
// schedule starts within Lead, and is sent at most once per Dedup window.
type ReminderPolicy struct {
	Lead  time.Duration
	Dedup time.Duration
}

type Config struct {
	Soil      SignalPolicy
	Water     SignalPolicy
	Reminders ReminderPolicy
}

func DefaultSoilPolicy() SignalPolicy {
	return SignalPolicy{
		Signal:            entities.SignalSoilMoisture,
		LowThreshold:      50,
		CriticalThreshold: 30,
		MediumInclusive:   false,
		MediumCooldown:    6 * time.Hour,
		CriticalCooldown:  4 * time.Hour,
		SeverityBypass:    false,
		MediumAlert:       entities.AlertIrrigationNeeded,
		CriticalAlert:     entities.AlertSoilDry,
		KeyByField:        true,
	}
}

func DefaultWaterPolicy() SignalPolicy {
	return SignalPolicy{
		Signal:            entities.SignalWaterLevel,
		LowThreshold:      20,
		CriticalThreshold: 10,
		MediumInclusive:   true,
		MediumCooldown:    4 * time.Hour,
		CriticalCooldown:  4 * time.Hour,
		SeverityBypass:    true,
		MediumAlert:       entities.AlertWaterLow,
		CriticalAlert:     entities.AlertWaterLow,
		KeyByField:        false,
	}
}

func DefaultConfig() Config {
	return Config{
		Soil:      DefaultSoilPolicy(),
		Water:     DefaultWaterPolicy(),
		Reminders: ReminderPolicy{Lead: 30 * time.Minute, Dedup: 60 * time.Minute},
	}
}

// For returns the policy of a sensor signal.
func (c Config) For(sig entities.Signal) (SignalPolicy, bool) {
	switch sig {
	case entities.SignalSoilMoisture:
		return c.Soil, true
	case entities.SignalWaterLevel:
		return c.Water, true
	}
	return SignalPolicy{}, false
}

func (c Config) Validate() error {
	for _, p := range []SignalPolicy{c.Soil, c.Water} {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if c.Reminders.Lead <= 0 || c.Reminders.Dedup <= 0 {
		return fmt.Errorf("reminders: lead and dedup must be positive")
	}
	return nil
}

func (p SignalPolicy) Validate() error {
	if p.CriticalThreshold > p.LowThreshold {
		return fmt.Errorf("%s: critical threshold %.1f above low threshold %.1f", p.Signal, p.CriticalThreshold, p.LowThreshold)
	}
	if p.MediumCooldown <= 0 || p.CriticalCooldown <= 0 {
		return fmt.Errorf("%s: cooldowns must be positive", p.Signal)
	}
	if p.MediumAlert == "" || p.CriticalAlert == "" {
		return fmt.Errorf("%s: alert types not set", p.Signal)
	}
	return nil
}

// Thresholds resolves per-sensor overrides against the signal defaults.
// Missing or non-positive overrides fall back to the default.
func (p SignalPolicy) Thresholds(s entities.Sensor) Thresholds {
	t := Thresholds{Low: p.LowThreshold, Critical: p.CriticalThreshold, MediumInclusive: p.MediumInclusive}
	if s.LowThreshold != nil && *s.LowThreshold > 0 {
		t.Low = *s.LowThreshold
	}
	if s.CriticalThreshold != nil && *s.CriticalThreshold > 0 {
		t.Critical = *s.CriticalThreshold
	}
	return t
}

func (p SignalPolicy) Cooldown(tier entities.Severity) time.Duration {
	if tier == entities.SeverityCritical {
		return p.CriticalCooldown
	}
	return p.MediumCooldown
}

func (p SignalPolicy) AlertType(tier entities.Severity) entities.AlertType {
	if tier == entities.SeverityCritical {
		return p.CriticalAlert
	}
	return p.MediumAlert
}

// Key returns the cooldown key a breach at tier is de-duplicated under.
func (p SignalPolicy) Key(s entities.Sensor, tier entities.Severity) entities.CooldownKey {
	k := entities.CooldownKey{Type: p.AlertType(tier), SensorID: s.ID}
	if p.KeyByField {
		k.FieldID = s.FieldID
	}
	return k
}
