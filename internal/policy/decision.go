package policy

import (
	"time"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// Outcome is the terminal state of one entity evaluation.
type Outcome int

const (
	OutcomeNoData Outcome = iota
	OutcomeBelowThreshold
	OutcomeSuppressed
	OutcomeAdmitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoData:
		return "no_data"
	case OutcomeBelowThreshold:
		return "below_threshold"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeAdmitted:
		return "admitted"
	}
	return "unknown"
}

// Classification is the result of the tier step, before the cooldown gate.
type Classification struct {
	Tier      entities.Severity
	Threshold float64
	Key       entities.CooldownKey
}

// Classify resolves the tier of reading and, when actionable, the cooldown
// key the breach belongs to. ok is false for TierNone.
func Classify(p SignalPolicy, s entities.Sensor, reading entities.Reading) (Classification, bool) {
	t := p.Thresholds(s)
	tier := ResolveTier(reading.Value, t)
	if tier == entities.TierNone {
		return Classification{}, false
	}
	return Classification{
		Tier:      tier,
		Threshold: ThresholdFor(tier, t),
		Key:       p.Key(s, tier),
	}, true
}

// Decision is Suppressed or Admitted(Alert) for an actionable tier,
// NoData / BelowThreshold otherwise.
type Decision struct {
	Outcome Outcome
	Class   Classification
	Alert   *entities.Alert
}

// Decide runs tier resolution, the cooldown gate and record building.
// last must be the most recent alert for the classification key, or nil.
func Decide(p SignalPolicy, s entities.Sensor, field *entities.Field, reading *entities.Reading, last *entities.Alert, now time.Time) Decision {
	if reading == nil {
		return Decision{Outcome: OutcomeNoData}
	}
	c, ok := Classify(p, s, *reading)
	if !ok {
		return Decision{Outcome: OutcomeBelowThreshold}
	}
	if !ShouldAlert(last, now, p.Cooldown(c.Tier), p.SeverityBypass, c.Tier) {
		return Decision{Outcome: OutcomeSuppressed, Class: c}
	}
	a := BuildAlert(AlertInput{
		Policy:    p,
		Sensor:    s,
		Field:     field,
		Tier:      c.Tier,
		Value:     reading.Value,
		Threshold: c.Threshold,
		Now:       now,
	})
	return Decision{Outcome: OutcomeAdmitted, Class: c, Alert: &a}
}

// Values collects the notification inputs of an admitted alert.
func (d Decision) Values() Values {
	if d.Alert == nil {
		return Values{}
	}
	v := Values{
		FieldID:    d.Alert.FieldID,
		FieldName:  d.Alert.FieldName,
		SensorID:   d.Alert.SensorID,
		SensorName: d.Alert.SensorName,
	}
	switch {
	case d.Alert.MoistureLevel != nil:
		v.Value = *d.Alert.MoistureLevel
	case d.Alert.WaterLevel != nil:
		v.Value = *d.Alert.WaterLevel
	}
	return v
}
