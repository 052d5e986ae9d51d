package policy

import "github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"

// ResolveTier maps a measurement onto none / medium / critical.
//
// The critical tier is always inclusive (v <= critical). The medium tier is
// strict for soil moisture (v < low) and inclusive for water level (v <= low).
func ResolveTier(value float64, t Thresholds) entities.Severity {
	if value <= t.Critical {
		return entities.SeverityCritical
	}
	if value < t.Low || (t.MediumInclusive && value == t.Low) {
		return entities.SeverityMedium
	}
	return entities.TierNone
}

// ThresholdFor is the boundary that was crossed for tier.
func ThresholdFor(tier entities.Severity, t Thresholds) float64 {
	if tier == entities.SeverityCritical {
		return t.Critical
	}
	return t.Low
}
