package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

func TestDecide_SoilDefaultsMediumTier(t *testing.T) {
	s := entities.Sensor{ID: "s1", FieldID: "f1", UserID: "u1", Type: entities.SignalSoilMoisture}
	r := &entities.Reading{SensorID: "s1", Value: 35, Timestamp: t0}

	d := Decide(DefaultSoilPolicy(), s, nil, r, nil, t0)

	require.Equal(t, OutcomeAdmitted, d.Outcome)
	assert.Equal(t, entities.SeverityMedium, d.Class.Tier)
	assert.Equal(t, entities.CooldownKey{Type: entities.AlertIrrigationNeeded, FieldID: "f1", SensorID: "s1"}, d.Class.Key)
	require.NotNil(t, d.Alert.Threshold)
	assert.Equal(t, 50.0, *d.Alert.Threshold)
	assert.Equal(t, 35.0, d.Values().Value)
}

func TestDecide_WaterCriticalInsideCooldown(t *testing.T) {
	s := entities.Sensor{ID: "w1", FieldID: "f1", Type: entities.SignalWaterLevel}
	r := &entities.Reading{SensorID: "w1", Value: 8}
	last := &entities.Alert{Type: entities.AlertWaterLow, Severity: entities.SeverityCritical, Timestamp: t0.Add(-2 * time.Hour)}

	d := Decide(DefaultWaterPolicy(), s, nil, r, last, t0)

	assert.Equal(t, OutcomeSuppressed, d.Outcome)
	assert.Equal(t, entities.SeverityCritical, d.Class.Tier)
	assert.Nil(t, d.Alert)
	// water keys ignore the field
	assert.Equal(t, entities.CooldownKey{Type: entities.AlertWaterLow, SensorID: "w1"}, d.Class.Key)
}

func TestDecide_NoDataAndBelowThreshold(t *testing.T) {
	s := entities.Sensor{ID: "s1", Type: entities.SignalSoilMoisture}

	assert.Equal(t, OutcomeNoData, Decide(DefaultSoilPolicy(), s, nil, nil, nil, t0).Outcome)
	assert.Equal(t, OutcomeBelowThreshold,
		Decide(DefaultSoilPolicy(), s, nil, &entities.Reading{Value: 70}, nil, t0).Outcome)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.Water.CriticalThreshold = 30
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Soil.MediumCooldown = 0
	assert.Error(t, c.Validate())
}
