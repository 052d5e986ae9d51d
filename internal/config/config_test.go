package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	p := writeYAML(t, `
database:
  driver: memory
mail:
  admins: [ops@example.com, root@example.com]
policy:
  soil:
    low_threshold: 45
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, []string{"ops@example.com", "root@example.com"}, cfg.Mail.Admins)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Hour, cfg.Schedule.SoilEvery)
	assert.Equal(t, 168*time.Hour, cfg.Approval.TokenTTL)

	pc := cfg.Policy.ToPolicy()
	assert.Equal(t, 45.0, pc.Soil.LowThreshold)
	assert.Equal(t, 30.0, pc.Soil.CriticalThreshold)
	assert.Equal(t, 6*time.Hour, pc.Soil.MediumCooldown)
	assert.False(t, pc.Soil.SeverityBypass)
	assert.True(t, pc.Water.SeverityBypass)
	assert.Equal(t, 30*time.Minute, pc.Reminders.Lead)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeYAML(t, "database:\n  driver: memory\n")
	t.Setenv("ALERTS_SCHEDULE_CONCURRENCY", "3")
	t.Setenv("ALERTS_POLICY_WATER_CRITICAL", "5")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Schedule.Concurrency)
	assert.Equal(t, 5.0, cfg.Policy.ToPolicy().Water.CriticalThreshold)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeYAML(t, "database:\n  driver: postgres\n"))
	assert.Error(t, err)

	_, err = Load(writeYAML(t, "database:\n  driver: mysql\n"))
	assert.ErrorContains(t, err, "dsn")

	_, err = Load(writeYAML(t, `
database:
  driver: memory
policy:
  water:
    low_threshold: 10
    critical_threshold: 30
`))
	assert.ErrorContains(t, err, "policy")
}
