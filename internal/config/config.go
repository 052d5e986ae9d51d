// Package config loads service configuration from an optional YAML file
// overridden by environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
)

type Config struct {
	Service  string         `yaml:"service" env:"ALERTS_SERVICE" env-default:"irrigation-alerts"`
	Log      logger.Config  `yaml:"log" env-prefix:"ALERTS_LOG_"`
	HTTP     HTTPConfig     `yaml:"http" env-prefix:"ALERTS_HTTP_"`
	GRPC     GRPCConfig     `yaml:"grpc" env-prefix:"ALERTS_GRPC_"`
	MQTT     MQTTConfig     `yaml:"mqtt" env-prefix:"RABBITMQ_"`
	Database DatabaseConfig `yaml:"database" env-prefix:"ALERTS_DB_"`
	Redis    RedisConfig    `yaml:"redis" env-prefix:"ALERTS_REDIS_"`
	Influx   InfluxConfig   `yaml:"influx" env-prefix:"INFLUX_"`
	Readings ReadingsConfig `yaml:"readings" env-prefix:"ALERTS_READINGS_"`
	Push     PushConfig     `yaml:"push" env-prefix:"ALERTS_PUSH_"`
	Mail     MailConfig     `yaml:"mail" env-prefix:"ALERTS_MAIL_"`
	Approval ApprovalConfig `yaml:"approval" env-prefix:"ALERTS_APPROVAL_"`
	Policy   PolicyConfig   `yaml:"policy" env-prefix:"ALERTS_POLICY_"`
	Schedule ScheduleConfig `yaml:"schedule" env-prefix:"ALERTS_SCHEDULE_"`
	Tracing  TracingConfig  `yaml:"tracing" env-prefix:"ALERTS_TRACING_"`
}

type HTTPConfig struct {
	Port         int           `yaml:"port" env:"PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"10s"`
}

type GRPCConfig struct {
	HealthPort int `yaml:"health_port" env:"HEALTH_PORT" env-default:"50051"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED" env-default:"true"`
	Host     string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PORT" env-default:"1883"`
	User     string `yaml:"user" env:"USER" env-default:"guest"`
	Password string `yaml:"password" env:"PASSWORD" env-default:"guest"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID" env-default:"irrigation-alerts"`
	// Topics the alerting service subscribes to.
	StatusTopic       string `yaml:"status_topic" env:"STATUS_TOPIC" env-default:"event/cycleStatus/#"`
	AdvisoryTopic     string `yaml:"advisory_topic" env:"ADVISORY_TOPIC" env-default:"event/advisory/#"`
	VerificationTopic string `yaml:"verification_topic" env:"VERIFICATION_TOPIC" env-default:"event/verification/#"`
	TriggerTopic      string `yaml:"trigger_topic" env:"TRIGGER_TOPIC" env-default:"trigger/sweep/#"`
	// AlertTopicTmpl is where persisted alerts are re-published; empty disables it.
	AlertTopicTmpl string `yaml:"alert_topic_tmpl" env:"ALERT_TOPIC_TMPL" env-default:"event/alert/{field}/{type}"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver" env:"DRIVER" env-default:"mysql"` // mysql|memory
	DSN         string `yaml:"dsn" env:"DSN"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"true"`
	MaxOpen     int    `yaml:"max_open" env:"MAX_OPEN" env-default:"16"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"` // empty = in-process locks
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB" env-default:"0"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"LOCK_TTL" env-default:"30s"`
}

type InfluxConfig struct {
	URL          string        `yaml:"url" env:"URL"`
	Token        string        `yaml:"token" env:"TOKEN"`
	Org          string        `yaml:"org" env:"ORG" env-default:"sdcc"`
	Bucket       string        `yaml:"bucket" env:"BUCKET" env-default:"agri"`
	Measurement  string        `yaml:"measurement" env:"MEASUREMENT" env-default:"sensor_reading"`
	Field        string        `yaml:"field" env:"FIELD" env-default:"value"`
	Lookback     time.Duration `yaml:"lookback" env:"LOOKBACK" env-default:"24h"`
	AlertsBucket string        `yaml:"alerts_bucket" env:"ALERTS_BUCKET" env-default:"events"`
}

type ReadingsConfig struct {
	Source string `yaml:"source" env:"SOURCE" env-default:"store"` // store|influx
}

type PushConfig struct {
	Endpoint        string        `yaml:"endpoint" env:"ENDPOINT" env-default:"https://fcm.googleapis.com"`
	ProjectID       string        `yaml:"project_id" env:"PROJECT_ID"`
	AccessToken     string        `yaml:"access_token" env:"ACCESS_TOKEN"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"5s"`
	MaxRetries      int           `yaml:"max_retries" env:"MAX_RETRIES" env-default:"3"`
	BreakerFailures int           `yaml:"breaker_failures" env:"BREAKER_FAILURES" env-default:"5"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for" env:"BREAKER_OPEN_FOR" env-default:"30s"`
}

type MailConfig struct {
	Host     string   `yaml:"host" env:"HOST"`
	Port     int      `yaml:"port" env:"PORT" env-default:"587"`
	User     string   `yaml:"user" env:"USER"`
	Password string   `yaml:"password" env:"PASSWORD"`
	From     string   `yaml:"from" env:"FROM" env-default:"no-reply@faminga.app"`
	Admins   []string `yaml:"admins" env:"ADMINS" env-separator:","`
}

type ApprovalConfig struct {
	BaseURL   string        `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8081"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"168h"`
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Port      int           `yaml:"port" env:"PORT" env-default:"8081"`
}

type SignalConfig struct {
	LowThreshold      float64       `yaml:"low_threshold" env:"LOW"`
	CriticalThreshold float64       `yaml:"critical_threshold" env:"CRITICAL"`
	MediumCooldown    time.Duration `yaml:"medium_cooldown" env:"MEDIUM_COOLDOWN"`
	CriticalCooldown  time.Duration `yaml:"critical_cooldown" env:"CRITICAL_COOLDOWN"`
	SeverityBypass    bool          `yaml:"severity_bypass" env:"SEVERITY_BYPASS"`
}

type PolicyConfig struct {
	Soil          SignalConfig  `yaml:"soil" env-prefix:"SOIL_"`
	Water         SignalConfig  `yaml:"water" env-prefix:"WATER_"`
	ReminderLead  time.Duration `yaml:"reminder_lead" env:"REMINDER_LEAD" env-default:"30m"`
	ReminderDedup time.Duration `yaml:"reminder_dedup" env:"REMINDER_DEDUP" env-default:"60m"`
}

type ScheduleConfig struct {
	SoilEvery      time.Duration `yaml:"soil_every" env:"SOIL_EVERY" env-default:"2h"`
	WaterEvery     time.Duration `yaml:"water_every" env:"WATER_EVERY" env-default:"1h"`
	RemindersEvery time.Duration `yaml:"reminders_every" env:"REMINDERS_EVERY" env-default:"30m"`
	Concurrency    int           `yaml:"concurrency" env:"CONCURRENCY" env-default:"8"`
	EntityTimeout  time.Duration `yaml:"entity_timeout" env:"ENTITY_TIMEOUT" env-default:"20s"`
}

type TracingConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Endpoint     string        `yaml:"endpoint" env:"ENDPOINT" env-default:"http://localhost:4318"`
	Insecure     bool          `yaml:"insecure" env:"INSECURE" env-default:"true"`
	SamplingRate float64       `yaml:"sampling_rate" env:"SAMPLING_RATE" env-default:"1"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"5s"`
}

// Load reads path (when non-empty) and then the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{Policy: defaultPolicyConfig()}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Driver != "mysql" && c.Database.Driver != "memory" {
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}
	if c.Database.Driver == "mysql" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for mysql")
	}
	if c.Readings.Source == "influx" && c.Influx.URL == "" {
		return fmt.Errorf("readings.source=influx requires influx.url")
	}
	if c.Schedule.Concurrency < 1 {
		return fmt.Errorf("schedule.concurrency must be >= 1")
	}
	if err := c.Policy.ToPolicy().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

func defaultPolicyConfig() PolicyConfig {
	d := policy.DefaultConfig()
	return PolicyConfig{
		Soil:          signalConfig(d.Soil),
		Water:         signalConfig(d.Water),
		ReminderLead:  d.Reminders.Lead,
		ReminderDedup: d.Reminders.Dedup,
	}
}

func signalConfig(p policy.SignalPolicy) SignalConfig {
	return SignalConfig{
		LowThreshold:      p.LowThreshold,
		CriticalThreshold: p.CriticalThreshold,
		MediumCooldown:    p.MediumCooldown,
		CriticalCooldown:  p.CriticalCooldown,
		SeverityBypass:    p.SeverityBypass,
	}
}

// ToPolicy overlays the configured values on the canonical policy.
// Zero durations and thresholds keep the default; the bypass flag is taken
// as configured since Load seeds it from the defaults.
func (pc PolicyConfig) ToPolicy() policy.Config {
	out := policy.DefaultConfig()
	apply := func(dst *policy.SignalPolicy, sc SignalConfig) {
		if sc.LowThreshold > 0 {
			dst.LowThreshold = sc.LowThreshold
		}
		if sc.CriticalThreshold > 0 {
			dst.CriticalThreshold = sc.CriticalThreshold
		}
		if sc.MediumCooldown > 0 {
			dst.MediumCooldown = sc.MediumCooldown
		}
		if sc.CriticalCooldown > 0 {
			dst.CriticalCooldown = sc.CriticalCooldown
		}
		dst.SeverityBypass = sc.SeverityBypass
	}
	apply(&out.Soil, pc.Soil)
	apply(&out.Water, pc.Water)
	if pc.ReminderLead > 0 {
		out.Reminders.Lead = pc.ReminderLead
	}
	if pc.ReminderDedup > 0 {
		out.Reminders.Dedup = pc.ReminderDedup
	}
	return out
}

// SignalNames maps sweep names used on the CLI and MQTT onto signals.
var SignalNames = map[string]entities.Signal{
	"soil":  entities.SignalSoilMoisture,
	"water": entities.SignalWaterLevel,
}
