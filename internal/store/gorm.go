package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
)

// GormStore is the MySQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

// OpenMySQL connects with dsn and optionally migrates the schema.
func OpenMySQL(dsn string, maxOpen int, migrate bool) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil && maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	s := NewGormStore(db)
	if migrate {
		if err := s.Migrate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	log := logger.WithComponent("store")
	log.Info().Msg("schema migrated")
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first loads one row into dst, mapping a missing record to ErrNotFound.
func first(tx *gorm.DB, dst any, query string, args ...any) error {
	err := tx.Where(query, args...).First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetField(ctx context.Context, id string) (*entities.Field, error) {
	var row fieldRow
	if err := first(s.db.WithContext(ctx), &row, "id = ?", id); err != nil {
		return nil, err
	}
	return &entities.Field{ID: row.ID, UserID: row.UserID, Name: row.Name}, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*entities.User, error) {
	db := s.db.WithContext(ctx)
	var row userRow
	if err := first(db, &row, "id = ?", id); err != nil {
		return nil, err
	}
	var tokens []string
	if err := db.Model(&userTokenRow{}).Where("user_id = ?", id).Order("token").Pluck("token", &tokens).Error; err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	return &entities.User{
		ID: row.ID, Email: row.Email, Name: row.Name, Role: row.Role,
		Verified: row.Verified, FCMTokens: tokens,
	}, nil
}

func (s *GormStore) ListSensors(ctx context.Context, signal entities.Signal) ([]entities.Sensor, error) {
	var rows []sensorRow
	if err := s.db.WithContext(ctx).Where("type = ?", string(signal)).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entities.Sensor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entity())
	}
	return out, nil
}

func (s *GormStore) ListActiveSchedules(ctx context.Context) ([]entities.Schedule, error) {
	var rows []scheduleRow
	if err := s.db.WithContext(ctx).Where("status = ?", entities.ScheduleActive).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entities.Schedule, 0, len(rows))
	for _, r := range rows {
		out = append(out, entities.Schedule{
			ID: r.ID, UserID: r.UserID, FieldID: r.FieldID, Status: r.Status, ScheduledTime: r.ScheduledTime,
		})
	}
	return out, nil
}

func (s *GormStore) LatestReading(ctx context.Context, sensorID string) (*entities.Reading, error) {
	var rows []readingRow
	if err := s.db.WithContext(ctx).Where("sensor_id = ?", sensorID).Order("ts DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &entities.Reading{SensorID: rows[0].SensorID, Value: rows[0].Value, Timestamp: rows[0].Timestamp}, nil
}

func (s *GormStore) InsertReading(ctx context.Context, r entities.Reading) error {
	return s.db.WithContext(ctx).Create(&readingRow{SensorID: r.SensorID, Value: r.Value, Timestamp: r.Timestamp}).Error
}

func keyScope(key entities.CooldownKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("type = ? AND sensor_id = ?", string(key.Type), key.SensorID)
		if key.FieldID != "" {
			db = db.Where("field_id = ?", key.FieldID)
		}
		return db
	}
}

func (s *GormStore) LastAlert(ctx context.Context, key entities.CooldownKey) (*entities.Alert, error) {
	var rows []alertRow
	err := s.db.WithContext(ctx).Scopes(keyScope(key)).Order("created_at DESC").Limit(1).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	a := rows[0].entity()
	return &a, nil
}

// AppendAlert swaps the key's head from prev to a and inserts a in the same
// transaction. A missing head is claimed with an insert that ignores
// duplicates, so two writers racing on a fresh key cannot both win.
func (s *GormStore) AppendAlert(ctx context.Context, key entities.CooldownKey, prev *entities.Alert, a entities.Alert) error {
	k := key.String()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var claimed int64
		if prev != nil {
			res := tx.Model(&cooldownRow{}).
				Where("cooldown_key = ? AND last_alert_id = ?", k, prev.ID).
				Updates(map[string]any{"last_alert_id": a.ID, "last_at": a.Timestamp, "severity": string(a.Severity)})
			if res.Error != nil {
				return res.Error
			}
			claimed = res.RowsAffected
		}
		if claimed == 0 {
			head := cooldownRow{CooldownKey: k, LastAlertID: a.ID, LastAt: a.Timestamp, Severity: string(a.Severity)}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&head)
			if res.Error != nil {
				return res.Error
			}
			claimed = res.RowsAffected
		}
		if claimed == 0 {
			return ErrCooldownConflict
		}
		row := toAlertRow(a)
		return tx.Create(&row).Error
	})
}

func (s *GormStore) InsertAlert(ctx context.Context, a entities.Alert) error {
	row := toAlertRow(a)
	return s.db.WithContext(ctx).Create(&row).Error
}

// AppendReminder serializes on the schedule row so two sweeps cannot both
// pass the window check.
func (s *GormStore) AppendReminder(ctx context.Context, scheduleID string, now time.Time, window time.Duration) (bool, error) {
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sched scheduleRow
		if err := first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), &sched, "id = ?", scheduleID); err != nil {
			return err
		}
		var recent int64
		if err := tx.Model(&reminderRow{}).
			Where("schedule_id = ? AND ts > ?", scheduleID, now.Add(-window)).
			Count(&recent).Error; err != nil {
			return err
		}
		if recent > 0 {
			return nil
		}
		if err := tx.Create(&reminderRow{ID: uuid.NewString(), ScheduleID: scheduleID, Timestamp: now}).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *GormStore) RemoveUserTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND token IN ?", userID, tokens).
		Delete(&userTokenRow{}).Error
}

func (s *GormStore) GetVerification(ctx context.Context, id string) (*entities.Verification, error) {
	var row verificationRow
	if err := first(s.db.WithContext(ctx), &row, "id = ?", id); err != nil {
		return nil, err
	}
	v := row.entity()
	return &v, nil
}

// transition moves a pending verification to status; ErrStale when it is
// no longer pending, ErrNotFound when it does not exist.
func transition(tx *gorm.DB, id string, updates map[string]any) error {
	res := tx.Model(&verificationRow{}).
		Where("id = ? AND status = ?", id, string(entities.VerificationPending)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := tx.Model(&verificationRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStale
}

func (s *GormStore) ApproveVerification(ctx context.Context, id string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row verificationRow
		if err := first(tx, &row, "id = ?", id); err != nil {
			return err
		}
		if err := transition(tx, id, map[string]any{
			"status":      string(entities.VerificationApproved),
			"approved_at": now,
		}); err != nil {
			return err
		}
		return tx.Model(&userRow{}).Where("id = ?", row.UserID).Update("verified", true).Error
	})
}

func (s *GormStore) RejectVerification(ctx context.Context, id string, _ time.Time) error {
	return transition(s.db.WithContext(ctx), id, map[string]any{"status": string(entities.VerificationRejected)})
}

func (s *GormStore) RecordVerificationEmail(ctx context.Context, id string, sentAt *time.Time, sendErr string) error {
	return s.db.WithContext(ctx).Model(&verificationRow{}).Where("id = ?", id).
		Updates(map[string]any{"email_sent_at": sentAt, "email_error": sendErr}).Error
}

func (s *GormStore) AppendAudit(ctx context.Context, e entities.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(&auditRow{
		ID: e.ID, Action: e.Action, VerificationID: e.VerificationID, Outcome: e.Outcome,
		Detail: e.Detail, RemoteAddr: e.RemoteAddr, Timestamp: e.Timestamp,
	}).Error
}

var _ Store = (*GormStore)(nil)
