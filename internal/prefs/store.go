// Package prefs is the per-device key/value storage backing the theme mode and
// the persisted auth refresh token.
package prefs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyRefreshToken holds the device's auth refresh token.
const KeyRefreshToken = "auth-refresh-token"

type Pref struct {
	DeviceID  string `gorm:"primaryKey;type:varchar(36)"`
	Key       string `gorm:"primaryKey;type:varchar(64)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (Pref) TableName() string { return "device_prefs" }

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Pref{})
}

// Device scopes the store to one device.
func (s *Store) Device(id string) *DeviceStore {
	return &DeviceStore{db: s.db, deviceID: id}
}

// DeviceStore reads and writes the preferences of a single device.
type DeviceStore struct {
	db       *gorm.DB
	deviceID string
}

// Get returns ok=false when key was never set.
func (d *DeviceStore) Get(ctx context.Context, key string) (string, bool, error) {
	var p Pref
	err := d.db.WithContext(ctx).
		Where("device_id = ? AND `key` = ?", d.deviceID, key).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.Value, true, nil
}

func (d *DeviceStore) Set(ctx context.Context, key, value string) error {
	p := Pref{DeviceID: d.deviceID, Key: key, Value: value, UpdatedAt: time.Now()}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&p).Error
}

func (d *DeviceStore) Delete(ctx context.Context, key string) error {
	return d.db.WithContext(ctx).
		Where("device_id = ? AND `key` = ?", d.deviceID, key).
		Delete(&Pref{}).Error
}

// LoadRefreshToken and SaveRefreshToken let a DeviceStore back the gateway
// client's session persistence. An empty token clears it.
func (d *DeviceStore) LoadRefreshToken(ctx context.Context) (string, error) {
	v, _, err := d.Get(ctx, KeyRefreshToken)
	return v, err
}

func (d *DeviceStore) SaveRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return d.Delete(ctx, KeyRefreshToken)
	}
	return d.Set(ctx, KeyRefreshToken, token)
}
