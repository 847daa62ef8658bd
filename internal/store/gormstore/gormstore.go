// Package gormstore persists state records in a relational table through
// gorm. Used when the durable store is Postgres (or sqlite in tests).
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateRecord is one serialized state blob per store key.
type StateRecord struct {
	Key       string    `gorm:"primaryKey;column:state_key"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (StateRecord) TableName() string { return "entity_states" }

type Store struct {
	db *gorm.DB
}

func New(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("gorm db is nil")
	}
	if err := gdb.AutoMigrate(&StateRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: gdb}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var record StateRecord
	err := s.db.WithContext(ctx).First(&record, "state_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return record.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	record := StateRecord{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&StateRecord{}, "state_key = ?", key).Error
}
