package services

import (
	"context"
	"errors"
	"time"

	"meu_perito_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormKV stores docket buckets as rows of the kv_entries table
type GormKV struct {
	db *gorm.DB
}

// NewGormKV creates a KVStore backed by a migrated gorm connection
func NewGormKV(db *gorm.DB) *GormKV {
	return &GormKV{db: db}
}

func (g *GormKV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var entry models.KVEntry
	err := g.db.WithContext(ctx).
		Where("bucket = ? AND entry_key = ?", bucket, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (g *GormKV) Put(ctx context.Context, bucket, key string, value []byte) error {
	entry := models.KVEntry{
		Bucket:    bucket,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (g *GormKV) Delete(ctx context.Context, bucket, key string) error {
	return g.db.WithContext(ctx).
		Where("bucket = ? AND entry_key = ?", bucket, key).
		Delete(&models.KVEntry{}).Error
}
