package models

import "time"

// KVEntry is one row of the relational key-value backend
type KVEntry struct {
	Bucket    string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"column:entry_key;primaryKey;size:512"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"index"`
}

// TableName specifies the table name for KVEntry model
func (KVEntry) TableName() string {
	return "kv_entries"
}
