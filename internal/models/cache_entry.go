package models

import "time"

// CacheEntry is a windowed counter or a one-time claim kept in SQL when
// Redis is not configured. Rows past ExpiresAt are dead and get swept.
type CacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:256"`
	Hits      int64     `gorm:"not null;default:0"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}
