package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/crmhub/internal/models"
)

var errNoDatabase = errors.New("cache: database store not initialised")

// DatabaseStore keeps counters and claims in the cache_entries table.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

type DatabaseStoreOption func(*DatabaseStore)

func WithDatabaseClock(now func() time.Time) DatabaseStoreOption {
	return func(s *DatabaseStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDatabaseStore returns nil for a nil db.
func NewDatabaseStore(db *gorm.DB, opts ...DatabaseStoreOption) *DatabaseStore {
	if db == nil {
		return nil
	}
	s := &DatabaseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errNoDatabase
	}
	window = windowOr(window)
	now := s.now().UTC()
	var entry models.CacheEntry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&entry, "cache_key = ?", key).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.CacheEntry{Key: key, Hits: 1, ExpiresAt: now.Add(window)}
			return tx.Create(&entry).Error
		case err != nil:
			return err
		case !now.Before(entry.ExpiresAt):
			entry.Hits, entry.ExpiresAt = 1, now.Add(window)
		default:
			entry.Hits++
		}
		return tx.Model(&models.CacheEntry{}).Where("cache_key = ?", key).
			Updates(map[string]any{"hits": entry.Hits, "expires_at": entry.ExpiresAt}).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return entry.Hits, entry.ExpiresAt.Sub(now), nil
}

// Claim inserts key unless a live row already holds it. A dead row left
// behind by an earlier claim is replaced.
func (s *DatabaseStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s == nil {
		return false, errNoDatabase
	}
	now := s.now().UTC()
	var claimed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ? AND expires_at <= ?", key, now).
			Delete(&models.CacheEntry{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.CacheEntry{Key: key, Hits: 1, ExpiresAt: now.Add(windowOr(ttl))})
		claimed = res.RowsAffected == 1
		return res.Error
	})
	return claimed, err
}

// CleanupExpired deletes dead rows and reports how many went.
func (s *DatabaseStore) CleanupExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errNoDatabase
	}
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}
