package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config contains database connection options.
type Config struct {
	Driver string
	Path   string // SQLite file; empty or ":memory:" for an in-memory database
	DSN    string // used verbatim when set

	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type dialect struct {
	name   string
	open   func(Config) (gorm.Dialector, error)
	pooled bool
}

var dialects = map[string]dialect{
	"sqlite":     {name: "sqlite", open: openSQLite},
	"sqlite3":    {name: "sqlite", open: openSQLite},
	"postgres":   {name: "postgres", open: openPostgres, pooled: true},
	"postgresql": {name: "postgres", open: openPostgres, pooled: true},
	"mysql":      {name: "mysql", open: openMySQL, pooled: true},
	"mariadb":    {name: "mysql", open: openMySQL, pooled: true},
}

// Open connects to the configured database. An empty driver means SQLite.
func Open(cfg Config) (*gorm.DB, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if key == "" {
		key = "sqlite"
	}
	d, ok := dialects[key]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dialector, err := d.open(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}

	if d.name == "sqlite" {
		// The pragma is per connection; the DSN flag covers pooled ones.
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}
	if d.pooled {
		if err := tunePool(db, cfg); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Ping verifies the connection is usable.
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func tunePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(positiveOr(cfg.MaxOpenConns, 25))
	sqlDB.SetMaxIdleConns(positiveOr(cfg.MaxIdleConns, 5))
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return nil
}
