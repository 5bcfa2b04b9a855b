package database

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (gorm.Dialector, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	// pgconn rejects malformed connection strings without dialing.
	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	return postgres.Open(dsn), nil
}

// postgresDSN renders a libpq keyword/value string. sslmode defaults to
// disable unless the options set it.
func postgresDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	pairs := [][2]string{
		{"host", valueOr(cfg.Host, "localhost")},
		{"port", strconv.Itoa(positiveOr(cfg.Port, 5432))},
		{"user", cfg.User},
		{"dbname", cfg.Name},
	}
	if cfg.Password != "" {
		pairs = append(pairs, [2]string{"password", cfg.Password})
	}

	extra := make([]string, 0, len(cfg.Options)+1)
	for key := range cfg.Options {
		extra = append(extra, key)
	}
	if _, ok := cfg.Options["sslmode"]; !ok {
		extra = append(extra, "sslmode")
	}
	sort.Strings(extra)
	for _, key := range extra {
		value, ok := cfg.Options[key]
		if !ok {
			value = "disable"
		}
		pairs = append(pairs, [2]string{key, value})
	}

	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(quoteLibpq(kv[1]))
	}
	return b.String(), nil
}

// quoteLibpq single-quotes values that are empty or contain spaces, quotes
// or backslashes.
func quoteLibpq(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func valueOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

func positiveOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
