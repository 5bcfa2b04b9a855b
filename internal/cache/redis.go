package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "crmhub:"
)

// incrementScript returns {count, pttl}; the expiry is set only by the hit
// that opens the window.
var incrementScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

type RedisClient struct {
	client redis.UniversalClient
}

func (cfg RedisConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		host, _, err := net.SplitHostPort(cfg.Address)
		if err != nil {
			host = cfg.Address
		}
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewRedisClient connects and pings once, so a bad address fails at startup
// rather than on the first rate-limited request.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	client := redis.NewClient(cfg.options())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Address, err)
	}
	return &RedisClient{client: client}, nil
}

func (c *RedisClient) Close() error { return c.client.Close() }

func (c *RedisClient) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *RedisClient) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	window = windowOr(window)
	reply, err := incrementScript.Run(ctx, c.client, []string{c.prefixed(key)}, window.Milliseconds()).Int64Slice()
	switch {
	case err != nil:
		return 0, 0, fmt.Errorf("redis: increment %s: %w", key, err)
	case len(reply) != 2:
		return 0, 0, fmt.Errorf("redis: increment %s: unexpected reply", key)
	}
	ttl := time.Duration(reply[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return reply[0], ttl, nil
}

// Claim is SET NX with an expiry.
func (c *RedisClient) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefixed(key), 1, windowOr(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// prefixed namespaces key under redisKeyPrefix and collapses runs of colons,
// so callers can join segments without care.
func (c *RedisClient) prefixed(key string) string {
	key = normalizeKey(strings.TrimSpace(key))
	if strings.HasPrefix(key, redisKeyPrefix) {
		return key
	}
	return redisKeyPrefix + key
}

func normalizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == ':' })
	return strings.Join(parts, ":")
}
