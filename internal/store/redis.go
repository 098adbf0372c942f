package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Redis stores documents as plain string values with SET ... EX.
type Redis struct {
	pool *redis.Pool
}

// NewRedis builds a pooled client for a redis:// URL.
func NewRedis(rawURL string) *Redis {
	return NewRedisPool(&redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(rawURL,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	})
}

func NewRedisPool(pool *redis.Pool) *Redis {
	return &Redis{pool: pool}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	defer conn.Close()
	doc, err := redis.Bytes(conn.Do("GET", key))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return doc, nil
}

func (r *Redis) Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	defer conn.Close()
	args := redis.Args{}.Add(key, doc)
	if ttl > 0 {
		// EX takes whole seconds; round up.
		args = args.Add("EX", int64((ttl+time.Second-1)/time.Second))
	}
	if _, err := redis.String(conn.Do("SET", args...)); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity; used at startup.
func (r *Redis) Ping(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	return err
}

func (r *Redis) Close() error { return r.pool.Close() }
