// Package cache stores metadata API responses between calls and runs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value for ttl. A zero ttl uses the backend default; a
	// negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Driver names a cache backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverNone   Driver = "none"
)

// Options holds settings shared by every backend.
type Options struct {
	TTL    time.Duration
	Prefix string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		TTL:    10 * time.Minute,
		Prefix: "assaykit:",
	}
}

// Config selects and configures a backend.
type Config struct {
	Driver  Driver
	Options Options
	Redis   RedisConfig
}

// Open builds the configured cache. An empty driver means memory.
func Open(cfg Config) (Cache, error) {
	if cfg.Options.Prefix == "" {
		cfg.Options.Prefix = DefaultOptions().Prefix
	}
	if cfg.Options.TTL == 0 {
		cfg.Options.TTL = DefaultOptions().TTL
	}
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(cfg.Options), nil
	case DriverRedis:
		cfg.Redis.Options = cfg.Options
		return NewRedis(cfg.Redis)
	case DriverNone:
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
}

// MissError is returned by Get when a key is absent or expired.
type MissError struct {
	Key string
}

func (e MissError) Error() string {
	return "cache miss: " + e.Key
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	var miss MissError
	return errors.As(err, &miss)
}

// Nop is a cache that stores nothing.
type Nop struct{}

func (Nop) Get(_ context.Context, key string) ([]byte, error) { return nil, MissError{Key: key} }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Delete(context.Context, string) error                     { return nil }
func (Nop) Clear(context.Context) error                              { return nil }
func (Nop) Exists(context.Context, string) (bool, error)             { return false, nil }
func (Nop) Close() error                                             { return nil }
