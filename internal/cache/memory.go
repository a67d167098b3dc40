package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process cache. Expired entries are dropped on access and
// by a background sweep.
type Memory struct {
	data   sync.Map
	opts   Options
	cancel context.CancelFunc
}

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// NewMemory starts a memory cache. Call Close to stop its sweeper.
func NewMemory(opts Options) *Memory {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Memory{opts: opts, cancel: cancel}
	go m.sweep(ctx, time.Minute)
	return m
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := m.opts.Prefix + key
	v, ok := m.data.Load(full)
	if !ok {
		return nil, MissError{Key: key}
	}
	e := v.(entry)
	if e.expired(time.Now()) {
		m.data.Delete(full)
		return nil, MissError{Key: key}
	}
	return e.value, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.opts.TTL
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.data.Store(m.opts.Prefix+key, e)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Delete(m.opts.Prefix + key)
	return nil
}

// Clear drops every entry under this cache's prefix.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), m.opts.Prefix) {
			m.data.Delete(k)
		}
		return true
	})
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if IsMiss(err) {
		return false, nil
	}
	return err == nil, err
}

// Close stops the sweeper.
func (m *Memory) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *Memory) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.data.Range(func(k, v any) bool {
				if v.(entry).expired(now) {
					m.data.Delete(k)
				}
				return true
			})
		}
	}
}
