package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(DefaultOptions())
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := m.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_Miss(t *testing.T) {
	m := NewMemory(DefaultOptions())
	defer m.Close()

	_, err := m.Get(context.Background(), "absent")
	assert.True(t, IsMiss(err))
	assert.Contains(t, err.Error(), "absent")
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(DefaultOptions())
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	require.NoError(t, m.Set(ctx, "forever", []byte("v"), -1))
	time.Sleep(30 * time.Millisecond)

	_, err := m.Get(ctx, "short")
	assert.True(t, IsMiss(err))
	ok, err := m.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_DeleteAndClear(t *testing.T) {
	m := NewMemory(DefaultOptions())
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, m.Delete(ctx, "a"))
	ok, _ := m.Exists(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, m.Clear(ctx))
	ok, _ = m.Exists(ctx, "b")
	assert.False(t, ok)
}

func TestMemory_CancelledContext(t *testing.T) {
	m := NewMemory(DefaultOptions())
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Set(ctx, "k", nil, 0), context.Canceled)
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr bool
	}{
		{name: "default is memory", cfg: Config{}, want: &Memory{}},
		{name: "none", cfg: Config{Driver: DriverNone}, want: Nop{}},
		{name: "unknown", cfg: Config{Driver: "memcached"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer c.Close()
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	_, err := c.Get(ctx, "k")
	assert.True(t, IsMiss(err))
}
