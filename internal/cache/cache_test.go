package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &memory{m: make(map[string]entry), now: func() time.Time { return now }}

	c.Set(ctx, "fac:1", []byte("page"), time.Minute)
	c.Set(ctx, "forever", []byte("x"), 0)

	got, ok := c.Get(ctx, "fac:1")
	require.True(t, ok)
	assert.Equal(t, []byte("page"), got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "fac:1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemory_CopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	buf := []byte("abc")
	c.Set(ctx, "k", buf, 0)
	buf[0] = 'z'

	got, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}

func TestRedis_GetSet(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "dcw:")

	mock.ExpectSet("dcw:ccld:1", []byte("report"), time.Hour).SetVal("OK")
	c.Set(ctx, "ccld:1", []byte("report"), time.Hour)

	mock.ExpectGet("dcw:ccld:1").SetVal("report")
	got, ok := c.Get(ctx, "ccld:1")
	require.True(t, ok)
	assert.Equal(t, "report", string(got))

	mock.ExpectGet("dcw:missing").RedisNil()
	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	mock.ExpectGet("dcw:down").SetErr(errors.New("connection refused"))
	_, ok = c.Get(ctx, "down")
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_PicksBackend(t *testing.T) {
	_, isMemory := New("", 0, "").(*memory)
	assert.True(t, isMemory)

	r, isRedis := New("localhost:6379", 0, "p:").(*Redis)
	require.True(t, isRedis)
	assert.NoError(t, r.Close())
}
