package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLockerExclusive(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	release, err := locker.TryAcquire(ctx, "proforma:x:convert", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryAcquire(ctx, "proforma:x:convert", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	release2, err := locker.TryAcquire(ctx, "proforma:x:convert", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestLockerExpires(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	release, err := locker.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	release2, err := locker.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// the stale holder must not drop the new holder's lock
	release()
	assert.True(t, mr.Exists("k"))
	release2()
	assert.False(t, mr.Exists("k"))
}
