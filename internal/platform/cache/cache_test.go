package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewClient(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestPseudonymStore_FirstWriterWins(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewPseudonymStore(client)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "patient-1", "patient", "PATIENT_aaaa")
	require.NoError(t, err)
	assert.Equal(t, "PATIENT_aaaa", first)

	second, err := store.GetOrCreate(ctx, "patient-1", "patient", "PATIENT_bbbb")
	require.NoError(t, err)
	assert.Equal(t, "PATIENT_aaaa", second, "existing pseudonym must be kept")

	other, err := store.GetOrCreate(ctx, "patient-2", "patient", "PATIENT_cccc")
	require.NoError(t, err)
	assert.Equal(t, "PATIENT_cccc", other)
}

func TestPseudonymStore_Clear(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewPseudonymStore(client)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "patient-1", "patient", "PATIENT_aaaa")
	require.NoError(t, err)
	require.True(t, mr.Exists(pseudonymKey("patient-1")))

	require.NoError(t, store.Clear(ctx, "patient-1"))
	assert.False(t, mr.Exists(pseudonymKey("patient-1")))

	fresh, err := store.GetOrCreate(ctx, "patient-1", "patient", "PATIENT_dddd")
	require.NoError(t, err)
	assert.Equal(t, "PATIENT_dddd", fresh)
}

func TestLocker_Exclusive(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	ok, release, err := locker.TryLock(ctx, "sweep:acme", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok2, _, err := locker.TryLock(ctx, "sweep:acme", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2, "second holder must not acquire")

	require.NoError(t, release(ctx))

	ok3, _, err := locker.TryLock(ctx, "sweep:acme", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok3, "lock should be free after release")
}

func TestLocker_Expires(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	ok, _, err := locker.TryLock(ctx, "sweep:acme", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, _, err = locker.TryLock(ctx, "sweep:acme", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_ReleaseDoesNotStealNewHolder(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, staleRelease, err := locker.TryLock(ctx, "sweep:acme", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	ok, _, err := locker.TryLock(ctx, "sweep:acme", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, staleRelease(ctx))
	assert.True(t, mr.Exists(lockKeyPrefix+"sweep:acme"), "stale release must not delete the new lock")
}
