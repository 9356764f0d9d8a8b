package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client
}

func TestWithDoctorLockRunsCallback(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisDoctorLocker(client, 5*time.Second)

	called := false
	err := locker.WithDoctorLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestWithDoctorLockRejectsSecondHolder(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisDoctorLocker(client, 5*time.Second)
	doctorID := uuid.New()

	err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		// Lock is held here, a second acquisition for the same doctor must fail.
		inner := locker.WithDoctorLock(ctx, doctorID, func(ctx context.Context) error {
			t.Fatal("second holder callback should not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})

	require.NoError(t, err)
}

func TestWithDoctorLockDifferentDoctorsDoNotContend(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisDoctorLocker(client, 5*time.Second)

	err := locker.WithDoctorLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		return locker.WithDoctorLock(ctx, uuid.New(), func(ctx context.Context) error {
			return nil
		})
	})

	require.NoError(t, err)
}

func TestWithDoctorLockReleasesOnReturn(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewRedisDoctorLocker(client, 5*time.Second)
	doctorID := uuid.New()

	require.NoError(t, locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		return nil
	}))

	// The key is gone, so a fresh booking can take the lock immediately.
	err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}
