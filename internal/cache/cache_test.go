package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() Key { return Key{Kind: "bets", TournamentID: 1} }

func TestGetCachesWithinFreshnessWindow(t *testing.T) {
	s := New(zerolog.Nop())
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		return "payload", nil
	}

	v, err := s.Get(context.Background(), testKey(), time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)

	v, err = s.Get(context.Background(), testKey(), time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRefetchesWhenStale(t *testing.T) {
	s := New(zerolog.Nop())
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		return int(calls.Add(1)), nil
	}

	v, err := s.Get(context.Background(), testKey(), time.Nanosecond, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	time.Sleep(time.Millisecond)
	v, err = s.Get(context.Background(), testKey(), time.Nanosecond, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetJoinsInFlightFetch(t *testing.T) {
	s := New(zerolog.Nop())
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Get(context.Background(), testKey(), time.Minute, fetch)
			assert.NoError(t, err)
			assert.Equal(t, "shared", v)
		}()
	}
	// let the goroutines pile onto the same key before releasing
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetErrorDoesNotPoison(t *testing.T) {
	s := New(zerolog.Nop())
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, assert.AnError
		}
		return "ok", nil
	}

	_, err := s.Get(context.Background(), testKey(), time.Minute, fetch)
	require.Error(t, err)
	_, ok := s.Peek(testKey())
	assert.False(t, ok, "failed fetch must not cache")

	v, err := s.Get(context.Background(), testKey(), time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestUpdateTransformsAndPublishes(t *testing.T) {
	s := New(zerolog.Nop())
	var notified atomic.Int32
	unsub := s.Subscribe(testKey(), func(Key) { notified.Add(1) })
	defer unsub()

	s.Put(testKey(), []int{1}, time.Minute)
	s.Update(testKey(), time.Minute, func(prev any, ok bool) any {
		require.True(t, ok)
		return append([]int{0}, prev.([]int)...)
	})

	v, ok := s.Peek(testKey())
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, v)
	assert.Equal(t, int32(2), notified.Load())
}

func TestUpdateOnMissingKeyCreatesEntry(t *testing.T) {
	s := New(zerolog.Nop())
	s.Update(testKey(), time.Minute, func(prev any, ok bool) any {
		assert.False(t, ok)
		assert.Nil(t, prev)
		return "created"
	})

	v, ok := s.Peek(testKey())
	require.True(t, ok)
	assert.Equal(t, "created", v)
}

func TestInvalidateKeepsValueButForcesRefetch(t *testing.T) {
	s := New(zerolog.Nop())
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		return int(calls.Add(1)), nil
	}

	_, err := s.Get(context.Background(), testKey(), time.Minute, fetch)
	require.NoError(t, err)

	s.Invalidate(testKey())

	v, ok := s.Peek(testKey())
	require.True(t, ok, "stale value still served to non-blocking readers")
	assert.Equal(t, 1, v)

	v, err = s.Get(context.Background(), testKey(), time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSeedDoesNotOverwriteLiveData(t *testing.T) {
	s := New(zerolog.Nop())
	s.Put(testKey(), "live", time.Minute)
	s.Seed(testKey(), "persisted", time.Now().Add(-time.Hour), time.Minute)

	v, _ := s.Peek(testKey())
	assert.Equal(t, "live", v)
}

func TestSeedIsStaleWhenOld(t *testing.T) {
	s := New(zerolog.Nop())
	s.Seed(testKey(), "persisted", time.Now().Add(-time.Hour), time.Minute)

	v, ok := s.Peek(testKey())
	require.True(t, ok)
	assert.Equal(t, "persisted", v)

	var calls atomic.Int32
	v, err := s.Get(context.Background(), testKey(), time.Minute, func(context.Context) (any, error) {
		calls.Add(1)
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := New(zerolog.Nop())
	var notified atomic.Int32
	unsub := s.Subscribe(testKey(), func(Key) { notified.Add(1) })

	s.Put(testKey(), 1, time.Minute)
	unsub()
	unsub() // safe twice
	s.Put(testKey(), 2, time.Minute)

	assert.Equal(t, int32(1), notified.Load())
}
