package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error

	// failExpire makes the next n Expire calls fail.
	failExpire  int
	expireCalls int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	f.expireCalls++
	if f.failExpire > 0 {
		f.failExpire--
		return redis.NewBoolResult(false, errors.New("i/o timeout"))
	}
	f.expires[key] = d
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCounter) TTL(_ context.Context, key string) *redis.DurationCmd {
	d, ok := f.expires[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(d, nil)
}

func TestAllow(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeCounter()
	l := New(rdb, "match", 2, time.Minute)

	for i, want := range []bool{true, true, false, false} {
		ok, err := l.Allow(ctx, "7")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "hit %d", i+1)
	}
	assert.Equal(t, time.Minute, rdb.expires["match:7"])

	ok, err := l.Allow(ctx, "8")
	require.NoError(t, err)
	assert.True(t, ok, "keys are counted separately")
}

func TestAllowDisabled(t *testing.T) {
	var l *Limiter
	ok, err := l.Allow(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = New(newFakeCounter(), "match", 0, time.Minute).Allow(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowRedisError(t *testing.T) {
	rdb := newFakeCounter()
	rdb.err = errors.New("connection refused")

	_, err := New(rdb, "match", 1, time.Minute).Allow(context.Background(), "1")
	assert.ErrorContains(t, err, "connection refused")
}

func TestAllowRepairsMissingExpiry(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeCounter()
	rdb.failExpire = 1
	l := New(rdb, "match", 1, time.Minute)

	_, err := l.Allow(ctx, "7")
	require.Error(t, err, "first hit could not set the window")
	_, hasTTL := rdb.expires["match:7"]
	require.False(t, hasTTL)

	ok, err := l.Allow(ctx, "7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, rdb.expires["match:7"], "denied hit restores the window")

	calls := rdb.expireCalls
	ok, err = l.Allow(ctx, "7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, calls, rdb.expireCalls, "a key with a TTL is left alone")
}
