package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/claystudio/membership-backend/pkg/config"
)

type fakeRedis struct {
	data      map[string]string
	counters  map[string]int64
	ttls      map[string]time.Duration
	failIncr  error
	evalCalls int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data:     map[string]string{},
		counters: map[string]int64{},
		ttls:     map[string]time.Duration{},
	}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.failIncr != nil {
		return redis.NewIntResult(0, f.failIncr)
	}
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeRedis) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.ttls[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.evalCalls++
	if f.data[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	for i := 1; i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "intake:ip:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, int64(i), count)
	}

	allowed, count, err := client.FixedWindowAllow(ctx, "intake:ip:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, int64(3), count)
	require.Equal(t, time.Minute, fake.ttls["studio:rate_limit:intake:ip:10.0.0.1"])
}

func TestFixedWindowAllowSurfacesErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.failIncr = errors.New("connection refused")
	client := &Client{store: fake}

	allowed, _, err := client.FixedWindowAllow(context.Background(), "login:ip:1", 5, time.Minute)
	require.Error(t, err)
	require.False(t, allowed)
}

func TestReplayRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeRedis()}

	_, found, err := client.LoadReplay(ctx, "reviewer-1:key-1")
	require.NoError(t, err)
	require.False(t, found)

	stored, err := client.SaveReplay(ctx, "reviewer-1:key-1", []byte(`{"status":201}`), time.Hour)
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = client.SaveReplay(ctx, "reviewer-1:key-1", []byte(`{"status":200}`), time.Hour)
	require.NoError(t, err)
	require.False(t, stored, "the first stored response wins")

	payload, found, err := client.LoadReplay(ctx, "reviewer-1:key-1")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"status":201}`, string(payload))
}

func TestClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	ok, err := client.Claim(ctx, "maintenance:lock:prod", "run-a", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "run-a", fake.data["studio:maintenance:lock:prod"])

	ok, err = client.Claim(ctx, "maintenance:lock:prod", "run-b", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	released, err := client.Release(ctx, "maintenance:lock:prod", "run-b")
	require.NoError(t, err)
	require.False(t, released)

	released, err = client.Release(ctx, "maintenance:lock:prod", "run-a")
	require.NoError(t, err)
	require.True(t, released)
	require.Equal(t, 2, fake.evalCalls)
}

func TestKey(t *testing.T) {
	require.Equal(t, "studio:replay:abc", Key("replay", " abc "))
	require.Equal(t, "studio:rate_limit", Key("rate_limit", ""))
	require.Equal(t, "studio", Key())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/0", DB: 3, PoolSize: 7})
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, "pw", opts.Password)
}

func TestNilClientIsSafe(t *testing.T) {
	var client *Client
	require.Error(t, client.Ping(context.Background()))
	require.NoError(t, client.Close())
}
