package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon/internal/config"
)

func testRedisConfig() *config.RedisConfig {
	return &config.RedisConfig{
		Host:     "cache",
		Port:     6380,
		Password: "pass",
		DB:       2,

		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     20,
		MinIdleConns: 4,
	}
}

func TestNewRedisDB_PingError(t *testing.T) {
	origNew := newRedisClient
	origPing := redisPing
	t.Cleanup(func() {
		newRedisClient = origNew
		redisPing = origPing
	})

	newRedisClient = func(opts *redis.Options) *redis.Client {
		return &redis.Client{}
	}
	redisPing = func(ctx context.Context, client *redis.Client) error {
		return errors.New("ping failed")
	}

	_, err := NewRedisDB(testRedisConfig())
	if err == nil || err.Error() == "" {
		t.Fatal("expected ping error")
	}
}

func TestNewRedisDB_OptionsFromConfig(t *testing.T) {
	origNew := newRedisClient
	origPing := redisPing
	t.Cleanup(func() {
		newRedisClient = origNew
		redisPing = origPing
	})

	var got redis.Options
	newRedisClient = func(opts *redis.Options) *redis.Client {
		got = *opts
		return &redis.Client{}
	}
	redisPing = func(ctx context.Context, client *redis.Client) error {
		return nil
	}

	db, err := NewRedisDB(testRedisConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.Client == nil {
		t.Fatal("expected client")
	}
	if got.Addr != "cache:6380" {
		t.Fatalf("expected addr cache:6380, got %s", got.Addr)
	}
	if got.Password != "pass" {
		t.Fatalf("expected password, got %s", got.Password)
	}
	if got.DB != 2 {
		t.Fatalf("expected db 2, got %d", got.DB)
	}
	if got.DialTimeout != 2*time.Second {
		t.Fatalf("expected DialTimeout 2s, got %v", got.DialTimeout)
	}
	if got.ReadTimeout != time.Second {
		t.Fatalf("expected ReadTimeout 1s, got %v", got.ReadTimeout)
	}
	if got.WriteTimeout != time.Second {
		t.Fatalf("expected WriteTimeout 1s, got %v", got.WriteTimeout)
	}
	if got.PoolSize != 20 {
		t.Fatalf("expected PoolSize 20, got %d", got.PoolSize)
	}
	if got.MinIdleConns != 4 {
		t.Fatalf("expected MinIdleConns 4, got %d", got.MinIdleConns)
	}
}

func TestRedisDB_HealthError(t *testing.T) {
	origPing := redisPing
	t.Cleanup(func() { redisPing = origPing })
	redisPing = func(ctx context.Context, client *redis.Client) error {
		return errors.New("health failed")
	}

	db := &RedisDB{Client: &redis.Client{}}
	if err := db.Health(context.Background()); err == nil {
		t.Fatal("expected health error")
	}
}

func TestRedisDB_HealthSuccess(t *testing.T) {
	origPing := redisPing
	t.Cleanup(func() { redisPing = origPing })
	redisPing = func(ctx context.Context, client *redis.Client) error {
		return nil
	}

	db := &RedisDB{Client: &redis.Client{}}
	if err := db.Health(context.Background()); err != nil {
		t.Fatalf("unexpected health error: %v", err)
	}
}

func TestRedisDB_CloseNil(t *testing.T) {
	db := &RedisDB{}
	if err := db.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestRedisDB_Close_Client(t *testing.T) {
	db := &RedisDB{Client: redis.NewClient(&redis.Options{Addr: "localhost:0"})}
	if err := db.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}
