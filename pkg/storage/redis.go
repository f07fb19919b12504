package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "escolta:snapshot:"
	seriesKey = "escolta:series"
)

// RedisStore keeps snapshots in Redis so several forecaster instances can
// share them. Snapshots expire after the configured TTL.
//
// Keys:
//
//	escolta:snapshot:{series}  JSON snapshot, with TTL
//	escolta:series             set of series names ever written
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
// A zero ttl selects 30 minutes.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client. A zero ttl selects 30 minutes.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

func snapshotKey(series string) string {
	return keyPrefix + series
}

// Put stores a snapshot with the store TTL and records its series name.
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	s, err := prepare(s)
	if err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(s.Series), data, r.ttl)
		pipe.SAdd(ctx, seriesKey, s.Series)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}
	return nil
}

// GetLatest returns the snapshot for series. A missing or expired key is
// reported as not found without error.
func (r *RedisStore) GetLatest(ctx context.Context, series string) (Snapshot, bool, error) {
	if err := ValidateSeries(series); err != nil {
		return Snapshot{}, false, err
	}

	data, err := r.client.Get(ctx, snapshotKey(series)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snapshot, true, nil
}

// Series lists series whose snapshot has not expired. Expired names are
// pruned from the index.
func (r *RedisStore) Series(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, seriesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}

	live := make([]string, 0, len(names))
	for _, name := range names {
		n, err := r.client.Exists(ctx, snapshotKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check series %s: %w", name, err)
		}
		if n == 0 {
			r.client.SRem(ctx, seriesKey, name)
			continue
		}
		live = append(live, name)
	}
	slices.Sort(live)
	return live, nil
}

// Close closes the Redis client. It is idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
