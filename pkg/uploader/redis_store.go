package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	redisSeqKey     = "upbridge:uploads:seq"
	redisRecordsKey = "upbridge:uploads:records"
)

// RedisStore keeps records in a Redis hash keyed by upload id, so several
// upbridge instances can share one view of the uploads.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// DialRedis connects to addr and verifies the connection with a ping.
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("uploader/redis: ping: %w", err)
	}
	return rdb, nil
}

// NextID returns zero-based ids from an INCR counter.
func (s *RedisStore) NextID(ctx context.Context) (int, error) {
	n, err := s.rdb.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("uploader/redis: next id: %w", err)
	}
	return int(n - 1), nil
}

func (s *RedisStore) Save(ctx context.Context, u *Upload) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("uploader/redis: marshal %d: %w", u.ID, err)
	}
	if err := s.rdb.HSet(ctx, redisRecordsKey, strconv.Itoa(u.ID), data).Err(); err != nil {
		return fmt.Errorf("uploader/redis: save %d: %w", u.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id int) (*Upload, error) {
	raw, err := s.rdb.HGet(ctx, redisRecordsKey, strconv.Itoa(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("uploader/redis: get %d: %w", id, err)
	}
	var u Upload
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("uploader/redis: decode %d: %w", id, err)
	}
	return &u, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Upload, error) {
	all, err := s.rdb.HGetAll(ctx, redisRecordsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("uploader/redis: list: %w", err)
	}
	out := make([]*Upload, 0, len(all))
	for key, raw := range all {
		var u Upload
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("uploader/redis: decode %s: %w", key, err)
		}
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id int) error {
	if err := s.rdb.HDel(ctx, redisRecordsKey, strconv.Itoa(id)).Err(); err != nil {
		return fmt.Errorf("uploader/redis: delete %d: %w", id, err)
	}
	return nil
}
