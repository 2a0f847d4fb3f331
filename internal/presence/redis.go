package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "online:"

// RedisStore 把在线表放进 Redis，进程重启后其他实例仍能读到。
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(userID uint) string { return fmt.Sprintf("%s%d", keyPrefix, userID) }

func (s *RedisStore) Set(ctx context.Context, userID uint, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(userID), b, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, userID uint) (*Entry, error) {
	b, err := s.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(b, &entry); err != nil {
		// 损坏条目自愈：删掉并当作不存在。
		log.Warn().Err(err).Uint("user_id", userID).Msg("presence: purge corrupt entry")
		_ = s.client.Del(ctx, key(userID)).Err()
		return nil, nil
	}
	return &entry, nil
}

func (s *RedisStore) Remove(ctx context.Context, userID uint) error {
	return s.client.Del(ctx, key(userID)).Err()
}

// ListAll 用 SCAN 遍历 online:* 前缀，跳过并清除无法解析的条目。
func (s *RedisStore) ListAll(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		b, err := s.client.Get(ctx, k).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var entry Entry
		if err := json.Unmarshal(b, &entry); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("presence: purge corrupt entry")
			_ = s.client.Del(ctx, k).Err()
			continue
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *RedisStore) ListByRole(ctx context.Context, role string) ([]Entry, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.User.UserType == role {
			out = append(out, e)
		}
	}
	return out, nil
}
