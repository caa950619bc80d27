package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"BucketFM/logger"
	"BucketFM/model"

	"github.com/go-redis/redis/v8"
)

const tagKeyPrefix = "tags:"

// TagStore 基于 Redis 的二级标签缓存，多个进程共享同一份标签数据
type TagStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTagStore 创建标签缓存，ttl <= 0 表示不过期
func NewTagStore(client *redis.Client, ttl time.Duration) *TagStore {
	return &TagStore{client: client, ttl: ttl}
}

// TagKey 根据缓存键生成 Redis 键
func TagKey(key string) string {
	return tagKeyPrefix + key
}

// GetTags 读取标签，未命中返回 nil, nil
func (s *TagStore) GetTags(ctx context.Context, key string) (*model.TagFields, error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}

	data, err := s.client.Get(ctx, TagKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}

	var fields model.TagFields
	if err := json.Unmarshal(data, &fields); err != nil {
		// 损坏的数据直接丢弃，下次重新读取
		logger.Warn("标签缓存数据损坏，已删除", logger.String("key", key), logger.ErrorField(err))
		s.client.Del(ctx, TagKey(key))
		return nil, nil
	}
	return &fields, nil
}

// SetTags 写入标签
func (s *TagStore) SetTags(ctx context.Context, key string, fields model.TagFields) error {
	if s.client == nil {
		return ErrNotInitialized
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, TagKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("set tags: %w", err)
	}
	return nil
}

// Clear 删除所有标签缓存，返回删除的键数量
func (s *TagStore) Clear(ctx context.Context) (int, error) {
	if s.client == nil {
		return 0, ErrNotInitialized
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, tagKeyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan tag keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete tag keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	logger.Info("标签缓存已清空", logger.Int("deletedCount", deleted))
	return deleted, nil
}
