package repository

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/asafgershon/esim-go-sub012/internal/pkg/cache"
)

// queueRepository implements the QueueRepository interface on raw Redis.
// It exists for admin inspection and queue-history cleanup; the queue
// itself lives in internal/pkg/syncqueue.
type queueRepository struct {
	client *redis.Client
}

// NewQueueRepository creates a queue repository on the shared cache client.
func NewQueueRepository() QueueRepository {
	return &queueRepository{client: cache.GetClient()}
}

// NewQueueRepositoryWithClient creates a queue repository on an injected
// client (tests, multi-instance setups).
func NewQueueRepositoryWithClient(client *redis.Client) QueueRepository {
	return &queueRepository{client: client}
}

// GetListLength returns the length of a Redis list
func (r *queueRepository) GetListLength(key string) (int64, error) {
	ctx := context.Background()

	length, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	return length, nil
}

// FindKeysByPatterns retrieves keys for the provided Redis match patterns using SCAN.
func (r *queueRepository) FindKeysByPatterns(patterns []string) ([]string, error) {
	ctx := context.Background()

	uniqueKeys := make(map[string]struct{})

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		var cursor uint64
		for {
			keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				return nil, err
			}

			for _, key := range keys {
				uniqueKeys[key] = struct{}{}
			}

			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
	}

	keys := make([]string, 0, len(uniqueKeys))
	for key := range uniqueKeys {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}

// DeleteKeys deletes keys in batches and returns the total number of deleted keys.
func (r *queueRepository) DeleteKeys(keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	ctx := context.Background()

	const batchSize = 500
	var totalDeleted int64

	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		deleted, err := r.client.Del(ctx, keys[i:end]...).Result()
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted
	}

	return totalDeleted, nil
}
