package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "swamptimers:audit"

// redisAudit stores entries as JSON in a list, newest at the head, trimmed
// to capacity on every append.
type redisAudit struct {
	client   *redis.Client
	key      string
	capacity int
}

func openRedisAudit(rawURL, key string, capacity int) (*redisAudit, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, errors.New("audit.redis_url is required for the redis driver")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newRedisAudit(client, key, capacity), nil
}

func newRedisAudit(client *redis.Client, key string, capacity int) *redisAudit {
	if strings.TrimSpace(key) == "" {
		key = defaultRedisKey
	}
	return &redisAudit{client: client, key: key, capacity: capacity}
}

func (a *redisAudit) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(stamp(e))
	if err != nil {
		return err
	}
	pipe := a.client.TxPipeline()
	pipe.LPush(ctx, a.key, data)
	pipe.LTrim(ctx, a.key, 0, int64(a.capacity-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (a *redisAudit) Recent(ctx context.Context, n int) ([]Entry, error) {
	stop := int64(n - 1)
	if n <= 0 {
		stop = -1
	}
	raw, err := a.client.LRange(ctx, a.key, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (a *redisAudit) Clear(ctx context.Context) error {
	return a.client.Del(ctx, a.key).Err()
}

func (a *redisAudit) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
