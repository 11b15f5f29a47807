package intake

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisQueueKey = "dupeguard:events:orders_create"
	redisBlockTimeout    = time.Second
)

// cappedPushScript pushes ARGV[1] unless the list already holds ARGV[2] items.
var cappedPushScript = redis.NewScript(`
if redis.call("LLEN", KEYS[1]) >= tonumber(ARGV[2]) then
    return 0
end
redis.call("LPUSH", KEYS[1], ARGV[1])
return 1
`)

// RedisQueue is a FIFO list: LPUSH on enqueue, BRPOP on dequeue.
type RedisQueue struct {
	client       redis.UniversalClient
	key          string
	capacity     int
	blockTimeout time.Duration
	pollInterval time.Duration
}

// NewRedisQueue accepts redis:// or rediss:// URLs. An optional "key" query
// parameter names the list.
func NewRedisQueue(dsn string, capacity int) (*RedisQueue, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	query := parsed.Query()
	key := strings.TrimSpace(query.Get("key"))
	if key == "" {
		key = defaultRedisQueueKey
	}
	query.Del("key")
	parsed.RawQuery = query.Encode()

	opts, err := redis.ParseURL(parsed.String())
	if err != nil {
		return nil, err
	}
	return NewRedisQueueWithClient(redis.NewClient(opts), key, capacity), nil
}

func NewRedisQueueWithClient(client redis.UniversalClient, key string, capacity int) *RedisQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if strings.TrimSpace(key) == "" {
		key = defaultRedisQueueKey
	}
	return &RedisQueue{
		client:       client,
		key:          key,
		capacity:     capacity,
		blockTimeout: redisBlockTimeout,
		pollInterval: 50 * time.Millisecond,
	}
}

func (q *RedisQueue) Key() string {
	return q.key
}

func (q *RedisQueue) TryEnqueue(event Event) bool {
	if q == nil || !event.valid() {
		return false
	}
	payload, err := encodeEvent(event)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()
	pushed, err := cappedPushScript.Run(ctx, q.client, []string{q.key}, payload, q.capacity).Int()
	if err != nil {
		slog.Warn("redis event queue push failed", "key", q.key, "error", err)
		return false
	}
	return pushed == 1
}

func (q *RedisQueue) Enqueue(ctx context.Context, event Event) bool {
	for {
		if q.TryEnqueue(event) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Event, bool) {
	for {
		if ctx.Err() != nil {
			return Event{}, false
		}
		result, err := q.client.BRPop(ctx, q.blockTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, false
			}
			slog.Warn("redis event queue pop failed", "key", q.key, "error", err)
			select {
			case <-ctx.Done():
				return Event{}, false
			case <-time.After(q.pollInterval):
			}
			continue
		}
		if len(result) != 2 {
			continue
		}
		event, err := decodeEvent(result[1])
		if err != nil {
			slog.Warn("dropping undecodable queued event", "key", q.key, "error", err)
			continue
		}
		return event, true
	}
}

func (q *RedisQueue) Depth() int {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()
	depth, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0
	}
	return int(depth)
}

func (q *RedisQueue) Capacity() int {
	return q.capacity
}

func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
