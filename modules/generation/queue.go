package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Pop when the timeout passes without a job.
var ErrQueueEmpty = errors.New("queue empty")

const cancelFlagTTL = time.Hour

// RedisQueue - jobs:video 리스트 (LPUSH / BRPOP)
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: VideoQueue}
}

// Push enqueues jobID and returns the queue length.
func (q *RedisQueue) Push(ctx context.Context, jobID string) (int64, error) {
	if err := q.rdb.LPush(ctx, q.key, jobID).Err(); err != nil {
		return 0, fmt.Errorf("failed to push job %s: %w", jobID, err)
	}
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Pop blocks up to timeout for the next job id.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrQueueEmpty
	}
	if err != nil {
		return "", err
	}
	// result[0] 은 key, result[1] 이 job_id
	return result[1], nil
}

// Len - 대기 중인 job 수
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func cancelKey(jobID string) string {
	return "job:cancelled:" + jobID
}

// SetCancelled - 취소 플래그 설정 (워커가 단계 사이에 확인)
func (q *RedisQueue) SetCancelled(ctx context.Context, jobID string) error {
	if err := q.rdb.Set(ctx, cancelKey(jobID), "1", cancelFlagTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag for %s: %w", jobID, err)
	}
	return nil
}

// IsCancelled reports whether a cancel flag is set. Redis errors count as not cancelled.
func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) bool {
	n, err := q.rdb.Exists(ctx, cancelKey(jobID)).Result()
	if err != nil {
		log.Printf("⚠️  [Generation] Failed to check cancel flag for %s: %v", jobID, err)
		return false
	}
	return n > 0
}

// EventBus publishes and subscribes to generation events over Redis Pub/Sub.
type EventBus struct {
	rdb     *redis.Client
	channel string
}

func NewEventBus(rdb *redis.Client) *EventBus {
	return &EventBus{rdb: rdb, channel: EventChannel}
}

func (b *EventBus) Publish(ctx context.Context, event GenerationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

// Subscription is an active event subscription. Close it when done.
type Subscription struct {
	sub    *redis.PubSub
	Ch     <-chan GenerationEvent
	cancel context.CancelFunc
}

func (s *Subscription) Close() {
	s.cancel()
	_ = s.sub.Close()
}

// Subscribe waits for the subscription to be confirmed, then delivers events
// until ctx is done or the subscription is closed.
func (b *EventBus) Subscribe(ctx context.Context) (*Subscription, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan GenerationEvent, 16)

	go func() {
		defer close(ch)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var event GenerationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("⚠️  [Generation] Bad event payload: %v", err)
					continue
				}
				select {
				case ch <- event:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{sub: sub, Ch: ch, cancel: cancel}, nil
}
