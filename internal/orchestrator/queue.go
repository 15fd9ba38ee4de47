package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// JobQueue hands job IDs to workers, one logical list per queue name (see
// queueName: feature_extraction jobs share the preprocessing list). The
// orchestrator treats the underlying transport as at-least-once: a job ID
// may be delivered more than once, which ClaimPending's idempotent
// short-circuit absorbs.
type JobQueue interface {
	Enqueue(ctx context.Context, queueName, jobID string) error

	// Dequeue blocks up to timeout waiting for a job ID. ok is false on a
	// timeout with no error.
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (jobID string, ok bool, err error)
}

// RedisJobQueue implements JobQueue over Redis lists (LPUSH producer side,
// BRPOP consumer side), the same client already wired for the ring buffer.
type RedisJobQueue struct {
	client *redis.Client
}

// NewRedisJobQueue builds a RedisJobQueue over an existing client.
func NewRedisJobQueue(client *redis.Client) *RedisJobQueue {
	return &RedisJobQueue{client: client}
}

func (q *RedisJobQueue) listKey(queueName string) string {
	return "jobqueue:" + queueName
}

// Enqueue pushes jobID onto queueName's list.
func (q *RedisJobQueue) Enqueue(ctx context.Context, queueName, jobID string) error {
	if err := q.client.LPush(ctx, q.listKey(queueName), jobID).Err(); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, "jobqueue enqueue", err)
	}
	return nil
}

// Dequeue blocks on BRPOP up to timeout.
func (q *RedisJobQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (string, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, q.listKey(queueName)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", false, nil
		}
		return "", false, corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, "jobqueue dequeue", err)
	}
	// res is [listKey, value]; BRPop returns the key that fired alongside
	// the popped element.
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}
