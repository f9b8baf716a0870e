/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
)

// Redis key layout, matching spec §6's "Queue keys" table.
const (
	mainKey       = "deployments"
	delayedKey    = "deployments:delayed"
	processingKey = "deployments:processing"
	deadlinesKey  = "deployments:processing:deadlines"
)

func registryKey(r Registry) string {
	return "deployments:" + string(r)
}

var _ Service = (*RedisService)(nil)

// RedisService implements Service over a single Redis instance, using a
// BRPOPLPUSH-into-processing-list pattern for reservation, a deadlines ZSET
// for visibility-timeout bookkeeping, and a due-timestamp ZSET for the
// delayed queue — the same shape as the reliable-queue pattern used across
// the go-redis ecosystem.
type RedisService struct {
	client redis.UniversalClient
}

func NewRedisService(client redis.UniversalClient) *RedisService {
	return &RedisService{client: client}
}

func encode(job v1alpha1.SchedulingJob) (string, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding job: %w", err)
	}
	return string(b), nil
}

func decode(raw string) (v1alpha1.SchedulingJob, error) {
	var job v1alpha1.SchedulingJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return job, fmt.Errorf("decoding job: %w", err)
	}
	return job, nil
}

func (q *RedisService) Enqueue(ctx context.Context, job v1alpha1.SchedulingJob) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, mainKey, raw).Err()
}

func (q *RedisService) EnqueueAfter(ctx context.Context, job v1alpha1.SchedulingJob, delay time.Duration) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay)
	return q.client.ZAdd(ctx, delayedKey, redis.Z{Score: float64(due.Unix()), Member: raw}).Err()
}

func (q *RedisService) Reserve(ctx context.Context, waitTimeout, visibilityTimeout time.Duration) (*Reservation, error) {
	raw, err := q.client.BRPopLPush(ctx, mainKey, processingKey, waitTimeout).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(visibilityTimeout)
	if err := q.client.ZAdd(ctx, deadlinesKey, redis.Z{Score: float64(deadline.Unix()), Member: raw}).Err(); err != nil {
		return nil, err
	}
	job, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &Reservation{Job: job, raw: raw}, nil
}

func (q *RedisService) Ack(ctx context.Context, r *Reservation) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, r.raw)
	pipe.ZRem(ctx, deadlinesKey, r.raw)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisService) Nack(ctx context.Context, r *Reservation) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, r.raw)
	pipe.ZRem(ctx, deadlinesKey, r.raw)
	pipe.LPush(ctx, mainKey, r.raw)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisService) PromoteDue(ctx context.Context) (int, error) {
	now := float64(time.Now().Unix())
	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, raw := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, delayedKey, raw)
		pipe.LPush(ctx, mainKey, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisService) ReclaimExpired(ctx context.Context) (int, error) {
	now := float64(time.Now().Unix())
	expired, err := q.client.ZRangeByScore(ctx, deadlinesKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, raw := range expired {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, deadlinesKey, raw)
		pipe.LRem(ctx, processingKey, 1, raw)
		pipe.LPush(ctx, mainKey, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (q *RedisService) MarkRegistry(ctx context.Context, registry Registry, deploymentID int64) error {
	return q.client.SAdd(ctx, registryKey(registry), deploymentID).Err()
}

func (q *RedisService) Contains(ctx context.Context, deploymentID int64) (bool, error) {
	for _, check := range []func() (bool, error){
		func() (bool, error) { return q.listContains(ctx, mainKey, deploymentID) },
		func() (bool, error) { return q.listContains(ctx, processingKey, deploymentID) },
		func() (bool, error) { return q.zsetContains(ctx, delayedKey, deploymentID) },
	} {
		found, err := check()
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (q *RedisService) Depth(ctx context.Context) (map[string]int, error) {
	main, err := q.client.LLen(ctx, mainKey).Result()
	if err != nil {
		return nil, err
	}
	delayed, err := q.client.ZCard(ctx, delayedKey).Result()
	if err != nil {
		return nil, err
	}
	processing, err := q.client.LLen(ctx, processingKey).Result()
	if err != nil {
		return nil, err
	}
	return map[string]int{"main": int(main), "delayed": int(delayed), "processing": int(processing)}, nil
}

func (q *RedisService) listContains(ctx context.Context, key string, deploymentID int64) (bool, error) {
	items, err := q.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, err
	}
	return rawsContainDeployment(items, deploymentID), nil
}

func (q *RedisService) zsetContains(ctx context.Context, key string, deploymentID int64) (bool, error) {
	items, err := q.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, err
	}
	return rawsContainDeployment(items, deploymentID), nil
}

func rawsContainDeployment(raws []string, deploymentID int64) bool {
	for _, raw := range raws {
		job, err := decode(raw)
		if err == nil && job.DeploymentID == deploymentID {
			return true
		}
	}
	return false
}
