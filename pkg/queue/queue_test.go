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

package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/queue"
)

func TestEnqueueReserveAckFIFO(t *testing.T) {
	ctx := context.Background()
	q := queue.NewFakeService()

	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: 1}))
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: 2}))

	r1, err := q.Reserve(ctx, 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r1.Job.DeploymentID)

	r2, err := q.Reserve(ctx, 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r2.Job.DeploymentID)

	require.NoError(t, q.Ack(ctx, r1))
	require.NoError(t, q.Ack(ctx, r2))

	_, err = q.Reserve(ctx, 0, time.Minute)
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestNackReturnsJobImmediately(t *testing.T) {
	ctx := context.Background()
	q := queue.NewFakeService()
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: 42}))

	r, err := q.Reserve(ctx, 0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, r))

	again, err := q.Reserve(ctx, 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(42), again.Job.DeploymentID)
}

func TestVisibilityTimeoutReclaimsUnackedJob(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	q := queue.NewFakeService().WithClock(func() time.Time { return now })
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: 9}))

	_, err := q.Reserve(ctx, 0, 30*time.Second)
	require.NoError(t, err)

	reclaimed, err := q.ReclaimExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)

	now = now.Add(31 * time.Second)
	reclaimed, err = q.ReclaimExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	redelivered, err := q.Reserve(ctx, 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(9), redelivered.Job.DeploymentID)
}

func TestDelayedQueuePromotesOnlyWhenDue(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	q := queue.NewFakeService().WithClock(func() time.Time { return now })

	require.NoError(t, q.EnqueueAfter(ctx, v1alpha1.SchedulingJob{DeploymentID: 7}, 5*time.Second))

	promoted, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, promoted)

	now = now.Add(6 * time.Second)
	promoted, err = q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	r, err := q.Reserve(ctx, 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.Job.DeploymentID)
}

func TestContainsAcrossQueues(t *testing.T) {
	ctx := context.Background()
	q := queue.NewFakeService()
	require.NoError(t, q.EnqueueAfter(ctx, v1alpha1.SchedulingJob{DeploymentID: 3}, time.Hour))

	found, err := q.Contains(ctx, 3)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = q.Contains(ctx, 999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarkRegistry(t *testing.T) {
	ctx := context.Background()
	q := queue.NewFakeService()
	require.NoError(t, q.MarkRegistry(ctx, queue.RegistryFinished, 5))
	assert.True(t, q.InRegistry(queue.RegistryFinished, 5))
	assert.False(t, q.InRegistry(queue.RegistryFailed, 5))
}
