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

package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/controllers/worker"
	"github.com/deploysched/scheduler/pkg/lock"
	"github.com/deploysched/scheduler/pkg/queue"
	"github.com/deploysched/scheduler/pkg/retry"
	"github.com/deploysched/scheduler/pkg/store"
	"github.com/deploysched/scheduler/pkg/test"
)

func newHarness(t *testing.T) (*worker.Worker, *store.FakeStore, *queue.FakeService, *test.EventRecorder) {
	t.Helper()
	s := store.NewFakeStore()
	q := queue.NewFakeService()
	l := lock.NewFakeService()
	rec := test.NewEventRecorder()
	w := &worker.Worker{
		Store:             s,
		Queue:             q,
		Lock:              l,
		Recorder:          rec,
		Backoff:           retry.DefaultBackoff,
		MaxAttempts:       20,
		LockTTL:           lock.DefaultTTL,
		WaitTimeout:       10 * time.Millisecond,
		VisibilityTimeout: 30 * time.Second,
	}
	return w, s, q, rec
}

func TestWorkerAdmitsWhenCapacityFits(t *testing.T) {
	ctx := context.Background()
	w, s, q, rec := newHarness(t)

	c := s.SeedCluster(test.Cluster(test.ClusterOptions{Capacity: v1alpha1.ResourceVector{CPU: 8, RAM: 8, GPU: 0}}))
	d := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, Request: v1alpha1.ResourceVector{CPU: 4, RAM: 4}, Status: v1alpha1.StatusPending}))
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: d.ID}))

	res, err := q.Reserve(ctx, time.Second, time.Minute)
	require.NoError(t, err)

	err = w.ProcessOne(ctx, res)
	require.NoError(t, err)

	got, err := s.Deployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusRunning, got.Status)
	assert.NotEmpty(t, got.IdempotencyKey)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, 1, rec.Calls("Admitted"))
}

func TestWorkerPreemptsAndRequeuesVictim(t *testing.T) {
	ctx := context.Background()
	w, s, q, rec := newHarness(t)

	c := s.SeedCluster(test.Cluster(test.ClusterOptions{Capacity: v1alpha1.ResourceVector{CPU: 8, RAM: 16}}))
	victim := s.SeedDeployment(test.Deployment(test.DeploymentOptions{
		ClusterID: c.ID, Priority: 1, Request: v1alpha1.ResourceVector{CPU: 6, RAM: 8}, Status: v1alpha1.StatusRunning,
	}))
	d := s.SeedDeployment(test.Deployment(test.DeploymentOptions{
		ClusterID: c.ID, Priority: 5, Request: v1alpha1.ResourceVector{CPU: 4, RAM: 8}, Status: v1alpha1.StatusPending,
	}))
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: d.ID}))

	res, err := q.Reserve(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NoError(t, w.ProcessOne(ctx, res))

	gotVictim, err := s.Deployment(ctx, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusPreempted, gotVictim.Status)

	gotD, err := s.Deployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusRunning, gotD.Status)

	contains, err := q.Contains(ctx, victim.ID)
	require.NoError(t, err)
	assert.True(t, contains, "victim should be re-enqueued on the delayed queue")
	assert.Equal(t, 1, rec.Calls("Preempted"))
}

func TestWorkerDefersWhenNothingCanBePreempted(t *testing.T) {
	ctx := context.Background()
	w, s, q, rec := newHarness(t)

	c := s.SeedCluster(test.Cluster(test.ClusterOptions{Capacity: v1alpha1.ResourceVector{CPU: 4, RAM: 4}}))
	running := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, Priority: 3, Request: v1alpha1.ResourceVector{CPU: 4, RAM: 4}, Status: v1alpha1.StatusRunning}))
	_ = running
	d := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, Priority: 3, Request: v1alpha1.ResourceVector{CPU: 2, RAM: 2}, Status: v1alpha1.StatusPending}))
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: d.ID}))

	res, err := q.Reserve(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NoError(t, w.ProcessOne(ctx, res))

	got, err := s.Deployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount)

	contains, err := q.Contains(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, contains, "deferred deployment should be re-enqueued on the delayed queue")
	assert.Equal(t, 1, rec.Calls("Deferred"))
}

func TestWorkerFailsPoisonPillAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	w, s, q, rec := newHarness(t)
	w.MaxAttempts = 1

	c := s.SeedCluster(test.Cluster(test.ClusterOptions{Capacity: v1alpha1.ResourceVector{CPU: 4, RAM: 4}}))
	running := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, Priority: 3, Request: v1alpha1.ResourceVector{CPU: 4, RAM: 4}, Status: v1alpha1.StatusRunning}))
	_ = running
	d := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, Priority: 3, Request: v1alpha1.ResourceVector{CPU: 2, RAM: 2}, Status: v1alpha1.StatusPending}))
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: d.ID}))

	res, err := q.Reserve(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NoError(t, w.ProcessOne(ctx, res))

	got, err := s.Deployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusFailed, got.Status)
	assert.Equal(t, "unschedulable", got.FailureReason)
	assert.Equal(t, 1, rec.Calls("Unschedulable"))
}

func TestWorkerSkipsAlreadyRunningDeployment(t *testing.T) {
	ctx := context.Background()
	w, s, q, _ := newHarness(t)

	c := s.SeedCluster(test.Cluster(test.ClusterOptions{}))
	d := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, Status: v1alpha1.StatusRunning}))
	require.NoError(t, q.Enqueue(ctx, v1alpha1.SchedulingJob{DeploymentID: d.ID}))

	res, err := q.Reserve(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NoError(t, w.ProcessOne(ctx, res))

	contains, err := q.Contains(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, contains, "a duplicate delivery for a RUNNING deployment is acked, not requeued")
}
