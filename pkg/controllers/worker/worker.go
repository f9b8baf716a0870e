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

// Package worker is the scheduler worker loop (spec §4.6): reserve one job,
// evaluate it against the preemption planner inside a single cluster-locked
// Store transaction, then orchestrate the queue/recorder side effects the
// decision implies. Grounded on the teacher's disruption orchestration
// queue (pkg/controllers/disruption/orchestration/queue.go) for the
// evaluate-then-requeue-on-error shape.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/errs"
	"github.com/deploysched/scheduler/pkg/events"
	"github.com/deploysched/scheduler/pkg/lock"
	"github.com/deploysched/scheduler/pkg/metrics"
	"github.com/deploysched/scheduler/pkg/queue"
	"github.com/deploysched/scheduler/pkg/retry"
	"github.com/deploysched/scheduler/pkg/scheduling"
	"github.com/deploysched/scheduler/pkg/store"
)

// Worker runs the reserve/evaluate/orchestrate cycle described in spec §4.6.
// It holds no per-deployment state between cycles; every decision is
// re-derived from the Store inside the locked transaction.
type Worker struct {
	Store    store.Store
	Queue    queue.Service
	Lock     lock.Service
	Recorder events.Recorder
	Backoff  retry.Backoff

	// MaxAttempts is the poison-pill threshold K (spec §4.7 default 20).
	MaxAttempts int
	// LockTTL bounds how long a worker may hold a cluster's lease.
	LockTTL time.Duration
	// WaitTimeout bounds how long Reserve blocks for a job before Loop
	// re-checks ctx.
	WaitTimeout time.Duration
	// VisibilityTimeout must exceed LockTTL plus expected commit latency
	// (spec §4.7) so a slow-but-live worker is never raced by a reclaim.
	VisibilityTimeout time.Duration
}

// outcome captures what a single cycle decided, for use after the Store
// transaction has committed (events and queue side effects must never
// happen before the commit they describe).
type outcome struct {
	clusterDeleted bool
	admitted       bool
	preempted      []v1alpha1.Deployment
	deferred       bool
	deferAttempt   int
	failedPoison   bool
	deployment     v1alpha1.Deployment
}

func (w *Worker) Loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		res, err := w.Queue.Reserve(ctx, w.WaitTimeout, w.VisibilityTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			return err
		}
		if err := w.ProcessOne(ctx, res); err != nil {
			_ = w.Queue.Nack(ctx, res)
		}
	}
}

func (w *Worker) ProcessOne(ctx context.Context, res *queue.Reservation) error {
	if err := w.Queue.MarkRegistry(ctx, queue.RegistryStarted, res.Job.DeploymentID); err != nil {
		return err
	}

	d, err := w.Store.Deployment(ctx, res.Job.DeploymentID)
	if errs.Is(err, errs.KindNotFound) {
		return w.Queue.Ack(ctx, res)
	}
	if err != nil {
		return err
	}

	// Step: dedup precheck. A deployment already RUNNING or terminal was
	// handled by a previous delivery of this at-least-once job; ack and
	// move on (spec §4.6, §8 idempotence property).
	if d.Status != v1alpha1.StatusPending && d.Status != v1alpha1.StatusPreempted {
		return w.Queue.Ack(ctx, res)
	}

	token, err := w.Lock.Acquire(ctx, d.ClusterID, w.LockTTL)
	if errs.Is(err, errs.KindBusy) {
		return w.Queue.Nack(ctx, res)
	}
	if err != nil {
		return err
	}
	acquiredAt := time.Now()
	defer func() {
		if time.Since(acquiredAt) > w.LockTTL {
			return
		}
		_ = w.Lock.Release(ctx, d.ClusterID, token)
	}()

	// A lease is treated as lost once wall-clock elapsed since acquire
	// exceeds LockTTL (spec §4.6, §4.7): the worker must not commit or
	// release, since another worker may already hold the lock.
	if time.Since(acquiredAt) > w.LockTTL {
		return w.Queue.Nack(ctx, res)
	}

	var out outcome
	err = w.Store.WithClusterTransaction(ctx, d.ClusterID, func(tx store.Tx) error {
		if err := w.evaluate(ctx, tx, d.ID, &out); err != nil {
			return err
		}
		if time.Since(acquiredAt) > w.LockTTL {
			return errs.Busy("lease on cluster %d expired before commit", d.ClusterID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.publish(ctx, out)

	if err := w.Queue.Ack(ctx, res); err != nil {
		return err
	}
	return w.enqueueFollowups(ctx, out)
}

// evaluate runs entirely inside one cluster-locked Store transaction
// (spec §4.6 steps 1-5).
func (w *Worker) evaluate(ctx context.Context, tx store.Tx, deploymentID int64, out *outcome) error {
	d, err := tx.Deployment(ctx, deploymentID)
	if err != nil {
		return err
	}

	cluster, err := tx.Cluster(ctx, d.ClusterID)
	if err != nil {
		return err
	}
	if cluster.Deleted {
		out.clusterDeleted = true
		out.deployment = d
		return tx.Transition(ctx, d.ID, v1alpha1.StatusFailed, store.TransitionOptions{FailureReason: "cluster-deleted"})
	}

	// A PREEMPTED deployment re-enters the admission decision as PENDING
	// (lifecycle event "requeue") before the planner ever sees it again.
	if d.Status == v1alpha1.StatusPreempted {
		if err := tx.Transition(ctx, d.ID, v1alpha1.StatusPending, store.TransitionOptions{}); err != nil {
			return err
		}
		d.Status = v1alpha1.StatusPending
	}

	running, err := tx.RunningOnCluster(ctx, d.ClusterID)
	if err != nil {
		return err
	}

	decision := scheduling.Plan(d, running, cluster.Capacity)
	out.deployment = d

	switch decision.Action {
	case scheduling.Admit:
		out.admitted = true
		return tx.Transition(ctx, d.ID, v1alpha1.StatusRunning, store.TransitionOptions{
			IdempotencyKey:   uuid.NewString(),
			IncrementAttempt: true,
		})

	case scheduling.Preempt:
		for _, victim := range decision.Set {
			if err := tx.Transition(ctx, victim.ID, v1alpha1.StatusPreempted, store.TransitionOptions{IdempotencyKey: uuid.NewString()}); err != nil {
				return err
			}
		}
		if err := tx.Transition(ctx, d.ID, v1alpha1.StatusRunning, store.TransitionOptions{IdempotencyKey: uuid.NewString()}); err != nil {
			return err
		}
		out.admitted = true
		out.preempted = decision.Set
		return nil

	case scheduling.Defer:
		next := d.AttemptCount + 1
		if next >= w.MaxAttempts {
			out.failedPoison = true
			return tx.Transition(ctx, d.ID, v1alpha1.StatusFailed, store.TransitionOptions{
				IncrementAttempt: true,
				FailureReason:    "unschedulable",
			})
		}
		count, err := tx.IncrementAttempt(ctx, d.ID)
		if err != nil {
			return err
		}
		out.deferred = true
		out.deferAttempt = count
		return nil

	default:
		return errs.Fatal(nil, "planner returned unknown action %q", decision.Action)
	}
}

func (w *Worker) publish(_ context.Context, out outcome) {
	switch {
	case out.clusterDeleted:
		w.Recorder.Publish(events.FailedToSchedule(out.deployment, errs.New(errs.KindUnschedulable, "cluster deleted")))
		metrics.DecisionsTotal.WithLabelValues(string(scheduling.Defer)).Inc()
		metrics.UnschedulableTotal.Inc()
	case out.failedPoison:
		w.Recorder.Publish(events.Unschedulable(out.deployment))
		metrics.DecisionsTotal.WithLabelValues(string(scheduling.Defer)).Inc()
		metrics.UnschedulableTotal.Inc()
	case out.admitted && len(out.preempted) > 0:
		for _, victim := range out.preempted {
			w.Recorder.Publish(events.Preempted(victim, out.deployment))
		}
		w.Recorder.Publish(events.Admitted(out.deployment))
		metrics.DecisionsTotal.WithLabelValues(string(scheduling.Preempt)).Inc()
		metrics.PreemptionsTotal.WithLabelValues().Add(float64(len(out.preempted)))
	case out.admitted:
		w.Recorder.Publish(events.Admitted(out.deployment))
		metrics.DecisionsTotal.WithLabelValues(string(scheduling.Admit)).Inc()
	case out.deferred:
		w.Recorder.Publish(events.Deferred(out.deployment))
		metrics.DecisionsTotal.WithLabelValues(string(scheduling.Defer)).Inc()
	}
}

func (w *Worker) enqueueFollowups(ctx context.Context, out outcome) error {
	switch {
	case out.clusterDeleted, out.failedPoison:
		return w.Queue.MarkRegistry(ctx, queue.RegistryFailed, out.deployment.ID)

	case out.admitted:
		for _, victim := range out.preempted {
			if err := w.Queue.EnqueueAfter(ctx, v1alpha1.SchedulingJob{
				DeploymentID: victim.ID,
				Attempt:      victim.AttemptCount,
				EnqueuedAt:   store.Now(),
			}, retry.PreemptedRequeueDelay); err != nil {
				return err
			}
		}
		return w.Queue.MarkRegistry(ctx, queue.RegistryFinished, out.deployment.ID)

	case out.deferred:
		backoff := w.Backoff
		if backoff == (retry.Backoff{}) {
			backoff = retry.DefaultBackoff
		}
		return w.Queue.EnqueueAfter(ctx, v1alpha1.SchedulingJob{
			DeploymentID: out.deployment.ID,
			Attempt:      out.deferAttempt,
			EnqueuedAt:   store.Now(),
		}, backoff.Delay(out.deferAttempt))
	}
	return nil
}
