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

// Package sweeper is the recovery sweep of spec §4.7: a periodic scan that
// re-enqueues any PENDING or PREEMPTED deployment absent from the main
// queue, the delayed queue and the in-flight reservations (Queue.Contains);
// the terminal registries are not consulted. This covers the commit-then-crash gap between a Store write
// and its corresponding Enqueue. Scheduled with robfig/cron/v3, the same
// library the teacher parses NodePool disruption schedules with
// (pkg/apis/v1beta1/nodepool.go), used here for its primary purpose of
// driving a recurring job.
package sweeper

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/metrics"
	"github.com/deploysched/scheduler/pkg/queue"
	"github.com/deploysched/scheduler/pkg/store"
	"github.com/deploysched/scheduler/pkg/utils/pretty"
)

// DefaultSchedule runs the sweep once a minute, frequent enough to bound
// the commit-then-crash gap without competing with worker traffic.
const DefaultSchedule = "@every 1m"

type Sweeper struct {
	Store store.Store
	Queue queue.Service
	Log   *zap.SugaredLogger
}

// Start registers Sweep on schedule and begins running it in the
// background; callers stop the returned *cron.Cron in their shutdown path.
func (s *Sweeper) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := s.Sweep(ctx); err != nil && s.Log != nil {
			s.Log.Errorw("recovery sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling recovery sweep %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

// Sweep runs one pass of the recovery scan (spec §4.7, last bullet).
func (s *Sweeper) Sweep(ctx context.Context) error {
	deployments, err := s.Store.ListPendingOrPreempted(ctx)
	if err != nil {
		return fmt.Errorf("listing pending/preempted deployments: %w", err)
	}
	var requeuedIDs []int64
	var errs error
	for _, d := range deployments {
		present, err := s.Queue.Contains(ctx, d.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("checking queue membership for deployment %d: %w", d.ID, err))
			continue
		}
		if present {
			continue
		}
		if err := s.Queue.Enqueue(ctx, v1alpha1.SchedulingJob{
			DeploymentID: d.ID,
			Attempt:      d.AttemptCount,
			EnqueuedAt:   store.Now(),
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("re-enqueuing deployment %d: %w", d.ID, err))
			continue
		}
		requeuedIDs = append(requeuedIDs, d.ID)
	}
	if len(requeuedIDs) > 0 && s.Log != nil {
		s.Log.Infow("recovery sweep re-enqueued orphaned deployments",
			"count", len(requeuedIDs), "deployment_ids", pretty.Slice(requeuedIDs, 10))
	}

	if depth, err := s.Queue.Depth(ctx); err == nil {
		for region, n := range depth {
			metrics.QueueDepth.WithLabelValues(region).Set(float64(n))
		}
	}
	return errs
}
