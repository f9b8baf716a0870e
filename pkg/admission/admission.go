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

// Package admission is the contract surface of spec §4.8: plain functions
// taking an explicit Actor and Store handle, no ambient session (Design
// Notes §9). The HTTP layer in internal/httpapi is a trivial adapter over
// this package; no business logic lives there.
package admission

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/errs"
	"github.com/deploysched/scheduler/pkg/metrics"
	"github.com/deploysched/scheduler/pkg/queue"
	"github.com/deploysched/scheduler/pkg/store"
)

// ClusterState is the response shape for ListClusterState.
type ClusterState struct {
	Cluster v1alpha1.Cluster
	Free    v1alpha1.ResourceVector
	Running []v1alpha1.Deployment
	Pending []v1alpha1.Deployment
}

// Admission wires the Store and Queue the contract functions depend on, plus
// a per-organization rate limiter bounding admission burst (expansion §4.10).
type Admission struct {
	Store store.Store
	Queue queue.Service

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	// Limit and Burst configure the per-organization token bucket; zero
	// values fall back to DefaultLimit/DefaultBurst.
	Limit rate.Limit
	Burst int
}

const (
	DefaultLimit = rate.Limit(5) // admissions/sec per organization
	DefaultBurst = 20
)

func (a *Admission) limiterFor(orgID int64) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limiters == nil {
		a.limiters = map[int64]*rate.Limiter{}
	}
	l, ok := a.limiters[orgID]
	if !ok {
		limit, burst := a.Limit, a.Burst
		if limit <= 0 {
			limit = DefaultLimit
		}
		if burst <= 0 {
			burst = DefaultBurst
		}
		l = rate.NewLimiter(limit, burst)
		a.limiters[orgID] = l
	}
	return l
}

// SubmitDeploymentRequest is the validated shape of a submission (spec §4.8).
type SubmitDeploymentRequest struct {
	ClusterID int64
	Name      string
	Request   v1alpha1.ResourceVector
	Priority  int
}

// SubmitDeployment validates the request fits the cluster's total capacity
// statically, creates it in PENDING, and enqueues it.
func (a *Admission) SubmitDeployment(ctx context.Context, actor v1alpha1.Actor, req SubmitDeploymentRequest) (v1alpha1.Deployment, error) {
	if !a.limiterFor(actor.OrgID).Allow() {
		metrics.AdmissionRejectionsTotal.WithLabelValues("rate_limited").Inc()
		return v1alpha1.Deployment{}, errs.New(errs.KindBusy, "admission rate limit exceeded for organization")
	}

	cluster, err := a.Store.Cluster(ctx, req.ClusterID)
	if err != nil {
		return v1alpha1.Deployment{}, err
	}
	if cluster.OrgID != actor.OrgID {
		metrics.AdmissionRejectionsTotal.WithLabelValues("authz").Inc()
		return v1alpha1.Deployment{}, errs.Authz("cluster %d does not belong to actor's organization", req.ClusterID)
	}
	if cluster.Deleted {
		metrics.AdmissionRejectionsTotal.WithLabelValues("validation").Inc()
		return v1alpha1.Deployment{}, errs.Validation("cluster %d is deleted", req.ClusterID)
	}
	if req.Request.Negative() {
		metrics.AdmissionRejectionsTotal.WithLabelValues("validation").Inc()
		return v1alpha1.Deployment{}, errs.Validation("resource quantities must be non-negative")
	}
	if req.Priority < v1alpha1.MinPriority || req.Priority > v1alpha1.MaxPriority {
		metrics.AdmissionRejectionsTotal.WithLabelValues("validation").Inc()
		return v1alpha1.Deployment{}, errs.Validation("priority %d out of range [%d,%d]", req.Priority, v1alpha1.MinPriority, v1alpha1.MaxPriority)
	}
	if !req.Request.Fits(cluster.Capacity) {
		metrics.AdmissionRejectionsTotal.WithLabelValues("validation").Inc()
		return v1alpha1.Deployment{}, errs.Validation("request exceeds cluster %d total capacity", req.ClusterID)
	}

	d, err := a.Store.CreateDeployment(ctx, v1alpha1.Deployment{
		ClusterID: req.ClusterID,
		OwnerID:   actor.ID,
		OrgID:     actor.OrgID,
		Name:      req.Name,
		Request:   req.Request,
		Priority:  req.Priority,
		Status:    v1alpha1.StatusPending,
	})
	if err != nil {
		return v1alpha1.Deployment{}, err
	}

	if err := a.Queue.Enqueue(ctx, v1alpha1.SchedulingJob{
		DeploymentID: d.ID,
		Attempt:      0,
		EnqueuedAt:   store.Now(),
	}); err != nil {
		return v1alpha1.Deployment{}, err
	}
	return d, nil
}

// CancelDeployment transitions any non-terminal deployment to DELETED. The
// worker's status precheck (spec §4.6 step 1) keeps future queue processing
// a no-op without this function touching the queue directly.
func (a *Admission) CancelDeployment(ctx context.Context, actor v1alpha1.Actor, deploymentID int64) error {
	d, err := a.Store.Deployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if err := authorize(actor, d); err != nil {
		return err
	}
	return a.Store.TransitionSingle(ctx, deploymentID, v1alpha1.StatusDeleted, store.TransitionOptions{})
}

// ListClusterState returns capacity, the free vector, and the RUNNING and
// PENDING deployments on clusterID (spec §4.8).
func (a *Admission) ListClusterState(ctx context.Context, actor v1alpha1.Actor, clusterID int64) (ClusterState, error) {
	cluster, err := a.Store.Cluster(ctx, clusterID)
	if err != nil {
		return ClusterState{}, err
	}
	if cluster.OrgID != actor.OrgID {
		return ClusterState{}, errs.Authz("cluster %d does not belong to actor's organization", clusterID)
	}

	running, err := a.Store.ListDeploymentsByCluster(ctx, clusterID, v1alpha1.StatusRunning)
	if err != nil {
		return ClusterState{}, err
	}
	pending, err := a.Store.ListDeploymentsByCluster(ctx, clusterID, v1alpha1.StatusPending)
	if err != nil {
		return ClusterState{}, err
	}

	var used v1alpha1.ResourceVector
	for _, d := range running {
		used = used.Add(d.Request)
	}
	return ClusterState{
		Cluster: cluster,
		Free:    cluster.Capacity.Sub(used),
		Running: running,
		Pending: pending,
	}, nil
}

// authorize enforces spec §4.8's predicate: admins may operate on any
// deployment in their organization; developers only on deployments they
// own. Cross-organization access is always denied.
func authorize(actor v1alpha1.Actor, d v1alpha1.Deployment) error {
	if actor.OrgID != d.OrgID {
		return errs.Authz("actor's organization does not own deployment %d", d.ID)
	}
	if actor.Role == v1alpha1.RoleAdmin {
		return nil
	}
	if d.OwnerID != actor.ID {
		return errs.Authz("actor does not own deployment %d", d.ID)
	}
	return nil
}
