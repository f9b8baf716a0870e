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

// Package store is the narrow data-access contract the rest of the
// scheduler depends on: named queries returning plain records, never an
// ORM object graph the scheduling logic could lazily traverse mid-decision.
// A transaction handle (Tx) is threaded explicitly through any call whose
// scope is exactly one scheduling decision (Design Notes §9).
package store

import (
	"context"
	"time"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
)

// TransitionOptions carries the side effects that accompany a status
// transition written in the same row update.
type TransitionOptions struct {
	IncrementAttempt bool
	FailureReason    string
	// IdempotencyKey, when non-empty, is stamped onto the row so a
	// duplicate queue delivery arriving after the transition already
	// committed can be recognized (spec expansion §4.9).
	IdempotencyKey string
}

// Tx is the scope of exactly one scheduling decision: one cluster lock
// held, one transaction open. All reads inside Tx observe a consistent
// snapshot sufficient to prevent phantom RUNNING rows for this cluster.
type Tx interface {
	// Cluster re-reads the cluster row within the transaction.
	Cluster(ctx context.Context, clusterID int64) (v1alpha1.Cluster, error)
	// Deployment re-reads one deployment row FOR UPDATE within the
	// transaction, preventing a concurrent writer from racing this
	// decision (spec §4.6 step 1).
	Deployment(ctx context.Context, deploymentID int64) (v1alpha1.Deployment, error)
	// RunningOnCluster returns every RUNNING deployment on clusterID,
	// read under the same isolation as Deployment.
	RunningOnCluster(ctx context.Context, clusterID int64) ([]v1alpha1.Deployment, error)
	// Transition writes deploymentID's new status, validating it against
	// pkg/lifecycle's table before any row is touched.
	Transition(ctx context.Context, deploymentID int64, to v1alpha1.DeploymentStatus, opts TransitionOptions) error
	// IncrementAttempt bumps attempt_count without a status transition, for
	// a DEFER decision that leaves d in PENDING (spec §4.6 step 3/§4.7).
	// Returns the new count.
	IncrementAttempt(ctx context.Context, deploymentID int64) (int, error)
}

// Store is the durable persistence contract.
type Store interface {
	// CreateCluster inserts a new active cluster and returns it with its
	// assigned ID.
	CreateCluster(ctx context.Context, c v1alpha1.Cluster) (v1alpha1.Cluster, error)
	// Cluster fetches one cluster by id, regardless of its deleted flag.
	Cluster(ctx context.Context, id int64) (v1alpha1.Cluster, error)
	// ListClusters returns every cluster in orgID, optionally including
	// soft-deleted ones.
	ListClusters(ctx context.Context, orgID int64, includeDeleted bool) ([]v1alpha1.Cluster, error)
	// SoftDeleteCluster marks a cluster deleted; it remains queryable with
	// includeDeleted=true.
	SoftDeleteCluster(ctx context.Context, id int64) error

	// CreateDeployment inserts a new PENDING deployment and returns it with
	// its assigned ID and timestamps.
	CreateDeployment(ctx context.Context, d v1alpha1.Deployment) (v1alpha1.Deployment, error)
	// Deployment fetches one deployment by id, uncommitted reads excluded.
	Deployment(ctx context.Context, id int64) (v1alpha1.Deployment, error)
	// ListDeploymentsByCluster returns deployments on clusterID, optionally
	// filtered to the given statuses (no filter returns every status).
	ListDeploymentsByCluster(ctx context.Context, clusterID int64, statuses ...v1alpha1.DeploymentStatus) ([]v1alpha1.Deployment, error)
	// ListPendingOrPreempted returns every deployment in PENDING or
	// PREEMPTED across all clusters, for the recovery sweeper (spec §4.7).
	ListPendingOrPreempted(ctx context.Context) ([]v1alpha1.Deployment, error)
	// TransitionSingle writes one status transition outside a larger
	// scheduling decision (used by admission's cancel).
	TransitionSingle(ctx context.Context, deploymentID int64, to v1alpha1.DeploymentStatus, opts TransitionOptions) error

	// WithClusterTransaction opens one transaction scoped to a single
	// scheduling decision on clusterID and runs fn inside it. A non-nil
	// return from fn rolls the transaction back; nil commits it.
	WithClusterTransaction(ctx context.Context, clusterID int64, fn func(tx Tx) error) error
}

// Now is overridable in tests; production code always uses time.Now.
var Now = time.Now
