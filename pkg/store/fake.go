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

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/lifecycle"
)

var _ Store = (*FakeStore)(nil)

// FakeStore is an in-memory Store for unit and suite tests. Its
// WithClusterTransaction holds a real mutex for the cluster's duration,
// giving tests the same single-writer-per-cluster guarantee a real
// row-level lock would, without a database.
type FakeStore struct {
	mu          sync.Mutex
	clusterLock map[int64]*sync.Mutex
	clusters    map[int64]v1alpha1.Cluster
	deployments map[int64]v1alpha1.Deployment
	nextID      int64
	clock       func() time.Time
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		clusterLock: map[int64]*sync.Mutex{},
		clusters:    map[int64]v1alpha1.Cluster{},
		deployments: map[int64]v1alpha1.Deployment{},
		clock:       time.Now,
	}
}

func (s *FakeStore) WithClock(clock func() time.Time) *FakeStore {
	s.clock = clock
	return s
}

func (s *FakeStore) SeedCluster(c v1alpha1.Cluster) v1alpha1.Cluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[c.ID] = c
	return c
}

func (s *FakeStore) SeedDeployment(d v1alpha1.Deployment) v1alpha1.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.clock()
		d.UpdatedAt = d.CreatedAt
	}
	s.deployments[d.ID] = d
	return d
}

func (s *FakeStore) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *FakeStore) CreateCluster(_ context.Context, c v1alpha1.Cluster) (v1alpha1.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.allocID()
	}
	s.clusters[c.ID] = c
	return c, nil
}

func (s *FakeStore) Cluster(_ context.Context, id int64) (v1alpha1.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[id]
	if !ok {
		return v1alpha1.Cluster{}, fmt.Errorf("cluster %d not found", id)
	}
	return c, nil
}

func (s *FakeStore) ListClusters(_ context.Context, orgID int64, includeDeleted bool) ([]v1alpha1.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []v1alpha1.Cluster
	for _, c := range s.clusters {
		if c.OrgID != orgID {
			continue
		}
		if c.Deleted && !includeDeleted {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *FakeStore) SoftDeleteCluster(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[id]
	if !ok {
		return fmt.Errorf("cluster %d not found", id)
	}
	c.Deleted = true
	s.clusters[id] = c
	return nil
}

func (s *FakeStore) CreateDeployment(_ context.Context, d v1alpha1.Deployment) (v1alpha1.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.allocID()
	}
	now := s.clock()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = v1alpha1.StatusPending
	}
	s.deployments[d.ID] = d
	return d, nil
}

func (s *FakeStore) Deployment(_ context.Context, id int64) (v1alpha1.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return v1alpha1.Deployment{}, fmt.Errorf("deployment %d not found", id)
	}
	return d, nil
}

func (s *FakeStore) ListDeploymentsByCluster(_ context.Context, clusterID int64, statuses ...v1alpha1.DeploymentStatus) ([]v1alpha1.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := map[v1alpha1.DeploymentStatus]bool{}
	for _, st := range statuses {
		allowed[st] = true
	}
	var out []v1alpha1.Deployment
	for _, d := range s.deployments {
		if d.ClusterID != clusterID {
			continue
		}
		if len(allowed) > 0 && !allowed[d.Status] {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *FakeStore) ListPendingOrPreempted(_ context.Context) ([]v1alpha1.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []v1alpha1.Deployment
	for _, d := range s.deployments {
		if d.Status == v1alpha1.StatusPending || d.Status == v1alpha1.StatusPreempted {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *FakeStore) transition(deploymentID int64, to v1alpha1.DeploymentStatus, opts TransitionOptions) error {
	d, ok := s.deployments[deploymentID]
	if !ok {
		return fmt.Errorf("deployment %d not found", deploymentID)
	}
	if err := lifecycle.Validate(d.Status, to); err != nil {
		return err
	}
	d.Status = to
	d.UpdatedAt = s.clock()
	if opts.IncrementAttempt {
		d.AttemptCount++
	}
	if opts.FailureReason != "" {
		d.FailureReason = opts.FailureReason
	}
	if opts.IdempotencyKey != "" {
		d.IdempotencyKey = opts.IdempotencyKey
	}
	s.deployments[deploymentID] = d
	return nil
}

func (s *FakeStore) TransitionSingle(_ context.Context, deploymentID int64, to v1alpha1.DeploymentStatus, opts TransitionOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(deploymentID, to, opts)
}

func (s *FakeStore) lockFor(clusterID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.clusterLock[clusterID]
	if !ok {
		l = &sync.Mutex{}
		s.clusterLock[clusterID] = l
	}
	return l
}

func (s *FakeStore) WithClusterTransaction(ctx context.Context, clusterID int64, fn func(tx Tx) error) error {
	l := s.lockFor(clusterID)
	l.Lock()
	defer l.Unlock()
	tx := &fakeTx{store: s}
	return fn(tx)
}

// fakeTx writes straight through to the FakeStore's shared map, guarded by
// the per-cluster mutex WithClusterTransaction already holds — the fake's
// analogue to a real row-level SELECT FOR UPDATE transaction.
type fakeTx struct {
	store *FakeStore
}

func (t *fakeTx) Cluster(ctx context.Context, clusterID int64) (v1alpha1.Cluster, error) {
	return t.store.Cluster(ctx, clusterID)
}

func (t *fakeTx) Deployment(ctx context.Context, deploymentID int64) (v1alpha1.Deployment, error) {
	return t.store.Deployment(ctx, deploymentID)
}

func (t *fakeTx) RunningOnCluster(ctx context.Context, clusterID int64) ([]v1alpha1.Deployment, error) {
	return t.store.ListDeploymentsByCluster(ctx, clusterID, v1alpha1.StatusRunning)
}

func (t *fakeTx) Transition(_ context.Context, deploymentID int64, to v1alpha1.DeploymentStatus, opts TransitionOptions) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.transition(deploymentID, to, opts)
}

func (t *fakeTx) IncrementAttempt(_ context.Context, deploymentID int64) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	d, ok := t.store.deployments[deploymentID]
	if !ok {
		return 0, fmt.Errorf("deployment %d not found", deploymentID)
	}
	d.AttemptCount++
	d.UpdatedAt = t.store.clock()
	t.store.deployments[deploymentID] = d
	return d.AttemptCount, nil
}
