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

// Package cache wraps a store.Store with a short-TTL read-through cache in
// front of Cluster lookups. Cluster rows change rarely (create, soft
// delete) relative to how often admission and the HTTP API read them, so
// caching cuts load on the primary store outside the scheduling decision
// path. It never touches Tx: every read a worker cycle makes happens inside
// WithClusterTransaction against the underlying store, so a scheduling
// decision can never see a stale capacity value.
package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/store"
)

var _ store.Store = (*Store)(nil)

// DefaultTTL bounds how long a cluster read may be stale after a concurrent
// soft-delete this process didn't itself perform (e.g. one issued by a
// different apiserver replica).
const DefaultTTL = 5 * time.Second

// Store decorates an underlying store.Store, caching Cluster reads.
type Store struct {
	store.Store
	clusters *gocache.Cache
}

// New wraps underlying with a cluster cache held for ttl (DefaultTTL if
// ttl <= 0).
func New(underlying store.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		Store:    underlying,
		clusters: gocache.New(ttl, 2*ttl),
	}
}

func clusterKey(id int64) string {
	return fmt.Sprintf("cluster:%d", id)
}

func (s *Store) Cluster(ctx context.Context, id int64) (v1alpha1.Cluster, error) {
	if v, ok := s.clusters.Get(clusterKey(id)); ok {
		return v.(v1alpha1.Cluster), nil
	}
	c, err := s.Store.Cluster(ctx, id)
	if err != nil {
		return v1alpha1.Cluster{}, err
	}
	s.clusters.SetDefault(clusterKey(id), c)
	return c, nil
}

// CreateCluster delegates, then seeds the cache so an immediate follow-up
// read doesn't round-trip to the underlying store.
func (s *Store) CreateCluster(ctx context.Context, c v1alpha1.Cluster) (v1alpha1.Cluster, error) {
	created, err := s.Store.CreateCluster(ctx, c)
	if err != nil {
		return v1alpha1.Cluster{}, err
	}
	s.clusters.SetDefault(clusterKey(created.ID), created)
	return created, nil
}

// SoftDeleteCluster delegates, then evicts the cached row so the next read
// observes the deletion instead of waiting out the TTL.
func (s *Store) SoftDeleteCluster(ctx context.Context, id int64) error {
	if err := s.Store.SoftDeleteCluster(ctx, id); err != nil {
		return err
	}
	s.clusters.Delete(clusterKey(id))
	return nil
}
