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

package test

import (
	"sync/atomic"
	"time"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
)

var idSeq int64

func nextID() int64 {
	return atomic.AddInt64(&idSeq, 1)
}

// ClusterOptions seeds the fields callers usually care about; anything left
// zero is filled with a reasonable test default.
type ClusterOptions struct {
	ID       int64
	OrgID    int64
	Name     string
	Capacity v1alpha1.ResourceVector
	Deleted  bool
}

func Cluster(opts ClusterOptions) v1alpha1.Cluster {
	c := v1alpha1.Cluster{
		ID:       opts.ID,
		OrgID:    opts.OrgID,
		Name:     opts.Name,
		Capacity: opts.Capacity,
		Deleted:  opts.Deleted,
	}
	if c.ID == 0 {
		c.ID = nextID()
	}
	if c.Name == "" {
		c.Name = "test-cluster"
	}
	if c.Capacity == (v1alpha1.ResourceVector{}) {
		c.Capacity = v1alpha1.ResourceVector{CPU: 16, RAM: 32, GPU: 4}
	}
	return c
}

// DeploymentOptions seeds the fields callers usually care about for a test
// Deployment.
type DeploymentOptions struct {
	ID        int64
	ClusterID int64
	OwnerID   int64
	OrgID     int64
	Name      string
	Request   v1alpha1.ResourceVector
	Priority  int
	Status    v1alpha1.DeploymentStatus
	CreatedAt time.Time
}

func Deployment(opts DeploymentOptions) v1alpha1.Deployment {
	d := v1alpha1.Deployment{
		ID:        opts.ID,
		ClusterID: opts.ClusterID,
		OwnerID:   opts.OwnerID,
		OrgID:     opts.OrgID,
		Name:      opts.Name,
		Request:   opts.Request,
		Priority:  opts.Priority,
		Status:    opts.Status,
		CreatedAt: opts.CreatedAt,
		UpdatedAt: opts.CreatedAt,
	}
	if d.ID == 0 {
		d.ID = nextID()
	}
	if d.Name == "" {
		d.Name = "test-deployment"
	}
	if d.Priority == 0 {
		d.Priority = 3
	}
	if d.Status == "" {
		d.Status = v1alpha1.StatusPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
		d.UpdatedAt = d.CreatedAt
	}
	return d
}
