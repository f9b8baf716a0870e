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

package admission_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/admission"
	"github.com/deploysched/scheduler/pkg/errs"
	"github.com/deploysched/scheduler/pkg/queue"
	"github.com/deploysched/scheduler/pkg/store"
	"github.com/deploysched/scheduler/pkg/test"
)

func newAdmission() (*admission.Admission, *store.FakeStore, *queue.FakeService) {
	s := store.NewFakeStore()
	q := queue.NewFakeService()
	return &admission.Admission{Store: s, Queue: q}, s, q
}

func TestSubmitDeploymentAdmitsValidRequest(t *testing.T) {
	ctx := context.Background()
	a, s, q := newAdmission()
	c := s.SeedCluster(test.Cluster(test.ClusterOptions{OrgID: 1, Capacity: v1alpha1.ResourceVector{CPU: 16, RAM: 32, GPU: 4}}))
	actor := v1alpha1.Actor{ID: 1, OrgID: 1, Role: v1alpha1.RoleDeveloper}

	d, err := a.SubmitDeployment(ctx, actor, admission.SubmitDeploymentRequest{
		ClusterID: c.ID, Name: "d1", Request: v1alpha1.ResourceVector{CPU: 4, RAM: 8, GPU: 1}, Priority: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusPending, d.Status)

	present, err := q.Contains(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, present)
}

func TestSubmitDeploymentRejectsOverCapacity(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newAdmission()
	c := s.SeedCluster(test.Cluster(test.ClusterOptions{OrgID: 1, Capacity: v1alpha1.ResourceVector{CPU: 2, RAM: 2, GPU: 0}}))
	actor := v1alpha1.Actor{ID: 1, OrgID: 1, Role: v1alpha1.RoleDeveloper}

	_, err := a.SubmitDeployment(ctx, actor, admission.SubmitDeploymentRequest{
		ClusterID: c.ID, Name: "too-big", Request: v1alpha1.ResourceVector{CPU: 4, RAM: 8}, Priority: 3,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestSubmitDeploymentDeniesCrossOrganization(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newAdmission()
	c := s.SeedCluster(test.Cluster(test.ClusterOptions{OrgID: 1}))
	actor := v1alpha1.Actor{ID: 1, OrgID: 2, Role: v1alpha1.RoleDeveloper}

	_, err := a.SubmitDeployment(ctx, actor, admission.SubmitDeploymentRequest{
		ClusterID: c.ID, Name: "x", Request: v1alpha1.ResourceVector{CPU: 1, RAM: 1}, Priority: 3,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthz, errs.KindOf(err))
}

func TestCancelDeploymentDeniesNonOwnerDeveloper(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newAdmission()
	c := s.SeedCluster(test.Cluster(test.ClusterOptions{OrgID: 1}))
	d := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, OrgID: 1, OwnerID: 1, Status: v1alpha1.StatusPending}))

	other := v1alpha1.Actor{ID: 2, OrgID: 1, Role: v1alpha1.RoleDeveloper}
	err := a.CancelDeployment(ctx, other, d.ID)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthz, errs.KindOf(err))
}

func TestCancelDeploymentAllowsOwnerAndAdmin(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newAdmission()
	c := s.SeedCluster(test.Cluster(test.ClusterOptions{OrgID: 1}))
	d := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, OrgID: 1, OwnerID: 1, Status: v1alpha1.StatusPending}))

	owner := v1alpha1.Actor{ID: 1, OrgID: 1, Role: v1alpha1.RoleDeveloper}
	require.NoError(t, a.CancelDeployment(ctx, owner, d.ID))

	got, err := s.Deployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusDeleted, got.Status)

	d2 := s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, OrgID: 1, OwnerID: 1, Status: v1alpha1.StatusPending}))
	admin := v1alpha1.Actor{ID: 3, OrgID: 1, Role: v1alpha1.RoleAdmin}
	require.NoError(t, a.CancelDeployment(ctx, admin, d2.ID))

	got2, err := s.Deployment(ctx, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusDeleted, got2.Status)
}

func TestListClusterStateComputesFreeVector(t *testing.T) {
	ctx := context.Background()
	a, s, _ := newAdmission()
	c := s.SeedCluster(test.Cluster(test.ClusterOptions{OrgID: 1, Capacity: v1alpha1.ResourceVector{CPU: 16, RAM: 32, GPU: 4}}))
	s.SeedDeployment(test.Deployment(test.DeploymentOptions{ClusterID: c.ID, OrgID: 1, Request: v1alpha1.ResourceVector{CPU: 4, RAM: 8, GPU: 1}, Status: v1alpha1.StatusRunning}))

	actor := v1alpha1.Actor{ID: 1, OrgID: 1, Role: v1alpha1.RoleAdmin}
	state, err := a.ListClusterState(ctx, actor, c.ID)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.ResourceVector{CPU: 12, RAM: 24, GPU: 3}, state.Free)
	assert.Len(t, state.Running, 1)
}
