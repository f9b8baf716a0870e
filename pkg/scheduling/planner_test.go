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

package scheduling_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/scheduling"
)

func vec(cpu, ram, gpu int64) v1alpha1.ResourceVector {
	return v1alpha1.ResourceVector{CPU: cpu, RAM: ram, GPU: gpu}
}

// Scenario 2 of spec §8: insufficient cpu and no lower-priority running
// deployment to preempt => DEFER.
func TestPlanDefersWhenNoLowerPriorityCandidate(t *testing.T) {
	capacity := vec(16, 32, 4)
	d1 := v1alpha1.Deployment{ID: 1, Priority: 3, Request: vec(4, 8, 1)}
	d2 := v1alpha1.Deployment{ID: 2, Priority: 3, Request: vec(16, 8, 0)}

	decision := scheduling.Plan(d2, []v1alpha1.Deployment{d1}, capacity)
	assert.Equal(t, scheduling.Defer, decision.Action)
}

// Scenario 3 of spec §8: preempting a single lower-priority running
// deployment is enough to admit.
func TestPlanPreemptsSingleCandidate(t *testing.T) {
	capacity := vec(8, 16, 0)
	d3 := v1alpha1.Deployment{ID: 3, Priority: 1, Request: vec(6, 8, 0)}
	d4 := v1alpha1.Deployment{ID: 4, Priority: 5, Request: vec(4, 8, 0)}

	decision := scheduling.Plan(d4, []v1alpha1.Deployment{d3}, capacity)
	require.Equal(t, scheduling.Preempt, decision.Action)
	require.Len(t, decision.Set, 1)
	assert.Equal(t, int64(3), decision.Set[0].ID)
}

// Scenario 4 of spec §8: minimal preemption set picks the oldest-of-lowest
// priority first and stops as soon as it fits.
func TestPlanMinimalPreemptionSet(t *testing.T) {
	capacity := vec(10, 10, 0)
	t0 := time.Unix(0, 0)
	d5 := v1alpha1.Deployment{ID: 5, Priority: 2, Request: vec(5, 5, 0), CreatedAt: t0}
	d6 := v1alpha1.Deployment{ID: 6, Priority: 2, Request: vec(4, 4, 0), CreatedAt: t0.Add(time.Second)}
	d7 := v1alpha1.Deployment{ID: 7, Priority: 2, Request: vec(1, 1, 0), CreatedAt: t0.Add(2 * time.Second)}
	d8 := v1alpha1.Deployment{ID: 8, Priority: 4, Request: vec(6, 6, 0)}

	decision := scheduling.Plan(d8, []v1alpha1.Deployment{d6, d7, d5}, capacity)
	require.Equal(t, scheduling.Preempt, decision.Action)
	require.Len(t, decision.Set, 1)
	assert.Equal(t, int64(5), decision.Set[0].ID)
}

// Preemption monotonicity (spec §8): a pending deployment whose priority is
// <= every running deployment's priority never triggers a preemption.
func TestPlanMonotonicityNeverPreemptsEqualOrLowerPriority(t *testing.T) {
	capacity := vec(4, 4, 0)
	running := []v1alpha1.Deployment{
		{ID: 1, Priority: 3, Request: vec(4, 4, 0)},
	}
	d := v1alpha1.Deployment{ID: 2, Priority: 3, Request: vec(1, 1, 0)}

	decision := scheduling.Plan(d, running, capacity)
	assert.Contains(t, []scheduling.Action{scheduling.Admit, scheduling.Defer}, decision.Action)
}

// No self-preemption: the pending deployment is never its own target when
// only another lower-priority deployment is running.
func TestPlanNeverIncludesPendingInSet(t *testing.T) {
	capacity := vec(4, 4, 0)
	d := v1alpha1.Deployment{ID: 1, Priority: 5, Request: vec(4, 4, 0)}
	other := v1alpha1.Deployment{ID: 2, Priority: 1, Request: vec(4, 4, 0)}

	decision := scheduling.Plan(d, []v1alpha1.Deployment{other}, capacity)
	for _, p := range decision.Set {
		assert.NotEqual(t, d.ID, p.ID)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	capacity := vec(10, 10, 0)
	running := []v1alpha1.Deployment{
		{ID: 5, Priority: 2, Request: vec(5, 5, 0)},
		{ID: 6, Priority: 2, Request: vec(4, 4, 0)},
	}
	d := v1alpha1.Deployment{ID: 8, Priority: 4, Request: vec(6, 6, 0)}

	first := scheduling.Plan(d, running, capacity)
	second := scheduling.Plan(d, running, capacity)
	assert.Equal(t, first, second)
}
