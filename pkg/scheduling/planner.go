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

// Package scheduling holds the preemption planner: given one pending
// deployment and the running set on its cluster, decide whether to admit
// it directly, admit it after preempting lower-priority running deployments
// taken greedily in tie-break order until it fits, or defer it. The set is
// not searched for the smallest possible one. Plan is a pure function of its inputs.
package scheduling

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
)

// Action tags the outcome of a planning call.
type Action string

const (
	Admit   Action = "ADMIT"
	Preempt Action = "PREEMPT"
	Defer   Action = "DEFER"
)

// Decision is the planner's tagged-union result. Set is non-empty only for
// Preempt.
type Decision struct {
	Action Action
	Set    []v1alpha1.Deployment
}

func (d Decision) String() string {
	switch d.Action {
	case Preempt:
		ids := lo.Map(d.Set, func(dep v1alpha1.Deployment, _ int) int64 { return dep.ID })
		return fmt.Sprintf("PREEMPT(%v)", ids)
	default:
		return string(d.Action)
	}
}

// Plan implements spec §4.3. running is the set of currently-RUNNING
// deployments on d's cluster; capacity is that cluster's total capacity.
// Plan never mutates its inputs and two calls with equal inputs return
// equal outputs (spec §8, Determinism of planning).
func Plan(d v1alpha1.Deployment, running []v1alpha1.Deployment, capacity v1alpha1.ResourceVector) Decision {
	used := sumRequests(running)
	free := capacity.Sub(used)
	if d.Request.Fits(free) {
		return Decision{Action: Admit}
	}

	// L = candidates strictly lower priority than d, ordered by the
	// documented tie-break: priority asc, created_at asc, id asc.
	candidates := make([]v1alpha1.Deployment, 0, len(running))
	for _, r := range running {
		if r.Priority < d.Priority {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	remaining := free
	selected := make([]v1alpha1.Deployment, 0, len(candidates))
	for _, c := range candidates {
		selected = append(selected, c)
		remaining = remaining.Add(c.Request) // evicting c frees its request back up
		if d.Request.Fits(remaining) {
			return Decision{Action: Preempt, Set: selected}
		}
	}
	return Decision{Action: Defer}
}

func sumRequests(deployments []v1alpha1.Deployment) v1alpha1.ResourceVector {
	var total v1alpha1.ResourceVector
	for _, dep := range deployments {
		total = total.Add(dep.Request)
	}
	return total
}
