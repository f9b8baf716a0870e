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

// Package accounting holds pure resource-accounting functions: free capacity,
// static and free-capacity feasibility, and the capacity invariant. The
// admission layer and the planner compute the same quantities inline rather
// than calling this package. Nothing here touches
// the Store; callers pass in whatever running set they already loaded.
package accounting

import v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"

// Free returns capacity minus the sum of request vectors of running.
func Free(capacity v1alpha1.ResourceVector, running []v1alpha1.Deployment) v1alpha1.ResourceVector {
	used := Sum(running)
	return capacity.Sub(used)
}

// Sum returns the component-wise sum of every deployment's request vector.
func Sum(deployments []v1alpha1.Deployment) v1alpha1.ResourceVector {
	var total v1alpha1.ResourceVector
	for _, d := range deployments {
		total = total.Add(d.Request)
	}
	return total
}

// Fits reports whether d's request vector can be satisfied entirely out of
// free, component-wise. Integer arithmetic only; no fractional resources.
func Fits(d v1alpha1.Deployment, free v1alpha1.ResourceVector) bool {
	return d.Request.Fits(free)
}

// FitsCapacity reports whether d's static request vector is within a
// cluster's total capacity, ignoring any currently-running deployments.
// Admission applies the same static check inline at submit time.
func FitsCapacity(d v1alpha1.Deployment, capacity v1alpha1.ResourceVector) bool {
	return d.Request.Fits(capacity)
}

// InvariantHolds checks the §3/§8 capacity invariant for one cluster: the
// sum of RUNNING request vectors must not exceed capacity, component-wise.
func InvariantHolds(capacity v1alpha1.ResourceVector, running []v1alpha1.Deployment) bool {
	return Sum(running).Fits(capacity)
}
