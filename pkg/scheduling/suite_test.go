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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/accounting"
	"github.com/deploysched/scheduler/pkg/scheduling"
)

func TestScheduling(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scheduling Suite")
}

var _ = Describe("Plan", func() {
	var capacity v1alpha1.ResourceVector

	BeforeEach(func() {
		capacity = v1alpha1.ResourceVector{CPU: 16, RAM: 32, GPU: 4}
	})

	It("never returns a preemption set that would leave the cluster over capacity", func() {
		running := []v1alpha1.Deployment{
			{ID: 1, Priority: 1, Request: v1alpha1.ResourceVector{CPU: 8, RAM: 16, GPU: 2}},
			{ID: 2, Priority: 2, Request: v1alpha1.ResourceVector{CPU: 8, RAM: 16, GPU: 2}},
		}
		d := v1alpha1.Deployment{ID: 3, Priority: 5, Request: v1alpha1.ResourceVector{CPU: 12, RAM: 8, GPU: 1}}

		decision := scheduling.Plan(d, running, capacity)
		Expect(decision.Action).To(Equal(scheduling.Preempt))

		survivors := make([]v1alpha1.Deployment, 0, len(running))
		evicted := map[int64]bool{}
		for _, v := range decision.Set {
			evicted[v.ID] = true
		}
		for _, r := range running {
			if !evicted[r.ID] {
				survivors = append(survivors, r)
			}
		}
		survivors = append(survivors, d)
		Expect(accounting.InvariantHolds(capacity, survivors)).To(BeTrue())
	})

	It("admits directly when free capacity already covers the request", func() {
		d := v1alpha1.Deployment{ID: 1, Priority: 1, Request: v1alpha1.ResourceVector{CPU: 1, RAM: 1, GPU: 0}}
		decision := scheduling.Plan(d, nil, capacity)
		Expect(decision.Action).To(Equal(scheduling.Admit))
		Expect(decision.Set).To(BeEmpty())
	})

	It("never selects a higher-or-equal priority running deployment for eviction", func() {
		running := []v1alpha1.Deployment{
			{ID: 1, Priority: 5, Request: v1alpha1.ResourceVector{CPU: 16, RAM: 32, GPU: 4}, CreatedAt: time.Unix(0, 0)},
		}
		d := v1alpha1.Deployment{ID: 2, Priority: 5, Request: v1alpha1.ResourceVector{CPU: 1, RAM: 1, GPU: 0}}

		decision := scheduling.Plan(d, running, capacity)
		Expect(decision.Action).NotTo(Equal(scheduling.Preempt))
	})
})
