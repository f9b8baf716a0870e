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

// Package metrics holds the scheduler's prometheus metrics, following the
// Namespace/Subsystem/Help convention the teacher's own pkg/metrics uses,
// without the controller-runtime global registry the teacher's operator
// supplied — this module registers directly against the default
// prometheus registry instead.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const Namespace = "scheduler"

const (
	workerSubsystem    = "worker"
	queueSubsystem     = "queue"
	admissionSubsystem = "admission"
)

const (
	ActionLabel = "action"
	ReasonLabel = "reason"
)

var (
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: workerSubsystem,
			Name:      "decisions_total",
			Help:      "Number of preemption planner decisions made, labeled by action (ADMIT, PREEMPT, DEFER).",
		},
		[]string{ActionLabel},
	)
	PreemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: workerSubsystem,
			Name:      "preemptions_total",
			Help:      "Number of deployments preempted to admit a higher-priority deployment.",
		},
		[]string{},
	)
	UnschedulableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: workerSubsystem,
			Name:      "unschedulable_total",
			Help:      "Number of deployments marked FAILED by the worker, either after exhausting MAX_ATTEMPTS or because their cluster was deleted.",
		},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: queueSubsystem,
			Name:      "depth",
			Help:      "Approximate number of jobs observed on a queue region, labeled by region (main, delayed, processing).",
		},
		[]string{"region"},
	)
	AdmissionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: admissionSubsystem,
			Name:      "rejections_total",
			Help:      "Number of submit_deployment calls rejected, labeled by reason (validation, authz, rate_limited).",
		},
		[]string{ReasonLabel},
	)
)

// MustRegister registers every collector in this package against reg. Call
// once at process startup.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(DecisionsTotal, PreemptionsTotal, UnschedulableTotal, QueueDepth, AdmissionRejectionsTotal)
}
