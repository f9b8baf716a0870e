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

// Package events is the operational surface for scheduling decisions:
// structured records of admits, preemptions, defers, and failures, decoupled
// from logging so a caller can fan them out to more than stdout later
// without touching scheduler logic.
package events

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
)

// EventType mirrors the Normal/Warning split used across the Kubernetes
// ecosystem's event recorders.
type EventType string

const (
	EventTypeNormal  EventType = "Normal"
	EventTypeWarning EventType = "Warning"
)

// Event is one structured record of something the scheduler did or decided.
type Event struct {
	DeploymentID  int64
	ClusterID     int64
	Type          EventType
	Reason        string
	Message       string
	DedupeValues  []string
	DedupeTimeout time.Duration
	RateLimiter   *rate.Limiter
}

// DedupeKey identifies this event for debounce purposes: same reason plus
// same dedupe values within the timeout window is one event, not many.
func (e Event) DedupeKey() string {
	return fmt.Sprintf("%s-%s", strings.ToLower(e.Reason), strings.Join(e.DedupeValues, "-"))
}

// Recorder publishes Events. Implementations may log, forward to a message
// bus, or (in tests) simply collect them.
type Recorder interface {
	Publish(evt Event)
}

// preemptionRateLimiter is one limiter shared by every Preempted event,
// bounding how often preemption events are published overall, the same
// debounce purpose the teacher's
// PodNominationRateLimiter served for repeated scheduling nominations.
var preemptionRateLimiter = rate.NewLimiter(5, 10)

func Admitted(d v1alpha1.Deployment) Event {
	return Event{
		DeploymentID: d.ID,
		ClusterID:    d.ClusterID,
		Type:         EventTypeNormal,
		Reason:       "Admitted",
		Message:      fmt.Sprintf("deployment %d admitted on cluster %d", d.ID, d.ClusterID),
		DedupeValues: []string{fmt.Sprint(d.ID)},
	}
}

func Preempted(victim v1alpha1.Deployment, by v1alpha1.Deployment) Event {
	return Event{
		DeploymentID: victim.ID,
		ClusterID:    victim.ClusterID,
		Type:         EventTypeNormal,
		Reason:       "Preempted",
		Message:      fmt.Sprintf("deployment %d preempted by deployment %d", victim.ID, by.ID),
		DedupeValues: []string{fmt.Sprint(victim.ID), fmt.Sprint(by.ID)},
		RateLimiter:  preemptionRateLimiter,
	}
}

func Deferred(d v1alpha1.Deployment) Event {
	return Event{
		DeploymentID: d.ID,
		ClusterID:    d.ClusterID,
		Type:         EventTypeNormal,
		Reason:       "Deferred",
		Message:      fmt.Sprintf("deployment %d deferred, attempt %d", d.ID, d.AttemptCount),
		DedupeValues: []string{fmt.Sprint(d.ID), fmt.Sprint(d.AttemptCount)},
	}
}

func FailedToSchedule(d v1alpha1.Deployment, err error) Event {
	return Event{
		DeploymentID: d.ID,
		ClusterID:    d.ClusterID,
		Type:         EventTypeWarning,
		Reason:       "FailedScheduling",
		Message:      fmt.Sprintf("deployment %d failed to schedule: %s", d.ID, err),
		DedupeValues: []string{fmt.Sprint(d.ID), err.Error()},
	}
}

func Unschedulable(d v1alpha1.Deployment) Event {
	return Event{
		DeploymentID: d.ID,
		ClusterID:    d.ClusterID,
		Type:         EventTypeWarning,
		Reason:       "Unschedulable",
		Message:      fmt.Sprintf("deployment %d exceeded max attempts and was marked FAILED", d.ID),
		DedupeValues: []string{fmt.Sprint(d.ID)},
	}
}
