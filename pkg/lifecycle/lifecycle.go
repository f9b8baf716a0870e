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

// Package lifecycle is the authoritative transition table for a
// Deployment's status field. It holds no state of its own; the Store calls
// Validate inside the same transaction that writes the new status, so an
// illegal transition never reaches durable storage.
package lifecycle

import (
	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/errs"
)

// Event names the cause of a transition, used only for error messages and
// logging; the table itself is keyed on (from, to).
type Event string

const (
	EventSubmit  Event = "submit"
	EventAdmit   Event = "admit"
	EventReject  Event = "reject"
	EventCancel  Event = "cancel"
	EventPreempt Event = "preempt"
	EventCrash   Event = "crash"
	EventFinish  Event = "finish"
	EventRequeue Event = "requeue"
	EventGiveUp  Event = "give-up"
)

type transition struct {
	from, to v1alpha1.DeploymentStatus
}

// table enumerates every legal (from, to) pair from spec §4.1. Anything
// absent is rejected fail-closed by Validate.
var table = map[transition]Event{
	{"", v1alpha1.StatusPending}: EventSubmit,

	{v1alpha1.StatusPending, v1alpha1.StatusRunning}: EventAdmit,
	{v1alpha1.StatusPending, v1alpha1.StatusFailed}:  EventReject,
	{v1alpha1.StatusPending, v1alpha1.StatusDeleted}: EventCancel,

	{v1alpha1.StatusRunning, v1alpha1.StatusPreempted}: EventPreempt,
	{v1alpha1.StatusRunning, v1alpha1.StatusFailed}:    EventCrash,
	{v1alpha1.StatusRunning, v1alpha1.StatusCompleted}: EventFinish,
	{v1alpha1.StatusRunning, v1alpha1.StatusDeleted}:   EventCancel,

	{v1alpha1.StatusPreempted, v1alpha1.StatusPending}: EventRequeue,
	{v1alpha1.StatusPreempted, v1alpha1.StatusFailed}:  EventGiveUp,
	{v1alpha1.StatusPreempted, v1alpha1.StatusDeleted}: EventCancel,
}

// Validate returns nil if the (from, to) pair is a legal transition,
// otherwise a *errs.Error of KindConflictTransition. A zero-value from
// ("") denotes initial creation.
func Validate(from, to v1alpha1.DeploymentStatus) error {
	if from == to {
		return errs.ConflictTransition("deployment already in status %s", to)
	}
	if from.Terminal() {
		return errs.ConflictTransition("status %s is terminal, cannot transition to %s", from, to)
	}
	if _, ok := table[transition{from, to}]; !ok {
		return errs.ConflictTransition("no transition %s -> %s", from, to)
	}
	return nil
}

// EventFor returns the event name for a legal (from, to) pair, or "" if the
// pair is illegal.
func EventFor(from, to v1alpha1.DeploymentStatus) Event {
	return table[transition{from, to}]
}
