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

// Package queue is the asynchronous job pipeline described in spec §4.5:
// a FIFO main queue, a delayed queue for deferred/preempted re-attempts,
// and three observational terminal registries. Delivery is at-least-once;
// handlers must be idempotent on terminal status (enforced by the worker's
// step-1 precheck, not by this package).
package queue

import (
	"context"
	"errors"
	"time"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
)

// ErrEmpty is returned by Reserve when no job became available before the
// reserve call's own timeout elapsed. It is not a backend failure.
var ErrEmpty = errors.New("queue: no job available")

// Registry names the three observational terminal registries of spec §4.5.
type Registry string

const (
	RegistryStarted  Registry = "started"
	RegistryFinished Registry = "finished"
	RegistryFailed   Registry = "failed"
)

// Reservation is a job handed out by Reserve; it hides the job from other
// reservers until Ack, Nack, or the visibility timeout elapses.
type Reservation struct {
	Job v1alpha1.SchedulingJob
	// raw is an opaque backend handle (e.g. the exact serialized payload)
	// that Ack/Nack need to locate the in-flight copy; callers should not
	// inspect it.
	raw string
}

// Service is the queue contract the scheduler worker and admission API
// depend on.
type Service interface {
	// Enqueue durably appends job to the main FIFO queue.
	Enqueue(ctx context.Context, job v1alpha1.SchedulingJob) error
	// EnqueueAfter schedules job for promotion to the main queue once delay
	// has elapsed.
	EnqueueAfter(ctx context.Context, job v1alpha1.SchedulingJob, delay time.Duration) error
	// Reserve blocks up to waitTimeout for a job, hiding it from other
	// reservers for visibilityTimeout. Returns ErrEmpty if nothing arrived
	// in time.
	Reserve(ctx context.Context, waitTimeout, visibilityTimeout time.Duration) (*Reservation, error)
	// Ack removes a reserved job permanently.
	Ack(ctx context.Context, r *Reservation) error
	// Nack returns a reserved job to the main queue immediately.
	Nack(ctx context.Context, r *Reservation) error
	// PromoteDue moves any delayed job whose delay has elapsed onto the
	// main queue, returning how many were promoted. Called by the delayed
	// queue's mover loop.
	PromoteDue(ctx context.Context) (int, error)
	// ReclaimExpired returns any reserved-but-unacked job whose visibility
	// timeout has elapsed back to the main queue, returning how many were
	// reclaimed.
	ReclaimExpired(ctx context.Context) (int, error)
	// MarkRegistry records a deployment id in an observational registry.
	MarkRegistry(ctx context.Context, registry Registry, deploymentID int64) error
	// Contains reports whether deploymentID is present on the main queue,
	// the delayed queue, or currently reserved (in-flight) — used by the
	// recovery sweeper (spec §4.7) to decide whether a live deployment
	// still needs enqueuing.
	Contains(ctx context.Context, deploymentID int64) (bool, error)
	// Depth reports the approximate number of jobs on the main, delayed,
	// and processing regions, keyed by Registry-style region name
	// ("main", "delayed", "processing"); for gauge metrics, not control flow.
	Depth(ctx context.Context) (map[string]int, error)
}
