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

package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
)

var _ Service = (*FakeService)(nil)

type delayedEntry struct {
	job v1alpha1.SchedulingJob
	due time.Time
}

type processingEntry struct {
	job      v1alpha1.SchedulingJob
	deadline time.Time
}

// FakeService is an in-memory Service for unit and suite tests. It honors
// FIFO ordering on the main queue, visibility-timeout reclaim, and delayed
// promotion without a real Redis instance.
type FakeService struct {
	mu         sync.Mutex
	clock      func() time.Time
	main       []v1alpha1.SchedulingJob
	delayed    []delayedEntry
	processing map[int]processingEntry // keyed by synthetic reservation id
	nextResID  int
	registries map[Registry]map[int64]bool
}

func NewFakeService() *FakeService {
	return &FakeService{
		clock:      time.Now,
		processing: map[int]processingEntry{},
		registries: map[Registry]map[int64]bool{
			RegistryStarted:  {},
			RegistryFinished: {},
			RegistryFailed:   {},
		},
	}
}

func (q *FakeService) WithClock(clock func() time.Time) *FakeService {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = clock
	return q
}

func (q *FakeService) Enqueue(_ context.Context, job v1alpha1.SchedulingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.main = append(q.main, job)
	return nil
}

func (q *FakeService) EnqueueAfter(_ context.Context, job v1alpha1.SchedulingJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedEntry{job: job, due: q.clock().Add(delay)})
	return nil
}

func (q *FakeService) Reserve(_ context.Context, _, visibilityTimeout time.Duration) (*Reservation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.main) == 0 {
		return nil, ErrEmpty
	}
	job := q.main[0]
	q.main = q.main[1:]
	id := q.nextResID
	q.nextResID++
	q.processing[id] = processingEntry{job: job, deadline: q.clock().Add(visibilityTimeout)}
	return &Reservation{Job: job, raw: reservationToken(id)}, nil
}

func (q *FakeService) Ack(_ context.Context, r *Reservation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, tokenToReservation(r.raw))
	return nil
}

func (q *FakeService) Nack(_ context.Context, r *Reservation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := tokenToReservation(r.raw)
	entry, ok := q.processing[id]
	if !ok {
		return nil
	}
	delete(q.processing, id)
	q.main = append([]v1alpha1.SchedulingJob{entry.job}, q.main...)
	return nil
}

func (q *FakeService) PromoteDue(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock()
	remaining := q.delayed[:0]
	promoted := 0
	for _, e := range q.delayed {
		if !now.Before(e.due) {
			q.main = append(q.main, e.job)
			promoted++
		} else {
			remaining = append(remaining, e)
		}
	}
	q.delayed = remaining
	return promoted, nil
}

func (q *FakeService) ReclaimExpired(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock()
	reclaimed := 0
	for id, entry := range q.processing {
		if !now.Before(entry.deadline) {
			delete(q.processing, id)
			q.main = append(q.main, entry.job)
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (q *FakeService) MarkRegistry(_ context.Context, registry Registry, deploymentID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.registries[registry][deploymentID] = true
	return nil
}

func (q *FakeService) InRegistry(registry Registry, deploymentID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.registries[registry][deploymentID]
}

func (q *FakeService) Contains(_ context.Context, deploymentID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.main {
		if j.DeploymentID == deploymentID {
			return true, nil
		}
	}
	for _, e := range q.delayed {
		if e.job.DeploymentID == deploymentID {
			return true, nil
		}
	}
	for _, e := range q.processing {
		if e.job.DeploymentID == deploymentID {
			return true, nil
		}
	}
	return false, nil
}

func (q *FakeService) Depth(_ context.Context) (map[string]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]int{"main": len(q.main), "delayed": len(q.delayed), "processing": len(q.processing)}, nil
}

const reservationPrefix = "fake-reservation-"

func reservationToken(id int) string {
	return reservationPrefix + strconv.Itoa(id)
}

func tokenToReservation(token string) int {
	// Only ever parses tokens this package minted; error is impossible.
	n, _ := strconv.Atoi(token[len(reservationPrefix):])
	return n
}
