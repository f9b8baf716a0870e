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

package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Service = (*FakeService)(nil)

type lease struct {
	token   string
	expires time.Time
}

// FakeService is an in-memory Service for tests, honoring TTL expiry and
// owner-token release semantics without a real Redis instance.
type FakeService struct {
	mu     sync.Mutex
	clock  func() time.Time
	leases map[int64]lease
}

func NewFakeService() *FakeService {
	return &FakeService{clock: time.Now, leases: map[int64]lease{}}
}

// WithClock overrides the time source, for deterministic TTL-expiry tests.
func (s *FakeService) WithClock(clock func() time.Time) *FakeService {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

func (s *FakeService) Acquire(_ context.Context, clusterID int64, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.clock()
	if l, ok := s.leases[clusterID]; ok && l.expires.After(now) {
		return "", errBusy(clusterID)
	}
	token := uuid.NewString()
	s.leases[clusterID] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (s *FakeService) Release(_ context.Context, clusterID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[clusterID]
	if !ok || l.token != token {
		return nil
	}
	delete(s.leases, clusterID)
	return nil
}
