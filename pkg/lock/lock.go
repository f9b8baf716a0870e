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

// Package lock is the per-cluster mutual-exclusion lease described in
// spec §4.4: "set if absent with expiry" acquire, and a release that only
// succeeds when the caller presents the token it was issued.
package lock

import (
	"context"
	"strconv"
	"time"

	"github.com/deploysched/scheduler/pkg/errs"
)

// DefaultTTL is the spec §6 default LOCK_TTL_MS, long enough to cover one
// scheduling decision plus a Store commit.
const DefaultTTL = 10 * time.Second

// Service is the lock contract the scheduler worker depends on. Acquire
// returns errs.KindBusy (not an error the caller should retry aggressively)
// when another owner currently holds the lease.
type Service interface {
	// Acquire attempts to take the lease for clusterID, returning an opaque
	// owner token on success or a KindBusy error if already held.
	Acquire(ctx context.Context, clusterID int64, ttl time.Duration) (token string, err error)
	// Release gives up the lease for clusterID, but only if token matches
	// the currently stored owner token; otherwise it is a silent no-op so a
	// slow worker whose lease already expired can't steal back a lock a
	// successor now holds.
	Release(ctx context.Context, clusterID int64, token string) error
}

// Key is the lock's storage key for clusterID, matching spec §6's
// `lock:cluster:{id}`.
func Key(clusterID int64) string {
	return "lock:cluster:" + strconv.FormatInt(clusterID, 10)
}

func errBusy(clusterID int64) error {
	return errs.Busy("lock for cluster %d is held by another worker", clusterID)
}
