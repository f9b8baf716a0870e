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

// Package retry computes the capped-exponential backoff schedule for
// deferred deployments (spec §4.7) and wraps transient Store/Queue/Lock I/O
// with a bounded retry, so a single flaky call doesn't abort a whole worker
// cycle.
package retry

import (
	"context"
	"math/rand"
	"time"

	retrygo "github.com/avast/retry-go"

	"github.com/deploysched/scheduler/pkg/errs"
)

// Backoff holds the tunables behind the capped-exponential formula in
// spec §4.7: delay_n = min(base * 2^(n-1), cap), with jitter.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff matches the spec §6 suggested defaults.
var DefaultBackoff = Backoff{Base: 5 * time.Second, Cap: 60 * time.Second}

// Delay returns the delay before retry attempt n (1-indexed, matching
// Deployment.AttemptCount), with up to 20% jitter applied.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	ceiling := b.Cap
	if ceiling <= 0 {
		ceiling = DefaultBackoff.Cap
	}
	d := base * time.Duration(1<<uint(n-1))
	if d > ceiling || d <= 0 {
		d = ceiling
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	return d + jitter
}

// PreemptedRequeueDelay is the small fixed delay applied when re-queuing a
// preempted deployment, avoiding an immediate re-attempt against the
// deployment that just evicted it (spec §4.7).
const PreemptedRequeueDelay = 2 * time.Second

// TransientBackend retries fn a bounded number of times, wrapping the final
// failure as a KindTransientBackend error. It is meant for Store/Queue/Lock
// I/O that can fail transiently but has no business-logic reason to retry
// indefinitely (the worker cycle itself is re-delivered by the queue's
// visibility timeout on outright failure).
func TransientBackend(ctx context.Context, op string, fn func() error) error {
	err := retrygo.Do(
		fn,
		retrygo.Context(ctx),
		retrygo.Attempts(3),
		retrygo.Delay(100*time.Millisecond),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
	)
	if err != nil {
		return errs.Transient(err, "%s failed after retries", op)
	}
	return nil
}
