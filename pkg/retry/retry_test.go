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

package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deploysched/scheduler/pkg/errs"
	"github.com/deploysched/scheduler/pkg/retry"
)

func TestBackoffDelayIsCappedExponential(t *testing.T) {
	b := retry.Backoff{Base: 5 * time.Second, Cap: 60 * time.Second}

	assert.GreaterOrEqual(t, b.Delay(1), 5*time.Second)
	assert.Less(t, b.Delay(1), 7*time.Second)

	assert.GreaterOrEqual(t, b.Delay(4), 40*time.Second)

	// Past the point where base*2^(n-1) exceeds cap, delay saturates at cap
	// plus jitter rather than growing further.
	assert.GreaterOrEqual(t, b.Delay(10), 60*time.Second)
	assert.Less(t, b.Delay(10), 72*time.Second)
}

func TestTransientBackendWrapsFailureAsTransient(t *testing.T) {
	boom := errors.New("connection reset")
	err := retry.TransientBackend(context.Background(), "store.read", func() error {
		return boom
	})
	assert.True(t, errs.Is(err, errs.KindTransientBackend))
}

func TestTransientBackendSucceedsOnEventualSuccess(t *testing.T) {
	attempts := 0
	err := retry.TransientBackend(context.Background(), "store.read", func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
