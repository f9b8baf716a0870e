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

package events

import (
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var _ Recorder = (*LogRecorder)(nil)

// defaultDedupeTimeout matches the debounce window the teacher's own event
// recorder uses for repeated events against the same object.
const defaultDedupeTimeout = 2 * time.Minute

// LogRecorder publishes events as structured log lines. It is the
// production Recorder; there is no external event bus in this system's
// scope, only the operational log stream.
type LogRecorder struct {
	log   *zap.SugaredLogger
	cache *cache.Cache
}

func NewLogRecorder(log *zap.SugaredLogger) *LogRecorder {
	return &LogRecorder{
		log:   log,
		cache: cache.New(defaultDedupeTimeout, 10*time.Second),
	}
}

func (r *LogRecorder) Publish(evt Event) {
	// Dedupe same events that involve the same object and are close
	// together, before the rate limiter even runs.
	if len(evt.DedupeValues) > 0 && !r.shouldCreateEvent(evt) {
		return
	}
	if evt.RateLimiter != nil && !evt.RateLimiter.Allow() {
		return
	}
	fields := []any{
		"deployment_id", evt.DeploymentID,
		"cluster_id", evt.ClusterID,
		"reason", evt.Reason,
	}
	if evt.Type == EventTypeWarning {
		r.log.Warnw(evt.Message, fields...)
		return
	}
	r.log.Infow(evt.Message, fields...)
}

func (r *LogRecorder) shouldCreateEvent(evt Event) bool {
	timeout := defaultDedupeTimeout
	if evt.DedupeTimeout != 0 {
		timeout = evt.DedupeTimeout
	}
	key := evt.DedupeKey()
	if _, exists := r.cache.Get(key); exists {
		return false
	}
	r.cache.Set(key, nil, timeout)
	return true
}
