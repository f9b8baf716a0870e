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
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript performs a compare-and-delete so a release only succeeds
// when the caller still owns the lease; a no-op otherwise.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// RedisService implements Service against a shared Redis instance, using
// SET NX PX for acquire and a Lua compare-and-delete for release.
type RedisService struct {
	client redis.UniversalClient
}

func NewRedisService(client redis.UniversalClient) *RedisService {
	return &RedisService{client: client}
}

func (s *RedisService) Acquire(ctx context.Context, clusterID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, Key(clusterID), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errBusy(clusterID)
	}
	return token, nil
}

func (s *RedisService) Release(ctx context.Context, clusterID int64, token string) error {
	_, err := releaseScript.Run(ctx, s.client, []string{Key(clusterID)}, token).Result()
	// redis.Nil isn't returned by EVAL for an integer reply (the script
	// always returns 0 or 1), so any error here is a genuine backend error.
	if err == redis.Nil {
		return nil
	}
	return err
}
