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

// Package operator is the process bootstrap shared by cmd/scheduler and
// cmd/apiserver: it resolves pkg/options, wires the Postgres store, the two
// Redis-backed services, and the log-based event recorder, and hands back a
// root context cancelled on SIGINT/SIGTERM. Grounded on the teacher's own
// operator.NewOperator, generalized away from the Kubernetes controller
// manager it originally bootstrapped toward this system's own backends.
package operator

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/deploysched/scheduler/pkg/events"
	"github.com/deploysched/scheduler/pkg/lock"
	"github.com/deploysched/scheduler/pkg/metrics"
	"github.com/deploysched/scheduler/pkg/options"
	"github.com/deploysched/scheduler/pkg/queue"
	"github.com/deploysched/scheduler/pkg/store"
	"github.com/deploysched/scheduler/pkg/store/cache"
	"github.com/deploysched/scheduler/pkg/store/postgres"

	"github.com/prometheus/client_golang/prometheus"
)

// Operator holds everything a scheduler worker, recovery sweeper, or
// admission HTTP server needs once options have resolved.
type Operator struct {
	Options  options.Options
	Store    store.Store
	Queue    queue.Service
	Lock     lock.Service
	Recorder events.Recorder
	Log      *zap.SugaredLogger

	pgStore *postgres.Store
	cancel  context.CancelFunc
}

// NewOperator parses fs/args into Options, opens the Postgres store and the
// two Redis clients, and registers this process's metrics against the
// default prometheus registry. It panics on unrecoverable setup failure, the
// same fail-fast posture the teacher's own NewOperator takes via lo.Must.
// The returned context is cancelled on SIGINT/SIGTERM; callers defer
// Operator.Close to release that signal notification and the store.
func NewOperator(component string, fs *flag.FlagSet, args []string) (context.Context, *Operator) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	opts := lo.Must(options.Parse(fs, args))

	zapLog := lo.Must(zap.NewProduction())
	log := zapLog.Sugar().With("component", component)

	pgStore := lo.Must(postgres.Open(opts.StoreDSN))

	queueClient := redis.NewClient(&redis.Options{Addr: opts.QueueRedisAddr})
	lockClient := redis.NewClient(&redis.Options{Addr: opts.LockRedisAddr})

	metrics.MustRegister(prometheus.DefaultRegisterer)

	return ctx, &Operator{
		Options:  opts,
		Store:    cache.New(pgStore, cache.DefaultTTL),
		Queue:    queue.NewRedisService(queueClient),
		Lock:     lock.NewRedisService(lockClient),
		Recorder: events.NewLogRecorder(log),
		Log:      log,
		pgStore:  pgStore,
		cancel:   cancel,
	}
}

// Close stops the signal notification and releases the Postgres connection
// pool. Redis clients are left to the process's normal exit; neither
// backend needs an ordered teardown for the at-least-once semantics this
// system relies on (spec §4.5).
func (o *Operator) Close() error {
	if o.cancel != nil {
		o.cancel()
	}
	if o.pgStore == nil {
		return nil
	}
	if err := o.pgStore.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
