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

// Command scheduler runs the preemptive scheduling worker pool and the
// recovery sweeper described in spec §4.6-4.7. It owns no HTTP surface;
// cmd/apiserver is the separate admission-facing process (spec §5).
package main

import (
	"flag"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"github.com/deploysched/scheduler/pkg/controllers/sweeper"
	"github.com/deploysched/scheduler/pkg/controllers/worker"
	"github.com/deploysched/scheduler/pkg/operator"
	"github.com/deploysched/scheduler/pkg/retry"
)

func main() {
	fs := flag.NewFlagSet("scheduler", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", ":9090", "listen address for the /metrics endpoint")

	ctx, op := operator.NewOperator("scheduler", fs, os.Args[1:])
	defer func() { lo.Must0(op.Close()) }()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		op.Log.Infow("serving metrics", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && ctx.Err() == nil {
			op.Log.Errorw("metrics server exited", "error", err)
		}
	}()

	w := &worker.Worker{
		Store:             op.Store,
		Queue:             op.Queue,
		Lock:              op.Lock,
		Recorder:          op.Recorder,
		Backoff:           retry.Backoff{Base: op.Options.RetryBase, Cap: op.Options.RetryCap},
		MaxAttempts:       op.Options.MaxAttempts,
		LockTTL:           op.Options.LockTTL,
		WaitTimeout:       op.Options.QueueVisibility,
		VisibilityTimeout: op.Options.QueueVisibility,
	}

	sw := &sweeper.Sweeper{Store: op.Store, Queue: op.Queue, Log: op.Log}
	if _, err := sw.Start(ctx, sweeper.DefaultSchedule); err != nil {
		op.Log.Fatalw("starting recovery sweeper", "error", err)
	}

	go func() {
		for range time.Tick(time.Second) {
			if ctx.Err() != nil {
				return
			}
			if _, err := op.Queue.PromoteDue(ctx); err != nil {
				op.Log.Errorw("promoting due delayed jobs", "error", err)
			}
			if _, err := op.Queue.ReclaimExpired(ctx); err != nil {
				op.Log.Errorw("reclaiming expired reservations", "error", err)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < op.Options.WorkerConcurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := w.Loop(ctx); err != nil && ctx.Err() == nil {
				op.Log.Errorw("worker loop exited", "worker", id, "error", err)
			}
		}(i)
	}

	<-ctx.Done()
	op.Log.Info("shutdown signal received, draining worker loops")
	wg.Wait()
}
