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

// Command apiserver runs the admission-facing HTTP surface of spec §6,
// as its own process, separate from the scheduling worker pool run by
// cmd/scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/deploysched/scheduler/internal/httpapi"
	"github.com/deploysched/scheduler/pkg/admission"
	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/operator"
)

func main() {
	fs := flag.NewFlagSet("apiserver", flag.ExitOnError)

	ctx, op := operator.NewOperator("apiserver", fs, os.Args[1:])
	defer func() { lo.Must0(op.Close()) }()

	srv := &httpapi.Server{
		Admission: &admission.Admission{Store: op.Store, Queue: op.Queue},
		Store:     op.Store,
		Actor:     actorFromHeaders,
	}

	httpServer := &http.Server{
		Addr:    op.Options.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			op.Log.Errorw("http server shutdown error", "error", err)
		}
	}()

	op.Log.Infow("serving admission api", "addr", op.Options.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		op.Log.Fatalw("admission api server exited", "error", err)
	}
}

// actorFromHeaders reads the caller identity off trusted headers set by an
// upstream authenticating proxy; this system does not itself authenticate
// requests (spec §1 Non-goals).
func actorFromHeaders(r *http.Request) (v1alpha1.Actor, error) {
	orgID, err := parseHeaderInt(r, "X-Org-Id")
	if err != nil {
		return v1alpha1.Actor{}, err
	}
	actorID, err := parseHeaderInt(r, "X-Actor-Id")
	if err != nil {
		return v1alpha1.Actor{}, err
	}
	role := v1alpha1.RoleDeveloper
	if r.Header.Get("X-Actor-Role") == string(v1alpha1.RoleAdmin) {
		role = v1alpha1.RoleAdmin
	}
	return v1alpha1.Actor{ID: actorID, OrgID: orgID, Role: role}, nil
}

func parseHeaderInt(r *http.Request, header string) (int64, error) {
	raw := r.Header.Get(header)
	if raw == "" {
		return 0, errors.New(header + " header is required")
	}
	return strconv.ParseInt(raw, 10, 64)
}
