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

// Package httpapi is the trivial adapter Design Notes §9 calls for: it
// binds the HTTP surface of spec §6 to pkg/admission, doing request
// decode/response encode only. No scheduling or authorization logic lives
// here — see pkg/admission for that.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/deploysched/scheduler/pkg/admission"
	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/errs"
	"github.com/deploysched/scheduler/pkg/store"
)

// ActorFromRequest resolves the validated caller identity. Authentication
// itself is out of scope (spec §1); production wiring supplies a real
// implementation (e.g. reading a verified JWT) in its place.
type ActorFromRequest func(r *http.Request) (v1alpha1.Actor, error)

type Server struct {
	Admission *admission.Admission
	Store     store.Store
	Actor     ActorFromRequest
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/deployments/", s.createDeployment).Methods(http.MethodPost)
	r.HandleFunc("/deployments/", s.listDeployments).Methods(http.MethodGet)
	r.HandleFunc("/deployments/{id}", s.getDeployment).Methods(http.MethodGet)
	r.HandleFunc("/deployments/{id}", s.deleteDeployment).Methods(http.MethodDelete)
	r.HandleFunc("/clusters/", s.createCluster).Methods(http.MethodPost)
	r.HandleFunc("/clusters/", s.listClusters).Methods(http.MethodGet)
	r.HandleFunc("/clusters/{id}/resources", s.clusterResources).Methods(http.MethodGet)
	r.HandleFunc("/clusters/{id}", s.deleteCluster).Methods(http.MethodDelete)
	return r
}

type createDeploymentRequest struct {
	Name      string `json:"name"`
	ClusterID int64  `json:"cluster_id"`
	RAM       int64  `json:"ram"`
	CPU       int64  `json:"cpu"`
	GPU       int64  `json:"gpu"`
	Priority  int    `json:"priority"`
}

type deploymentResponse struct {
	ID     int64                     `json:"id"`
	Status v1alpha1.DeploymentStatus `json:"status"`
}

func (s *Server) createDeployment(w http.ResponseWriter, r *http.Request) {
	actor, err := s.Actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	d, err := s.Admission.SubmitDeployment(r.Context(), actor, admission.SubmitDeploymentRequest{
		ClusterID: req.ClusterID,
		Name:      req.Name,
		Request:   v1alpha1.ResourceVector{CPU: req.CPU, RAM: req.RAM, GPU: req.GPU},
		Priority:  req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deploymentResponse{ID: d.ID, Status: d.Status})
}

func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request) {
	clusterID, err := strconv.ParseInt(r.URL.Query().Get("cluster_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cluster_id is required"})
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	list, err := s.Store.ListDeploymentsByCluster(r.Context(), clusterID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !includeDeleted {
		filtered := list[:0]
		for _, d := range list {
			if d.Status != v1alpha1.StatusDeleted {
				filtered = append(filtered, d)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	d, err := s.Store.Deployment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDeployment(w http.ResponseWriter, r *http.Request) {
	actor, err := s.Actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := s.Admission.CancelDeployment(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createClusterRequest struct {
	Name string `json:"name"`
	RAM  int64  `json:"ram"`
	CPU  int64  `json:"cpu"`
	GPU  int64  `json:"gpu"`
}

func (s *Server) createCluster(w http.ResponseWriter, r *http.Request) {
	actor, err := s.Actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != v1alpha1.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required"})
		return
	}
	var req createClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	c, err := s.Store.CreateCluster(r.Context(), v1alpha1.Cluster{
		OrgID:    actor.OrgID,
		Name:     req.Name,
		Capacity: v1alpha1.ResourceVector{CPU: req.CPU, RAM: req.RAM, GPU: req.GPU},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listClusters(w http.ResponseWriter, r *http.Request) {
	actor, err := s.Actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	list, err := s.Store.ListClusters(r.Context(), actor.OrgID, includeDeleted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) clusterResources(w http.ResponseWriter, r *http.Request) {
	actor, err := s.Actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	state, err := s.Admission.ListClusterState(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) deleteCluster(w http.ResponseWriter, r *http.Request) {
	actor, err := s.Actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != v1alpha1.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := s.Store.SoftDeleteCluster(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the pkg/errs taxonomy onto the status codes spec §6
// names; anything untagged is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindAuthz:
		status = http.StatusForbidden
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflictTransition:
		status = http.StatusConflict
	case errs.KindBusy:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
