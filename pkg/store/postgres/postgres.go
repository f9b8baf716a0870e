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

// Package postgres implements pkg/store.Store against the schema in spec §6,
// using database/sql with lib/pq as the driver. Every Tx method runs inside
// one *sql.Tx opened with SELECT ... FOR UPDATE on the rows it touches, the
// database's analogue to pkg/store.FakeStore's per-cluster mutex.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	v1alpha1 "github.com/deploysched/scheduler/pkg/apis/v1alpha1"
	"github.com/deploysched/scheduler/pkg/errs"
	"github.com/deploysched/scheduler/pkg/lifecycle"
	"github.com/deploysched/scheduler/pkg/retry"
	"github.com/deploysched/scheduler/pkg/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCluster(ctx context.Context, c v1alpha1.Cluster) (v1alpha1.Cluster, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO cluster (org_id, name, capacity_cpu, capacity_ram, capacity_gpu, deleted)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id`,
		c.OrgID, c.Name, c.Capacity.CPU, c.Capacity.RAM, c.Capacity.GPU)
	if err := row.Scan(&c.ID); err != nil {
		return v1alpha1.Cluster{}, fmt.Errorf("inserting cluster: %w", err)
	}
	return c, nil
}

func scanCluster(row interface{ Scan(...any) error }) (v1alpha1.Cluster, error) {
	var c v1alpha1.Cluster
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Capacity.CPU, &c.Capacity.RAM, &c.Capacity.GPU, &c.Deleted)
	return c, err
}

const clusterColumns = `id, org_id, name, capacity_cpu, capacity_ram, capacity_gpu, deleted`

func (s *Store) Cluster(ctx context.Context, id int64) (v1alpha1.Cluster, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM cluster WHERE id = $1`, id)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return v1alpha1.Cluster{}, errs.NotFound(fmt.Sprintf("cluster %d not found", id))
	}
	if err != nil {
		return v1alpha1.Cluster{}, fmt.Errorf("scanning cluster: %w", err)
	}
	return c, nil
}

func (s *Store) ListClusters(ctx context.Context, orgID int64, includeDeleted bool) ([]v1alpha1.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM cluster WHERE org_id = $1`
	if !includeDeleted {
		query += ` AND deleted = false`
	}
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}
	defer rows.Close()
	var out []v1alpha1.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cluster row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SoftDeleteCluster(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cluster SET deleted = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting cluster: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound(fmt.Sprintf("cluster %d not found", id))
	}
	return nil
}

const deploymentColumns = `id, cluster_id, owner_id, org_id, name, request_cpu, request_ram, request_gpu,
	priority, status, created_at, updated_at, attempt_count, failure_reason, idempotency_key`

func scanDeployment(row interface{ Scan(...any) error }) (v1alpha1.Deployment, error) {
	var d v1alpha1.Deployment
	var failureReason, idempotencyKey sql.NullString
	err := row.Scan(&d.ID, &d.ClusterID, &d.OwnerID, &d.OrgID, &d.Name,
		&d.Request.CPU, &d.Request.RAM, &d.Request.GPU,
		&d.Priority, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.AttemptCount, &failureReason, &idempotencyKey)
	d.FailureReason = failureReason.String
	d.IdempotencyKey = idempotencyKey.String
	return d, err
}

func (s *Store) CreateDeployment(ctx context.Context, d v1alpha1.Deployment) (v1alpha1.Deployment, error) {
	if d.Status == "" {
		d.Status = v1alpha1.StatusPending
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO deployment (cluster_id, owner_id, org_id, name, request_cpu, request_ram, request_gpu, priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, created_at, updated_at`,
		d.ClusterID, d.OwnerID, d.OrgID, d.Name, d.Request.CPU, d.Request.RAM, d.Request.GPU, d.Priority, d.Status)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return v1alpha1.Deployment{}, fmt.Errorf("inserting deployment: %w", err)
	}
	return d, nil
}

func (s *Store) Deployment(ctx context.Context, id int64) (v1alpha1.Deployment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployment WHERE id = $1`, id)
	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return v1alpha1.Deployment{}, errs.NotFound(fmt.Sprintf("deployment %d not found", id))
	}
	if err != nil {
		return v1alpha1.Deployment{}, fmt.Errorf("scanning deployment: %w", err)
	}
	return d, nil
}

func (s *Store) ListDeploymentsByCluster(ctx context.Context, clusterID int64, statuses ...v1alpha1.DeploymentStatus) ([]v1alpha1.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployment WHERE cluster_id = $1`
	args := []any{clusterID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, statusesToText(statuses))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	defer rows.Close()
	return scanDeploymentRows(rows)
}

func (s *Store) ListPendingOrPreempted(ctx context.Context) ([]v1alpha1.Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deploymentColumns+` FROM deployment WHERE status = ANY($1)`,
		statusesToText([]v1alpha1.DeploymentStatus{v1alpha1.StatusPending, v1alpha1.StatusPreempted}))
	if err != nil {
		return nil, fmt.Errorf("listing pending/preempted deployments: %w", err)
	}
	defer rows.Close()
	return scanDeploymentRows(rows)
}

func scanDeploymentRows(rows *sql.Rows) ([]v1alpha1.Deployment, error) {
	var out []v1alpha1.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deployment row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func statusesToText(statuses []v1alpha1.DeploymentStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (s *Store) TransitionSingle(ctx context.Context, deploymentID int64, to v1alpha1.DeploymentStatus, opts store.TransitionOptions) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transition tx: %w", err)
	}
	defer tx.Rollback()

	if err := transitionRow(ctx, tx, deploymentID, to, opts); err != nil {
		return err
	}
	return tx.Commit()
}

func transitionRow(ctx context.Context, tx *sql.Tx, deploymentID int64, to v1alpha1.DeploymentStatus, opts store.TransitionOptions) error {
	var current v1alpha1.DeploymentStatus
	row := tx.QueryRowContext(ctx, `SELECT status FROM deployment WHERE id = $1 FOR UPDATE`, deploymentID)
	if err := row.Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return errs.NotFound(fmt.Sprintf("deployment %d not found", deploymentID))
		}
		return fmt.Errorf("locking deployment row: %w", err)
	}
	if err := lifecycle.Validate(current, to); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE deployment
		SET status = $1, updated_at = now(),
		    attempt_count = attempt_count + $2,
		    failure_reason = COALESCE(NULLIF($3, ''), failure_reason),
		    idempotency_key = COALESCE(NULLIF($4, ''), idempotency_key)
		WHERE id = $5`,
		to, boolToInt(opts.IncrementAttempt), opts.FailureReason, opts.IdempotencyKey, deploymentID)
	if err != nil {
		return fmt.Errorf("updating deployment status: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) WithClusterTransaction(ctx context.Context, clusterID int64, fn func(tx store.Tx) error) error {
	// Opening the transaction and taking the cluster row lock is the
	// genuinely transient part of this call (a dropped connection, a
	// lock-contention timeout); retry that step, but run fn exactly once so
	// its business decision is never replayed against stale in-memory state.
	var sqlTx *sql.Tx
	err := retry.TransientBackend(ctx, "begin cluster transaction", func() error {
		t, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		// Lock the cluster row first so two workers racing the same
		// cluster serialize here rather than on whichever deployment row
		// they touch next (spec §4.6 step 2).
		if _, err := t.ExecContext(ctx, `SELECT id FROM cluster WHERE id = $1 FOR UPDATE`, clusterID); err != nil {
			t.Rollback()
			return err
		}
		sqlTx = t
		return nil
	})
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{sqlTx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type tx struct {
	sqlTx *sql.Tx
}

func (t *tx) Cluster(ctx context.Context, clusterID int64) (v1alpha1.Cluster, error) {
	row := t.sqlTx.QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM cluster WHERE id = $1`, clusterID)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return v1alpha1.Cluster{}, errs.NotFound(fmt.Sprintf("cluster %d not found", clusterID))
	}
	return c, err
}

func (t *tx) Deployment(ctx context.Context, deploymentID int64) (v1alpha1.Deployment, error) {
	row := t.sqlTx.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployment WHERE id = $1 FOR UPDATE`, deploymentID)
	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return v1alpha1.Deployment{}, errs.NotFound(fmt.Sprintf("deployment %d not found", deploymentID))
	}
	return d, err
}

func (t *tx) RunningOnCluster(ctx context.Context, clusterID int64) ([]v1alpha1.Deployment, error) {
	rows, err := t.sqlTx.QueryContext(ctx, `SELECT `+deploymentColumns+` FROM deployment WHERE cluster_id = $1 AND status = $2 FOR UPDATE`,
		clusterID, v1alpha1.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("listing running deployments: %w", err)
	}
	defer rows.Close()
	return scanDeploymentRows(rows)
}

func (t *tx) Transition(ctx context.Context, deploymentID int64, to v1alpha1.DeploymentStatus, opts store.TransitionOptions) error {
	return transitionRow(ctx, t.sqlTx, deploymentID, to, opts)
}

func (t *tx) IncrementAttempt(ctx context.Context, deploymentID int64) (int, error) {
	var count int
	row := t.sqlTx.QueryRowContext(ctx, `
		UPDATE deployment SET attempt_count = attempt_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING attempt_count`, deploymentID)
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, errs.NotFound(fmt.Sprintf("deployment %d not found", deploymentID))
		}
		return 0, fmt.Errorf("incrementing attempt count: %w", err)
	}
	return count, nil
}
