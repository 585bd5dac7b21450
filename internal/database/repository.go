package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository handles database operations. All reads and writes are scoped
// to a tenant; cross-tenant access is a bug in the caller.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreateTenant finds a tenant by ID or creates a fresh workspace when
// none exists. First contact with an unknown tenant ID bootstraps it.
func (r *Repository) GetOrCreateTenant(tenantID, name string) (*Tenant, error) {
	var t Tenant
	err := r.db.QueryRow(`
		SELECT id, name, is_paid, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM tenants WHERE id = ?
	`, tenantID).Scan(&t.ID, &t.Name, &t.IsPaid, &t.StripeID, &t.CreatedAt, &t.UpdatedAt)

	if err == nil {
		return &t, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}

	t = *NewTenant(name)
	if tenantID != "" {
		t.ID = tenantID
	}
	_, err = r.db.Exec(`
		INSERT INTO tenants (id, name, is_paid, stripe_customer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.IsPaid, t.StripeID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	return &t, nil
}

// GetTenantByStripeCustomerID gets a tenant by its Stripe customer ID
func (r *Repository) GetTenantByStripeCustomerID(stripeCustomerID string) (*Tenant, error) {
	var t Tenant
	err := r.db.QueryRow(`
		SELECT id, name, is_paid, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM tenants WHERE stripe_customer_id = ?
	`, stripeCustomerID).Scan(&t.ID, &t.Name, &t.IsPaid, &t.StripeID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by stripe customer ID: %w", err)
	}
	return &t, nil
}

// UpdateTenantPlan updates a tenant's paid status
func (r *Repository) UpdateTenantPlan(tenantID string, isPaid bool, stripeCustomerID string) error {
	_, err := r.db.Exec(`
		UPDATE tenants SET is_paid = ?, stripe_customer_id = ?, updated_at = ? WHERE id = ?
	`, isPaid, stripeCustomerID, time.Now(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant plan: %w", err)
	}
	return nil
}

// CreateJob inserts a job
func (r *Repository) CreateJob(job *Job) error {
	_, err := r.db.Exec(`
		INSERT INTO jobs (id, tenant_id, name, function, done, impact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.TenantID, job.Name, job.Function, job.Done, job.Impact, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob fetches one live job
func (r *Repository) GetJob(tenantID, jobID string) (*Job, error) {
	stmt, err := r.db.GetPreparedStatement("get_job")
	if err != nil {
		return nil, err
	}

	var job Job
	err = stmt.QueryRow(jobID, tenantID).Scan(
		&job.ID, &job.TenantID, &job.Name, &job.Function,
		&job.Done, &job.Impact, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns the tenant's live jobs ranked by cached impact. Ties
// keep creation order.
func (r *Repository) ListJobs(tenantID string) ([]Job, error) {
	stmt, err := r.db.GetPreparedStatement("list_jobs")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(
			&job.ID, &job.TenantID, &job.Name, &job.Function,
			&job.Done, &job.Impact, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob updates a job's user-editable fields (not the impact cache)
func (r *Repository) UpdateJob(job *Job) error {
	res, err := r.db.Exec(`
		UPDATE jobs SET name = ?, function = ?, done = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL
	`, job.Name, job.Function, job.Done, time.Now(), job.ID, job.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return requireRowAffected(res, "job")
}

// SoftDeleteJob marks a job deleted without removing its row. Mapping edges
// pointing at it become dangling and the engine skips them.
func (r *Repository) SoftDeleteJob(tenantID, jobID string) error {
	res, err := r.db.Exec(`
		UPDATE jobs SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL
	`, time.Now(), time.Now(), jobID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return requireRowAffected(res, "job")
}

// UpdateJobImpacts writes the recomputed impact scalar for every job of a
// tenant in one transaction.
func (r *Repository) UpdateJobImpacts(tenantID string, impacts map[string]float64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin impact update: %w", err)
	}
	defer tx.Rollback()

	stmt, err := r.db.GetPreparedStatement("update_job_impact")
	if err != nil {
		return err
	}
	txStmt := tx.Stmt(stmt)
	defer txStmt.Close()

	now := time.Now()
	for jobID, impact := range impacts {
		if _, err := txStmt.Exec(impact, now, jobID, tenantID); err != nil {
			return fmt.Errorf("failed to update impact for job %s: %w", jobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit impact update: %w", err)
	}
	return nil
}

// CreateOutput inserts an output
func (r *Repository) CreateOutput(output *Output) error {
	_, err := r.db.Exec(`
		INSERT INTO outputs (id, tenant_id, name, target, unit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, output.ID, output.TenantID, output.Name, output.Target, output.Unit, output.CreatedAt, output.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	return nil
}

// ListOutputs returns the tenant's outputs in creation order
func (r *Repository) ListOutputs(tenantID string) ([]Output, error) {
	rows, err := r.db.Query(`
		SELECT id, tenant_id, name, target, COALESCE(unit, ''), created_at, updated_at
		FROM outputs WHERE tenant_id = ? ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	defer rows.Close()

	var outputs []Output
	for rows.Next() {
		var o Output
		if err := rows.Scan(&o.ID, &o.TenantID, &o.Name, &o.Target, &o.Unit, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

// UpdateOutput updates an output
func (r *Repository) UpdateOutput(output *Output) error {
	res, err := r.db.Exec(`
		UPDATE outputs SET name = ?, target = ?, unit = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`, output.Name, output.Target, output.Unit, time.Now(), output.ID, output.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update output: %w", err)
	}
	return requireRowAffected(res, "output")
}

// DeleteOutput removes an output; its mapping edges are left dangling and
// silently skipped by the engine.
func (r *Repository) DeleteOutput(tenantID, outputID string) error {
	res, err := r.db.Exec(`DELETE FROM outputs WHERE id = ? AND tenant_id = ?`, outputID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete output: %w", err)
	}
	return requireRowAffected(res, "output")
}

// CreateOutcome inserts an outcome
func (r *Repository) CreateOutcome(outcome *Outcome) error {
	_, err := r.db.Exec(`
		INSERT INTO outcomes (id, tenant_id, name, target_value, current_value, beginning_value, points, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, outcome.ID, outcome.TenantID, outcome.Name, outcome.TargetValue, outcome.CurrentValue,
		outcome.BeginningValue, outcome.Points, outcome.CreatedAt, outcome.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns the tenant's outcomes in creation order
func (r *Repository) ListOutcomes(tenantID string) ([]Outcome, error) {
	rows, err := r.db.Query(`
		SELECT id, tenant_id, name, target_value, current_value, beginning_value, points, created_at, updated_at
		FROM outcomes WHERE tenant_id = ? ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var c Outcome
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.TargetValue, &c.CurrentValue,
			&c.BeginningValue, &c.Points, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, c)
	}
	return outcomes, rows.Err()
}

// UpdateOutcome updates an outcome
func (r *Repository) UpdateOutcome(outcome *Outcome) error {
	res, err := r.db.Exec(`
		UPDATE outcomes SET name = ?, target_value = ?, current_value = ?, beginning_value = ?, points = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`, outcome.Name, outcome.TargetValue, outcome.CurrentValue, outcome.BeginningValue,
		outcome.Points, time.Now(), outcome.ID, outcome.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}
	return requireRowAffected(res, "outcome")
}

// DeleteOutcome removes an outcome
func (r *Repository) DeleteOutcome(tenantID, outcomeID string) error {
	res, err := r.db.Exec(`DELETE FROM outcomes WHERE id = ? AND tenant_id = ?`, outcomeID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete outcome: %w", err)
	}
	return requireRowAffected(res, "outcome")
}

// CreateJobOutputMapping inserts a job→output edge
func (r *Repository) CreateJobOutputMapping(m *JobOutputMapping) error {
	_, err := r.db.Exec(`
		INSERT INTO job_output_mappings (id, tenant_id, job_id, output_id, impact_value, target, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.TenantID, m.JobID, m.OutputID, m.ImpactValue, m.Target, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job-output mapping: %w", err)
	}
	return nil
}

// ListJobOutputMappings returns the tenant's job→output edges
func (r *Repository) ListJobOutputMappings(tenantID string) ([]JobOutputMapping, error) {
	stmt, err := r.db.GetPreparedStatement("list_job_output_mappings")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job-output mappings: %w", err)
	}
	defer rows.Close()

	var mappings []JobOutputMapping
	for rows.Next() {
		var m JobOutputMapping
		if err := rows.Scan(&m.ID, &m.TenantID, &m.JobID, &m.OutputID, &m.ImpactValue, &m.Target, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job-output mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// DeleteJobOutputMapping removes a job→output edge
func (r *Repository) DeleteJobOutputMapping(tenantID, mappingID string) error {
	res, err := r.db.Exec(`DELETE FROM job_output_mappings WHERE id = ? AND tenant_id = ?`, mappingID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete job-output mapping: %w", err)
	}
	return requireRowAffected(res, "job-output mapping")
}

// CreateOutputOutcomeMapping inserts an output→outcome edge
func (r *Repository) CreateOutputOutcomeMapping(m *OutputOutcomeMapping) error {
	_, err := r.db.Exec(`
		INSERT INTO output_outcome_mappings (id, tenant_id, output_id, outcome_id, impact, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.TenantID, m.OutputID, m.OutcomeID, m.Impact, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create output-outcome mapping: %w", err)
	}
	return nil
}

// ListOutputOutcomeMappings returns the tenant's output→outcome edges
func (r *Repository) ListOutputOutcomeMappings(tenantID string) ([]OutputOutcomeMapping, error) {
	stmt, err := r.db.GetPreparedStatement("list_output_outcome_mappings")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list output-outcome mappings: %w", err)
	}
	defer rows.Close()

	var mappings []OutputOutcomeMapping
	for rows.Next() {
		var m OutputOutcomeMapping
		if err := rows.Scan(&m.ID, &m.TenantID, &m.OutputID, &m.OutcomeID, &m.Impact, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output-outcome mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// DeleteOutputOutcomeMapping removes an output→outcome edge
func (r *Repository) DeleteOutputOutcomeMapping(tenantID, mappingID string) error {
	res, err := r.db.Exec(`DELETE FROM output_outcome_mappings WHERE id = ? AND tenant_id = ?`, mappingID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete output-outcome mapping: %w", err)
	}
	return requireRowAffected(res, "output-outcome mapping")
}

// CreatePayment creates a payment record
func (r *Repository) CreatePayment(payment *Payment) error {
	_, err := r.db.Exec(`
		INSERT INTO payments (id, tenant_id, stripe_payment_id, amount, currency, status, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, payment.ID, payment.TenantID, payment.StripePaymentID, payment.Amount,
		payment.Currency, payment.Status, payment.Type, payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func requireRowAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %w", entity, sql.ErrNoRows)
	}
	return nil
}
