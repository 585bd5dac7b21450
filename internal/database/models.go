package database

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents one workspace. All planning entities are scoped to a
// tenant; the mission-point budget is per tenant.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsPaid    bool      `json:"is_paid" db:"is_paid"`
	StripeID  string    `json:"-" db:"stripe_customer_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Job is a user-defined unit of work. Impact is the cached attribution
// scalar; it is only ever written by the recalculation path. Jobs are
// soft-deleted via DeletedAt.
type Job struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	Name      string     `json:"name" db:"name"`
	Function  string     `json:"function,omitempty" db:"function"`
	Done      bool       `json:"done" db:"done"`
	Impact    float64    `json:"impact" db:"impact"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// Output is an intermediate metric ("PI") that jobs contribute to.
type Output struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Target    float64   `json:"target" db:"target"`
	Unit      string    `json:"unit,omitempty" db:"unit"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Outcome is a top-level mission metric ("QBO") carrying a share of the
// tenant's 100-point mission budget. The budget total is a soft convention;
// nothing here enforces it.
type Outcome struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	Name           string    `json:"name" db:"name"`
	TargetValue    float64   `json:"target_value" db:"target_value"`
	CurrentValue   float64   `json:"current_value" db:"current_value"`
	BeginningValue float64   `json:"beginning_value" db:"beginning_value"`
	Points         float64   `json:"points" db:"points"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// JobOutputMapping is a weighted edge from a job to an output. ImpactValue
// is an absolute magnitude, not a percentage.
type JobOutputMapping struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	JobID       string    `json:"job_id" db:"job_id"`
	OutputID    string    `json:"output_id" db:"output_id"`
	ImpactValue float64   `json:"impact_value" db:"impact_value"`
	Target      float64   `json:"target" db:"target"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// OutputOutcomeMapping is a weighted edge from an output to an outcome.
// Impact is a percentage of the outcome's movement.
type OutputOutcomeMapping struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	OutputID  string    `json:"output_id" db:"output_id"`
	OutcomeID string    `json:"outcome_id" db:"outcome_id"`
	Impact    float64   `json:"impact" db:"impact"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Payment records a billing event for a tenant.
type Payment struct {
	ID              string    `json:"id" db:"id"`
	TenantID        string    `json:"tenant_id" db:"tenant_id"`
	StripePaymentID string    `json:"stripe_payment_id" db:"stripe_payment_id"`
	Amount          int64     `json:"amount" db:"amount"` // cents
	Currency        string    `json:"currency" db:"currency"`
	Status          string    `json:"status" db:"status"`
	Type            string    `json:"type" db:"type"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// NewPayment creates a subscription payment record with a generated ID.
func NewPayment(tenantID, stripePaymentID, currency, status string, amount int64) *Payment {
	return &Payment{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		StripePaymentID: stripePaymentID,
		Amount:          amount,
		Currency:        currency,
		Status:          status,
		Type:            "subscription",
		CreatedAt:       time.Now(),
	}
}

// NewTenant creates a tenant with a generated ID.
func NewTenant(name string) *Tenant {
	now := time.Now()
	return &Tenant{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewJob creates a job with a generated ID and zero impact.
func NewJob(tenantID, name, function string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Function:  function,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewOutput creates an output with a generated ID.
func NewOutput(tenantID, name string, target float64, unit string) *Output {
	now := time.Now()
	return &Output{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Target:    target,
		Unit:      unit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewOutcome creates an outcome with a generated ID.
func NewOutcome(tenantID, name string, targetValue, currentValue, beginningValue, points float64) *Outcome {
	now := time.Now()
	return &Outcome{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Name:           name,
		TargetValue:    targetValue,
		CurrentValue:   currentValue,
		BeginningValue: beginningValue,
		Points:         points,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewJobOutputMapping creates a job→output edge with a generated ID.
func NewJobOutputMapping(tenantID, jobID, outputID string, impactValue, target float64) *JobOutputMapping {
	return &JobOutputMapping{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		JobID:       jobID,
		OutputID:    outputID,
		ImpactValue: impactValue,
		Target:      target,
		CreatedAt:   time.Now(),
	}
}

// NewOutputOutcomeMapping creates an output→outcome edge with a generated ID.
func NewOutputOutcomeMapping(tenantID, outputID, outcomeID string, impact float64) *OutputOutcomeMapping {
	return &OutputOutcomeMapping{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		OutputID:  outputID,
		OutcomeID: outcomeID,
		Impact:    impact,
		CreatedAt: time.Now(),
	}
}
