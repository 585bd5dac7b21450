package types

// SessionRequest starts or resumes a workspace session
type SessionRequest struct {
	TenantID      string `json:"tenant_id,omitempty"`
	WorkspaceName string `json:"workspace_name,omitempty"`
}

// SessionResponse carries the session token for subsequent requests
type SessionResponse struct {
	TenantID string `json:"tenant_id"`
	Token    string `json:"token"`
	IsPaid   bool   `json:"is_paid"`
}

// JobRequest creates or updates a job
type JobRequest struct {
	Name     string `json:"name" binding:"required"`
	Function string `json:"function"`
	Done     bool   `json:"done"`
}

// OutputRequest creates or updates an output
type OutputRequest struct {
	Name   string  `json:"name" binding:"required"`
	Target float64 `json:"target"`
	Unit   string  `json:"unit"`
}

// OutcomeRequest creates or updates an outcome
type OutcomeRequest struct {
	Name           string  `json:"name" binding:"required"`
	TargetValue    float64 `json:"target_value"`
	CurrentValue   float64 `json:"current_value"`
	BeginningValue float64 `json:"beginning_value"`
	Points         float64 `json:"points"`
}

// JobOutputMappingRequest links a job to an output
type JobOutputMappingRequest struct {
	JobID       string  `json:"job_id" binding:"required"`
	OutputID    string  `json:"output_id" binding:"required"`
	ImpactValue float64 `json:"impact_value"`
	Target      float64 `json:"target"`
}

// OutputOutcomeMappingRequest links an output to an outcome
type OutputOutcomeMappingRequest struct {
	OutputID  string  `json:"output_id" binding:"required"`
	OutcomeID string  `json:"outcome_id" binding:"required"`
	Impact    float64 `json:"impact"`
}

// RecalculateResponse reports a completed impact recalculation
type RecalculateResponse struct {
	JobsUpdated int    `json:"jobs_updated"`
	TenantID    string `json:"tenant_id"`
}

// CheckoutRequest creates a Stripe checkout session
type CheckoutRequest struct {
	Plan string `json:"plan" binding:"required"` // "pro"
}
