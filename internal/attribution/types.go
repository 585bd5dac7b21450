package attribution

// Job is a unit of work owned by a tenant. Impact is the cached scalar
// written back by the recalculation path; the engine never reads it.
type Job struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Function string  `json:"function,omitempty"`
	Done     bool    `json:"done"`
	Impact   float64 `json:"impact"`
}

// Output is an intermediate metric ("PI") that jobs feed into.
type Output struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Target float64 `json:"target"`
	Unit   string  `json:"unit,omitempty"`
}

// Outcome is a top-level mission metric ("QBO") with an allocated share of
// the tenant's 100-point mission budget. The engine normalizes by whatever
// point total it observes, so the 100-point convention is not assumed.
type Outcome struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	TargetValue    float64 `json:"target_value"`
	CurrentValue   float64 `json:"current_value"`
	BeginningValue float64 `json:"beginning_value"`
	Points         float64 `json:"points"`
}

// JobOutputEdge maps a job to an output with an absolute impact magnitude.
type JobOutputEdge struct {
	JobID       string  `json:"job_id"`
	OutputID    string  `json:"output_id"`
	ImpactValue float64 `json:"impact_value"`
	Target      float64 `json:"target"`
}

// OutputOutcomeEdge maps an output to an outcome. Impact is already a
// percentage: "this output accounts for Impact% of the outcome's movement".
type OutputOutcomeEdge struct {
	OutputID  string  `json:"output_id"`
	OutcomeID string  `json:"outcome_id"`
	Impact    float64 `json:"impact"`
}

// MappingData is the denormalized snapshot of one tenant's planning graph,
// as returned by the aggregate fetch. The engine treats it as read-only.
type MappingData struct {
	Jobs           []Job               `json:"jobs"`
	Outputs        []Output            `json:"outputs"`
	Outcomes       []Outcome           `json:"outcomes"`
	JobOutputs     []JobOutputEdge     `json:"job_output_mappings"`
	OutputOutcomes []OutputOutcomeEdge `json:"output_outcome_mappings"`
}

// SortOrder controls how breakdowns are ordered by total impact.
type SortOrder string

const (
	SortHighToLow SortOrder = "high"
	SortLowToHigh SortOrder = "low"
)

// Options configures an engine run.
type Options struct {
	// Sort is the ordering of the result by total impact. Defaults to
	// SortHighToLow. Ties keep input order (sorts are stable).
	Sort SortOrder

	// KeyOutcomesByID switches Job→Outcome aggregation from display-name
	// keys to outcome IDs. Name keying matches the historical behavior and
	// silently merges distinct outcomes that share a name; ID keying avoids
	// the collision at the cost of changing aggregate output for tenants
	// that rely on the merge.
	KeyOutcomesByID bool
}

// Segment is one slice of a stacked bar: the share of a bar attributed to a
// single counterpart entity.
type Segment struct {
	Key        string  `json:"key"`
	Percentage float64 `json:"percentage"`
}

// Breakdown is one entity's attribution result: its per-counterpart segments
// plus its normalized share of the overall mission.
type Breakdown struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Segments    []Segment `json:"segments"`
	TotalImpact float64   `json:"total_impact"`
}
