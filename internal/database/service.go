package database

import (
	"fmt"
	"log/slog"

	"github.com/compassplan/compass/internal/attribution"
)

// PlanningService provides the aggregate read and the impact-recalculation
// write path over a tenant's planning graph. It is the only code that
// touches the cached impact column on jobs.
type PlanningService struct {
	repo *Repository
}

// NewPlanningService creates a new planning service
func NewPlanningService(repo *Repository) *PlanningService {
	return &PlanningService{repo: repo}
}

// GetMappingData fetches a tenant's full planning graph as one denormalized
// snapshot, shaped for the attribution engine. Names are pre-joined so the
// engine never does foreign lookups.
func (s *PlanningService) GetMappingData(tenantID string) (*attribution.MappingData, error) {
	jobs, err := s.repo.ListJobs(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs: %w", err)
	}
	outputs, err := s.repo.ListOutputs(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outputs: %w", err)
	}
	outcomes, err := s.repo.ListOutcomes(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outcomes: %w", err)
	}
	jobOutputs, err := s.repo.ListJobOutputMappings(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job-output mappings: %w", err)
	}
	outputOutcomes, err := s.repo.ListOutputOutcomeMappings(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch output-outcome mappings: %w", err)
	}

	data := &attribution.MappingData{
		Jobs:           make([]attribution.Job, 0, len(jobs)),
		Outputs:        make([]attribution.Output, 0, len(outputs)),
		Outcomes:       make([]attribution.Outcome, 0, len(outcomes)),
		JobOutputs:     make([]attribution.JobOutputEdge, 0, len(jobOutputs)),
		OutputOutcomes: make([]attribution.OutputOutcomeEdge, 0, len(outputOutcomes)),
	}
	for _, j := range jobs {
		data.Jobs = append(data.Jobs, attribution.Job{
			ID: j.ID, Name: j.Name, Function: j.Function, Done: j.Done, Impact: j.Impact,
		})
	}
	for _, o := range outputs {
		data.Outputs = append(data.Outputs, attribution.Output{
			ID: o.ID, Name: o.Name, Target: o.Target, Unit: o.Unit,
		})
	}
	for _, c := range outcomes {
		data.Outcomes = append(data.Outcomes, attribution.Outcome{
			ID: c.ID, Name: c.Name, TargetValue: c.TargetValue,
			CurrentValue: c.CurrentValue, BeginningValue: c.BeginningValue, Points: c.Points,
		})
	}
	for _, m := range jobOutputs {
		data.JobOutputs = append(data.JobOutputs, attribution.JobOutputEdge{
			JobID: m.JobID, OutputID: m.OutputID, ImpactValue: m.ImpactValue, Target: m.Target,
		})
	}
	for _, m := range outputOutcomes {
		data.OutputOutcomes = append(data.OutputOutcomes, attribution.OutputOutcomeEdge{
			OutputID: m.OutputID, OutcomeID: m.OutcomeID, Impact: m.Impact,
		})
	}

	return data, nil
}

// RecalculateImpacts recomputes the impact scalar for every live job of the
// tenant and writes the results back in one transaction. The per-outcome
// denominators are tenant-global, so any single mapping or job change can
// shift every other job's share; recomputing all of them keeps the cache
// coherent. Re-running against unchanged mappings writes identical values.
func (s *PlanningService) RecalculateImpacts(tenantID string) (int, error) {
	data, err := s.GetMappingData(tenantID)
	if err != nil {
		return 0, err
	}

	scores := attribution.JobImpactScores(*data)
	if len(scores) == 0 {
		return 0, nil
	}

	if err := s.repo.UpdateJobImpacts(tenantID, scores); err != nil {
		return 0, err
	}

	slog.Info("Recalculated job impacts",
		"tenant_id", tenantID,
		"jobs", len(scores),
	)

	return len(scores), nil
}
