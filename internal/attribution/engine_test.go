package attribution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleJobData() MappingData {
	return MappingData{
		Jobs:     []Job{{ID: "j1", Name: "Ship onboarding flow"}},
		Outputs:  []Output{{ID: "o1", Name: "Activation rate", Target: 80}},
		Outcomes: []Outcome{{ID: "c1", Name: "Grow active users", Points: 100}},
		JobOutputs: []JobOutputEdge{
			{JobID: "j1", OutputID: "o1", ImpactValue: 50, Target: 80},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 100},
		},
	}
}

func twoJobData() MappingData {
	return MappingData{
		Jobs: []Job{
			{ID: "j1", Name: "Rewrite docs"},
			{ID: "j2", Name: "Launch referrals"},
		},
		Outputs:  []Output{{ID: "o1", Name: "Signups"}},
		Outcomes: []Outcome{{ID: "c1", Name: "Revenue", Points: 50}},
		JobOutputs: []JobOutputEdge{
			{JobID: "j1", OutputID: "o1", ImpactValue: 30},
			{JobID: "j2", OutputID: "o1", ImpactValue: 70},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 100},
		},
	}
}

func TestJobOutcomeBreakdownsSingleContributor(t *testing.T) {
	results := JobOutcomeBreakdowns(singleJobData(), Options{})

	require.Len(t, results, 1)
	b := results[0]
	assert.Equal(t, "j1", b.ID)
	require.Len(t, b.Segments, 1)
	assert.Equal(t, "Grow active users", b.Segments[0].Key)
	assert.InDelta(t, 100, b.Segments[0].Percentage, 1e-9)
	assert.InDelta(t, 100, b.TotalImpact, 1e-9)
}

func TestJobOutcomeBreakdownsWeightedSplit(t *testing.T) {
	// Two jobs feed one outcome worth 50 of 50 total points. Shares follow
	// edge weight; totals normalize by the observed point budget, so each
	// job's mission share equals its outcome share.
	results := JobOutcomeBreakdowns(twoJobData(), Options{})

	require.Len(t, results, 2)
	byID := map[string]Breakdown{}
	for _, b := range results {
		byID[b.ID] = b
	}

	require.Len(t, byID["j1"].Segments, 1)
	assert.InDelta(t, 30, byID["j1"].Segments[0].Percentage, 1e-9)
	assert.InDelta(t, 70, byID["j2"].Segments[0].Percentage, 1e-9)
	assert.InDelta(t, 30, byID["j1"].TotalImpact, 1e-9)
	assert.InDelta(t, 70, byID["j2"].TotalImpact, 1e-9)

	// Default order is high to low.
	assert.Equal(t, "j2", results[0].ID)
	assert.Equal(t, "j1", results[1].ID)
}

func TestJobOutcomeBreakdownsSortAscending(t *testing.T) {
	results := JobOutcomeBreakdowns(twoJobData(), Options{Sort: SortLowToHigh})

	require.Len(t, results, 2)
	assert.Equal(t, "j1", results[0].ID)
	assert.Equal(t, "j2", results[1].ID)
}

func TestJobOutcomeBreakdownsNormalizationBound(t *testing.T) {
	// P1: with a full 100-point budget every total lands in [0, 100].
	data := MappingData{
		Jobs: []Job{
			{ID: "j1", Name: "A"}, {ID: "j2", Name: "B"}, {ID: "j3", Name: "C"},
		},
		Outputs: []Output{
			{ID: "o1", Name: "O1"}, {ID: "o2", Name: "O2"},
		},
		Outcomes: []Outcome{
			{ID: "c1", Name: "C1", Points: 60},
			{ID: "c2", Name: "C2", Points: 40},
		},
		JobOutputs: []JobOutputEdge{
			{JobID: "j1", OutputID: "o1", ImpactValue: 10},
			{JobID: "j2", OutputID: "o1", ImpactValue: 25},
			{JobID: "j2", OutputID: "o2", ImpactValue: 5},
			{JobID: "j3", OutputID: "o2", ImpactValue: 40},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 70},
			{OutputID: "o1", OutcomeID: "c2", Impact: 30},
			{OutputID: "o2", OutcomeID: "c2", Impact: 100},
		},
	}

	results := JobOutcomeBreakdowns(data, Options{})
	require.Len(t, results, 3)

	var totalSum float64
	for _, b := range results {
		assert.GreaterOrEqual(t, b.TotalImpact, 0.0)
		assert.LessOrEqual(t, b.TotalImpact, 100.0)
		totalSum += b.TotalImpact

		// P2: every outcome here is contested, so each bar's segments stay
		// within 100. A sole contributor fanning out to several outcomes can
		// exceed it; see TestJobOutcomeBreakdownsSoleContributorFanOut.
		var segSum float64
		for _, s := range b.Segments {
			segSum += s.Percentage
		}
		assert.LessOrEqual(t, segSum, 100.0+1e-6)
	}

	// Every outcome is fully contested, so the jobs jointly account for
	// the whole mission.
	assert.InDelta(t, 100, totalSum, 1e-6)
}

func TestJobOutcomeBreakdownsSoleContributorFanOut(t *testing.T) {
	// A job that alone feeds two outcomes earns a full segment for each.
	// Segment percentages are shares of one outcome, so only individual
	// segments are bounded by 100; the sum across a bar's segments is not.
	data := MappingData{
		Jobs:    []Job{{ID: "j1", Name: "Do everything"}},
		Outputs: []Output{{ID: "o1", Name: "O1"}, {ID: "o2", Name: "O2"}},
		Outcomes: []Outcome{
			{ID: "c1", Name: "C1", Points: 60},
			{ID: "c2", Name: "C2", Points: 40},
		},
		JobOutputs: []JobOutputEdge{
			{JobID: "j1", OutputID: "o1", ImpactValue: 10},
			{JobID: "j1", OutputID: "o2", ImpactValue: 5},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 100},
			{OutputID: "o2", OutcomeID: "c2", Impact: 100},
		},
	}

	results := JobOutcomeBreakdowns(data, Options{})
	require.Len(t, results, 1)
	b := results[0]
	require.Len(t, b.Segments, 2)

	var segSum float64
	for _, s := range b.Segments {
		assert.InDelta(t, 100, s.Percentage, 1e-9)
		segSum += s.Percentage
	}
	assert.InDelta(t, 200, segSum, 1e-9)

	// The mission total still normalizes against the full point budget.
	assert.InDelta(t, 100, b.TotalImpact, 1e-9)
}

func TestJobOutcomeBreakdownsZeroPoints(t *testing.T) {
	// P4: an all-zero point budget yields zero totals, never NaN or Inf.
	data := twoJobData()
	data.Outcomes[0].Points = 0

	results := JobOutcomeBreakdowns(data, Options{})
	require.Len(t, results, 2)
	for _, b := range results {
		assert.Equal(t, 0.0, b.TotalImpact)
		assert.False(t, math.IsNaN(b.TotalImpact))
		assert.False(t, math.IsInf(b.TotalImpact, 0))
	}
}

func TestJobOutcomeBreakdownsDanglingEdges(t *testing.T) {
	// P6: edges pointing at missing entities contribute nothing.
	data := singleJobData()
	data.JobOutputs = append(data.JobOutputs,
		JobOutputEdge{JobID: "ghost", OutputID: "o1", ImpactValue: 500},
		JobOutputEdge{JobID: "j1", OutputID: "ghost", ImpactValue: 500},
	)
	data.OutputOutcomes = append(data.OutputOutcomes,
		OutputOutcomeEdge{OutputID: "o1", OutcomeID: "ghost", Impact: 100},
		OutputOutcomeEdge{OutputID: "ghost", OutcomeID: "c1", Impact: 100},
	)

	results := JobOutcomeBreakdowns(data, Options{})
	require.Len(t, results, 1)
	assert.InDelta(t, 100, results[0].Segments[0].Percentage, 1e-9)
	assert.InDelta(t, 100, results[0].TotalImpact, 1e-9)
}

func TestJobOutcomeBreakdownsBlankNameDropped(t *testing.T) {
	data := singleJobData()
	data.Outcomes = append(data.Outcomes, Outcome{ID: "c2", Name: "   ", Points: 30})
	data.OutputOutcomes = append(data.OutputOutcomes,
		OutputOutcomeEdge{OutputID: "o1", OutcomeID: "c2", Impact: 50},
	)

	results := JobOutcomeBreakdowns(data, Options{})
	require.Len(t, results, 1)
	require.Len(t, results[0].Segments, 1)
	assert.Equal(t, "Grow active users", results[0].Segments[0].Key)
}

func TestJobOutcomeBreakdownsNameCollisionMerges(t *testing.T) {
	// Two distinct outcomes with the same display name merge under name
	// keying; ID keying keeps them apart.
	data := MappingData{
		Jobs:    []Job{{ID: "j1", Name: "A"}},
		Outputs: []Output{{ID: "o1", Name: "O1"}, {ID: "o2", Name: "O2"}},
		Outcomes: []Outcome{
			{ID: "c1", Name: "Retention", Points: 40},
			{ID: "c2", Name: "Retention", Points: 60},
		},
		JobOutputs: []JobOutputEdge{
			{JobID: "j1", OutputID: "o1", ImpactValue: 10},
			{JobID: "j1", OutputID: "o2", ImpactValue: 10},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 100},
			{OutputID: "o2", OutcomeID: "c2", Impact: 100},
		},
	}

	merged := JobOutcomeBreakdowns(data, Options{})
	require.Len(t, merged, 1)
	assert.Len(t, merged[0].Segments, 1)

	keyed := JobOutcomeBreakdowns(data, Options{KeyOutcomesByID: true})
	require.Len(t, keyed, 1)
	assert.Len(t, keyed[0].Segments, 2)
}

func TestJobOutcomeBreakdownsEmptyInput(t *testing.T) {
	results := JobOutcomeBreakdowns(MappingData{}, Options{})
	assert.Empty(t, results)
}

func TestJobOutcomeBreakdownsIdempotent(t *testing.T) {
	// P3: unchanged input, identical output.
	data := twoJobData()
	first := JobOutcomeBreakdowns(data, Options{})
	second := JobOutcomeBreakdowns(data, Options{})
	assert.Equal(t, first, second)
}

func TestJobOutputBreakdownsEqualSplit(t *testing.T) {
	// P5: segment width ignores edge magnitude. Two jobs contesting one
	// output each get exactly half its slice, 10 vs 1000 notwithstanding.
	data := MappingData{
		Jobs:     []Job{{ID: "j1", Name: "A"}, {ID: "j2", Name: "B"}},
		Outputs:  []Output{{ID: "o1", Name: "Conversion"}},
		Outcomes: []Outcome{{ID: "c1", Name: "Revenue", Points: 100}},
		JobOutputs: []JobOutputEdge{
			{JobID: "j1", OutputID: "o1", ImpactValue: 10},
			{JobID: "j2", OutputID: "o1", ImpactValue: 1000},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 100},
		},
	}

	results := JobOutputBreakdowns(data, Options{})
	require.Len(t, results, 2)
	for _, b := range results {
		require.Len(t, b.Segments, 1)
		assert.Equal(t, "Conversion", b.Segments[0].Key)
		assert.InDelta(t, 50, b.Segments[0].Percentage, 1e-9)
		// The equal-split cascade halves the outcome's points per job.
		assert.InDelta(t, 50, b.TotalImpact, 1e-9)
	}
}

func TestJobOutputBreakdownsCascade(t *testing.T) {
	// Two outputs feed the outcome, two jobs feed the first output and one
	// feeds the second. j1 gets 100/2/2 = 25 of the 100 points; j3 gets
	// 100/2/1 = 50.
	data := MappingData{
		Jobs:     []Job{{ID: "j1", Name: "A"}, {ID: "j2", Name: "B"}, {ID: "j3", Name: "C"}},
		Outputs:  []Output{{ID: "o1", Name: "O1"}, {ID: "o2", Name: "O2"}},
		Outcomes: []Outcome{{ID: "c1", Name: "C1", Points: 100}},
		JobOutputs: []JobOutputEdge{
			{JobID: "j1", OutputID: "o1", ImpactValue: 1},
			{JobID: "j2", OutputID: "o1", ImpactValue: 9},
			{JobID: "j3", OutputID: "o2", ImpactValue: 5},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 60},
			{OutputID: "o2", OutcomeID: "c1", Impact: 40},
		},
	}

	results := JobOutputBreakdowns(data, Options{})
	require.Len(t, results, 3)
	byID := map[string]Breakdown{}
	for _, b := range results {
		byID[b.ID] = b
	}
	assert.InDelta(t, 25, byID["j1"].TotalImpact, 1e-9)
	assert.InDelta(t, 25, byID["j2"].TotalImpact, 1e-9)
	assert.InDelta(t, 50, byID["j3"].TotalImpact, 1e-9)
}

func TestJobOutputBreakdownsExcludesUnmappedJobs(t *testing.T) {
	data := singleJobData()
	data.Jobs = append(data.Jobs, Job{ID: "j2", Name: "Idle"})

	results := JobOutputBreakdowns(data, Options{})
	require.Len(t, results, 1)
	assert.Equal(t, "j1", results[0].ID)
}

func TestOutputOutcomeBreakdowns(t *testing.T) {
	data := MappingData{
		Outputs: []Output{{ID: "o1", Name: "O1"}, {ID: "o2", Name: "O2"}},
		Outcomes: []Outcome{
			{ID: "c1", Name: "C1", Points: 80},
			{ID: "c2", Name: "C2", Points: 20},
		},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 60},
			{OutputID: "o2", OutcomeID: "c1", Impact: 40},
			{OutputID: "o2", OutcomeID: "c2", Impact: 100},
		},
	}

	results := OutputOutcomeBreakdowns(data, Options{})
	require.Len(t, results, 2)
	byID := map[string]Breakdown{}
	for _, b := range results {
		byID[b.ID] = b
	}

	require.Len(t, byID["o1"].Segments, 1)
	assert.InDelta(t, 60, byID["o1"].Segments[0].Percentage, 1e-9)
	require.Len(t, byID["o2"].Segments, 2)
	assert.InDelta(t, 40, byID["o2"].Segments[0].Percentage, 1e-9)
	assert.InDelta(t, 100, byID["o2"].Segments[1].Percentage, 1e-9)

	// Raw mass: o1 = 0.6*80 = 48, o2 = 0.4*80 + 1.0*20 = 52.
	assert.InDelta(t, 48, byID["o1"].TotalImpact, 1e-9)
	assert.InDelta(t, 52, byID["o2"].TotalImpact, 1e-9)
}

func TestOutputOutcomeBreakdownsZeroDenominator(t *testing.T) {
	data := MappingData{
		Outputs:  []Output{{ID: "o1", Name: "O1"}},
		Outcomes: []Outcome{{ID: "c1", Name: "C1", Points: 0}},
		OutputOutcomes: []OutputOutcomeEdge{
			{OutputID: "o1", OutcomeID: "c1", Impact: 0},
		},
	}

	results := OutputOutcomeBreakdowns(data, Options{})
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Segments[0].Percentage)
	assert.Equal(t, 0.0, results[0].TotalImpact)
}

func TestEngineDoesNotMutateInput(t *testing.T) {
	data := twoJobData()
	want := twoJobData()

	JobOutcomeBreakdowns(data, Options{})
	JobOutputBreakdowns(data, Options{})
	OutputOutcomeBreakdowns(data, Options{})
	JobImpactScores(data)

	assert.Equal(t, want, data)
}
