package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobImpactScores(t *testing.T) {
	tests := []struct {
		name     string
		data     MappingData
		expected map[string]float64
	}{
		{
			name:     "empty snapshot",
			data:     MappingData{},
			expected: map[string]float64{},
		},
		{
			name:     "single contributor owns the mission",
			data:     singleJobData(),
			expected: map[string]float64{"j1": 100},
		},
		{
			name:     "weighted split over a partial budget",
			data:     twoJobData(),
			expected: map[string]float64{"j1": 30, "j2": 70},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := JobImpactScores(tt.data)
			require.Len(t, scores, len(tt.expected))
			for id, want := range tt.expected {
				assert.InDelta(t, want, scores[id], 1e-9, "job %s", id)
			}
		})
	}
}

func TestJobImpactScoresUnmappedJobsScoreZero(t *testing.T) {
	data := singleJobData()
	data.Jobs = append(data.Jobs, Job{ID: "j2", Name: "Unmapped"})

	scores := JobImpactScores(data)
	require.Len(t, scores, 2)
	assert.InDelta(t, 100, scores["j1"], 1e-9)
	assert.Equal(t, 0.0, scores["j2"])
}

func TestJobImpactScoresIdempotent(t *testing.T) {
	data := twoJobData()
	assert.Equal(t, JobImpactScores(data), JobImpactScores(data))
}
