// Package attribution computes how jobs, outputs, and outcomes share credit
// for a tenant's mission. It is pure: it reads a MappingData snapshot and
// produces breakdowns, never touching storage or mutating its inputs.
//
// Edges that reference a missing job, output, or outcome contribute nothing
// and are skipped rather than reported as errors. Zero denominators resolve
// to zero percentages, never NaN or Inf.
package attribution

import (
	"sort"
	"strings"
)

// JobOutcomeBreakdowns computes, for every job, its percentage contribution
// to each outcome it reaches through its outputs, weighted by edge impact.
//
// A job's share of one outcome is its accumulated impactValue×impact mass
// over the total mass reaching that outcome. Its TotalImpact is the sum of
// those shares weighted by each outcome's mission points, normalized by the
// tenant's full point budget. Jobs that reach no outcome are excluded.
// Outcomes with blank names are dropped from this view entirely.
func JobOutcomeBreakdowns(data MappingData, opts Options) []Breakdown {
	idx := buildIndex(data)

	totalByOutcome := make(map[string]float64)
	contribs := make(map[string]map[string]float64)
	keyOrder := make(map[string][]string)

	for _, je := range data.JobOutputs {
		if _, ok := idx.jobs[je.JobID]; !ok {
			continue
		}
		if _, ok := idx.outputs[je.OutputID]; !ok {
			continue
		}
		for _, oe := range idx.outcomeEdges[je.OutputID] {
			outcome := idx.outcomes[oe.OutcomeID]
			key := idx.outcomeKey(outcome, opts)
			if key == "" {
				continue
			}
			mass := je.ImpactValue * oe.Impact
			totalByOutcome[key] += mass
			if contribs[je.JobID] == nil {
				contribs[je.JobID] = make(map[string]float64)
			}
			if _, seen := contribs[je.JobID][key]; !seen {
				keyOrder[je.JobID] = append(keyOrder[je.JobID], key)
			}
			contribs[je.JobID][key] += mass
		}
	}

	sumPoints := idx.totalPoints()

	results := make([]Breakdown, 0, len(data.Jobs))
	for _, job := range data.Jobs {
		jc := contribs[job.ID]
		if len(jc) == 0 {
			continue
		}
		b := Breakdown{ID: job.ID, Name: job.Name}
		for _, key := range keyOrder[job.ID] {
			pct := safeShare(jc[key], totalByOutcome[key]) * 100
			if pct == 0 {
				continue
			}
			b.Segments = append(b.Segments, Segment{Key: key, Percentage: pct})
			b.TotalImpact += pct / 100 * idx.pointsByKey[key]
		}
		if len(b.Segments) == 0 {
			continue
		}
		b.TotalImpact = safeShare(b.TotalImpact, sumPoints) * 100
		results = append(results, b)
	}

	sortBreakdowns(results, opts.Sort)
	return results
}

// JobOutputBreakdowns computes each job's stacked bar over the outputs it
// maps to. Unlike the outcome view, an output's slice is divided equally
// among the jobs contesting it: a job's segment for an output is
// 100/(number of jobs mapping to that output), regardless of the edge's
// impact value. The mission total follows the same equal-split policy,
// cascading each outcome's points down through the count of outputs feeding
// it and the count of jobs feeding each output.
func JobOutputBreakdowns(data MappingData, opts Options) []Breakdown {
	idx := buildIndex(data)

	jobsPerOutput := make(map[string]int)
	seenJobOutput := make(map[[2]string]bool)
	for _, je := range data.JobOutputs {
		if _, ok := idx.jobs[je.JobID]; !ok {
			continue
		}
		if _, ok := idx.outputs[je.OutputID]; !ok {
			continue
		}
		pair := [2]string{je.JobID, je.OutputID}
		if !seenJobOutput[pair] {
			seenJobOutput[pair] = true
			jobsPerOutput[je.OutputID]++
		}
	}

	outputsPerOutcome := make(map[string]int)
	seenOutputOutcome := make(map[[2]string]bool)
	for _, oe := range data.OutputOutcomes {
		if _, ok := idx.outputs[oe.OutputID]; !ok {
			continue
		}
		if _, ok := idx.outcomes[oe.OutcomeID]; !ok {
			continue
		}
		pair := [2]string{oe.OutputID, oe.OutcomeID}
		if !seenOutputOutcome[pair] {
			seenOutputOutcome[pair] = true
			outputsPerOutcome[oe.OutcomeID]++
		}
	}

	sumPoints := idx.totalPoints()

	edgesByJob := make(map[string][]JobOutputEdge)
	for _, je := range data.JobOutputs {
		if _, ok := idx.jobs[je.JobID]; !ok {
			continue
		}
		if _, ok := idx.outputs[je.OutputID]; !ok {
			continue
		}
		edgesByJob[je.JobID] = append(edgesByJob[je.JobID], je)
	}

	results := make([]Breakdown, 0, len(data.Jobs))
	for _, job := range data.Jobs {
		edges := edgesByJob[job.ID]
		if len(edges) == 0 {
			continue
		}
		b := Breakdown{ID: job.ID, Name: job.Name}
		var raw float64
		for _, je := range edges {
			output := idx.outputs[je.OutputID]
			n := jobsPerOutput[je.OutputID]
			if n == 0 {
				continue
			}
			b.Segments = append(b.Segments, Segment{
				Key:        output.Name,
				Percentage: 100 / float64(n),
			})
			for _, oe := range idx.outcomeEdges[je.OutputID] {
				outcome := idx.outcomes[oe.OutcomeID]
				m := outputsPerOutcome[oe.OutcomeID]
				if m == 0 {
					continue
				}
				raw += outcome.Points / float64(m) / float64(n)
			}
		}
		if len(b.Segments) == 0 {
			continue
		}
		b.TotalImpact = safeShare(raw, sumPoints) * 100
		results = append(results, b)
	}

	sortBreakdowns(results, opts.Sort)
	return results
}

// OutputOutcomeBreakdowns computes each output's stacked bar over the
// outcomes it maps to. A segment is the edge's impact over the total impact
// of all edges targeting that outcome. An output's mission total is its
// points-weighted impact mass normalized against the same mass summed over
// all outputs.
func OutputOutcomeBreakdowns(data MappingData, opts Options) []Breakdown {
	idx := buildIndex(data)

	totalPerOutcome := make(map[string]float64)
	for _, oe := range data.OutputOutcomes {
		if _, ok := idx.outputs[oe.OutputID]; !ok {
			continue
		}
		if _, ok := idx.outcomes[oe.OutcomeID]; !ok {
			continue
		}
		totalPerOutcome[oe.OutcomeID] += oe.Impact
	}

	raws := make(map[string]float64)
	var rawSum float64
	for outputID, edges := range idx.outcomeEdges {
		for _, oe := range edges {
			raws[outputID] += oe.Impact / 100 * idx.outcomes[oe.OutcomeID].Points
		}
		rawSum += raws[outputID]
	}

	results := make([]Breakdown, 0, len(data.Outputs))
	for _, output := range data.Outputs {
		edges := idx.outcomeEdges[output.ID]
		if len(edges) == 0 {
			continue
		}
		b := Breakdown{ID: output.ID, Name: output.Name}
		for _, oe := range edges {
			outcome := idx.outcomes[oe.OutcomeID]
			pct := safeShare(oe.Impact, totalPerOutcome[oe.OutcomeID]) * 100
			b.Segments = append(b.Segments, Segment{Key: outcome.Name, Percentage: pct})
		}
		b.TotalImpact = safeShare(raws[output.ID], rawSum) * 100
		results = append(results, b)
	}

	sortBreakdowns(results, opts.Sort)
	return results
}

// JobImpactScores returns the cached-impact scalar for every job in the
// snapshot, keyed by job ID. The scalar is the job's TotalImpact from the
// outcome view; jobs that reach no outcome score zero. Running it twice on
// the same snapshot yields identical values.
func JobImpactScores(data MappingData) map[string]float64 {
	scores := make(map[string]float64, len(data.Jobs))
	for _, job := range data.Jobs {
		scores[job.ID] = 0
	}
	for _, b := range JobOutcomeBreakdowns(data, Options{}) {
		scores[b.ID] = b.TotalImpact
	}
	return scores
}

type index struct {
	jobs         map[string]Job
	outputs      map[string]Output
	outcomes     map[string]Outcome
	outcomeEdges map[string][]OutputOutcomeEdge
	pointsByKey  map[string]float64
	data         MappingData
}

func buildIndex(data MappingData) *index {
	idx := &index{
		jobs:         make(map[string]Job, len(data.Jobs)),
		outputs:      make(map[string]Output, len(data.Outputs)),
		outcomes:     make(map[string]Outcome, len(data.Outcomes)),
		outcomeEdges: make(map[string][]OutputOutcomeEdge),
		pointsByKey:  make(map[string]float64),
		data:         data,
	}
	for _, j := range data.Jobs {
		idx.jobs[j.ID] = j
	}
	for _, o := range data.Outputs {
		idx.outputs[o.ID] = o
	}
	for _, c := range data.Outcomes {
		idx.outcomes[c.ID] = c
	}
	for _, oe := range data.OutputOutcomes {
		if _, ok := idx.outputs[oe.OutputID]; !ok {
			continue
		}
		if _, ok := idx.outcomes[oe.OutcomeID]; !ok {
			continue
		}
		idx.outcomeEdges[oe.OutputID] = append(idx.outcomeEdges[oe.OutputID], oe)
	}
	return idx
}

// outcomeKey returns the aggregation key for an outcome, or "" if the
// outcome should be dropped (blank display name under name keying). Under
// name keying, the first outcome seen with a given name supplies the points
// for that key; later same-name outcomes merge into it.
func (idx *index) outcomeKey(outcome Outcome, opts Options) string {
	var key string
	if opts.KeyOutcomesByID {
		key = outcome.ID
	} else {
		key = outcome.Name
		if strings.TrimSpace(key) == "" {
			return ""
		}
	}
	if _, ok := idx.pointsByKey[key]; !ok {
		idx.pointsByKey[key] = outcome.Points
	}
	return key
}

func (idx *index) totalPoints() float64 {
	var sum float64
	for _, c := range idx.data.Outcomes {
		sum += c.Points
	}
	return sum
}

// safeShare divides part by total, returning 0 when the denominator is zero.
func safeShare(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total
}

func sortBreakdowns(results []Breakdown, order SortOrder) {
	if order == SortLowToHigh {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].TotalImpact < results[j].TotalImpact
		})
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalImpact > results[j].TotalImpact
	})
}
