// Package chart shapes attribution breakdowns for stacked-bar rendering.
// It is pure formatting: sorting, color assignment, and offsets. No
// attribution math happens here.
package chart

import (
	"github.com/compassplan/compass/internal/attribution"
)

// Palette is the cyclic segment color order used by the web client. Colors
// repeat when a bar has more segments than the palette.
var Palette = []string{
	"#4F46E5", // indigo
	"#059669", // emerald
	"#D97706", // amber
	"#DC2626", // red
	"#0891B2", // cyan
	"#7C3AED", // violet
	"#DB2777", // pink
	"#65A30D", // lime
}

// BarSegment is one rendered slice of a stacked bar.
type BarSegment struct {
	Label      string  `json:"label"`
	Percentage float64 `json:"percentage"`
	Left       float64 `json:"left"`
	ColorIndex int     `json:"color_index"`
	Color      string  `json:"color"`
}

// Bar is one entity's rendered stacked bar.
type Bar struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	TotalImpact float64      `json:"total_impact"`
	Segments    []BarSegment `json:"segments"`
}

// BuildStackedBars converts engine breakdowns into render-ready bars.
// Breakdowns arrive already sorted by the engine; this preserves their
// order, assigns each segment a cyclic color index in display order, and
// computes cumulative left offsets so segment i starts where 0..i-1 end.
func BuildStackedBars(breakdowns []attribution.Breakdown) []Bar {
	bars := make([]Bar, 0, len(breakdowns))
	for _, b := range breakdowns {
		bar := Bar{
			ID:          b.ID,
			Name:        b.Name,
			TotalImpact: b.TotalImpact,
			Segments:    make([]BarSegment, 0, len(b.Segments)),
		}
		var left float64
		for i, seg := range b.Segments {
			ci := i % len(Palette)
			bar.Segments = append(bar.Segments, BarSegment{
				Label:      seg.Key,
				Percentage: seg.Percentage,
				Left:       left,
				ColorIndex: ci,
				Color:      Palette[ci],
			})
			left += seg.Percentage
		}
		bars = append(bars, bar)
	}
	return bars
}
