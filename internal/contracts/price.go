package contracts

import (
	"sort"
	"time"
)

// PriceBar is one daily close of a price series
type PriceBar struct {
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// NormalizeBars returns bars sorted ascending by calendar date with
// non-positive closes dropped. When two bars share a date the later one in
// the input wins. The input slice is not modified.
func NormalizeBars(bars []PriceBar) []PriceBar {
	out := make([]PriceBar, 0, len(bars))
	index := make(map[string]int, len(bars))

	for _, bar := range bars {
		if bar.Close <= 0 {
			continue
		}
		if bar.Volume < 0 {
			bar.Volume = 0
		}
		key := bar.Date.UTC().Format("2006-01-02")
		if i, ok := index[key]; ok {
			out[i] = bar
			continue
		}
		index[key] = len(out)
		out = append(out, bar)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// ContractionZone is a window of a price series whose closing range narrowed
// relative to the previously accepted window
type ContractionZone struct {
	Start int     `json:"start"` // index of first bar, inclusive
	End   int     `json:"end"`   // index of last bar, inclusive
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
}

// Range returns the high-low spread of the zone
func (z ContractionZone) Range() float64 {
	return z.High - z.Low
}

// Grade buckets a quality score
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
)

// QualityAssessment summarizes how strongly a series shows the contraction shape.
// Always derived from price data, never persisted.
type QualityAssessment struct {
	Score           int     `json:"score"` // 0-100
	Grade           Grade   `json:"grade"`
	ContractionRate float64 `json:"contractionRate"` // average shrink, percent
	ZoneCount       int     `json:"zoneCount"`
}
