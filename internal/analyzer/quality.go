package analyzer

import (
	"math"

	"github.com/kitkwok/tightzone/internal/contracts"
)

const (
	zonePoints    = 10
	maxZonePoints = 40
	rateWeight    = 2
	maxRatePoints = 60
)

// Assess grades a contraction zone sequence.
// score = min(zones*10, 40) + min(avgShrink*2, 60), clamped to [0,100] and rounded.
func Assess(zones []contracts.ContractionZone) contracts.QualityAssessment {
	if len(zones) == 0 {
		return contracts.QualityAssessment{Grade: contracts.GradeC}
	}

	rate := averageContraction(zones)

	score := math.Min(float64(len(zones)*zonePoints), maxZonePoints) +
		math.Min(rate*rateWeight, maxRatePoints)
	score = math.Max(0, math.Min(100, score))

	scoreInt := int(math.Round(score))
	return contracts.QualityAssessment{
		Score:           scoreInt,
		Grade:           GradeFor(scoreInt),
		ContractionRate: rate,
		ZoneCount:       len(zones),
	}
}

// averageContraction is the mean percentage shrink between consecutive zones
func averageContraction(zones []contracts.ContractionZone) float64 {
	if len(zones) < 2 {
		return 0
	}

	var sum float64
	for i := 1; i < len(zones); i++ {
		prev := zones[i-1].Range()
		if prev <= 0 {
			continue
		}
		sum += (prev - zones[i].Range()) / prev * 100
	}
	return sum / float64(len(zones)-1)
}

// GradeFor maps a score to its grade band (inclusive lower bounds)
func GradeFor(score int) contracts.Grade {
	switch {
	case score >= 90:
		return contracts.GradeAPlus
	case score >= 80:
		return contracts.GradeA
	case score >= 70:
		return contracts.GradeBPlus
	case score >= 60:
		return contracts.GradeB
	default:
		return contracts.GradeC
	}
}
