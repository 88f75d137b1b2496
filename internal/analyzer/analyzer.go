package analyzer

import "github.com/kitkwok/tightzone/internal/contracts"

// Result is the analytics of one price series
type Result struct {
	Zones   []contracts.ContractionZone
	Quality contracts.QualityAssessment
}

// Analyze runs zone identification and grading over bars.
// It has no side effects; equal inputs always give equal results.
func Analyze(bars []contracts.PriceBar, k int) Result {
	zones := IdentifyZones(bars, k)
	return Result{
		Zones:   zones,
		Quality: Assess(zones),
	}
}

// AnalyzeRecord attaches freshly computed analytics to a record
func AnalyzeRecord(rec contracts.CandidateRecord, k int) contracts.AnalyzedRecord {
	res := Analyze(rec.PriceHistory, k)
	return contracts.AnalyzedRecord{
		CandidateRecord: rec,
		Zones:           res.Zones,
		Quality:         res.Quality,
	}
}

// AnalyzeRecords analyzes every record, keeping input order
func AnalyzeRecords(records []contracts.CandidateRecord, k int) []contracts.AnalyzedRecord {
	out := make([]contracts.AnalyzedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, AnalyzeRecord(rec, k))
	}
	return out
}
