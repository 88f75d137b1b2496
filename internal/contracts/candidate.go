package contracts

import "time"

// CandidateRecord is one screened symbol with its enrichment
// ⭐ SSOT: unit of the aggregate store
type CandidateRecord struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange,omitempty"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	MarketCap float64 `json:"marketCap"`
	Beta      float64 `json:"beta"`
	PerfWeek  float64 `json:"perfWeek"`
	PerfMonth float64 `json:"perfMonth"`
	PerfYear  float64 `json:"perfYear"`

	// Screen inputs, kept for display
	SMA200    *float64 `json:"sma200,omitempty"`
	PE        *float64 `json:"pe,omitempty"`
	PEG       *float64 `json:"peg,omitempty"`
	EPSGrowth *float64 `json:"epsGrowth,omitempty"`
	ROE       *float64 `json:"roe,omitempty"`

	PriceHistory []PriceBar `json:"priceHistory"`
	HistoryError string     `json:"historyError,omitempty"`
	News         []NewsItem `json:"news"`
}

// Snapshot is the full record set of one successful gather
type Snapshot struct {
	Records     []CandidateRecord `json:"records"`
	LastUpdated time.Time         `json:"lastUpdated"`
}

// Count returns the number of records, nil-safe
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Find returns the record for symbol, matching on the normalized ticker
func (s *Snapshot) Find(symbol string) (CandidateRecord, bool) {
	if s == nil {
		return CandidateRecord{}, false
	}
	want := NormalizeSymbol(symbol)
	for _, rec := range s.Records {
		if NormalizeSymbol(rec.Symbol) == want {
			return rec, true
		}
	}
	return CandidateRecord{}, false
}

// AnalyzedRecord is a record with analytics recomputed on read
type AnalyzedRecord struct {
	CandidateRecord
	Zones   []ContractionZone `json:"zones"`
	Quality QualityAssessment `json:"quality"`
}
