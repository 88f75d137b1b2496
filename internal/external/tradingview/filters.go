package tradingview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Filter is one scanner filter clause. Its schema belongs to the scanner.
type Filter map[string]interface{}

// DefaultFilters is the VCP candidate screen
var DefaultFilters = []Filter{
	// above the 200-day simple moving average
	{"left": "close", "operation": "greater", "right": "SMA200"},
	// no penny stocks
	{"left": "close", "operation": "greater", "right": 12},
	// established names only
	{"left": "market_cap_basic", "operation": "greater", "right": 2_000_000_000},
	// liquidity
	{"left": "average_volume_90d_calc", "operation": "greater", "right": 900_000},
	{"left": "earnings_per_share_diluted_growth_ttm", "operation": "greater", "right": 0},
	{"left": "return_on_equity_ttm", "operation": "greater", "right": 0},
	{"left": "pe_basic_excl_extra_ttm", "operation": "less", "right": 80},
	{"left": "pe_basic_excl_extra_ttm", "operation": "nempty"},
	{"left": "peg_ratio", "operation": "less", "right": 2},
	// lower volatility names
	{"left": "beta_1_year", "operation": "less", "right": 1},
}

// Column names requested from the scanner
const (
	ColName      = "name"
	ColExchange  = "exchange"
	ColClose     = "close"
	ColVolume    = "volume"
	ColMarketCap = "market_cap_basic"
	ColBeta      = "beta_1_year"
	ColPerfWeek  = "Perf.W"
	ColPerfMonth = "Perf.1M"
	ColPerfYear  = "Perf.Y"
	ColSMA200    = "SMA200"
	ColPE        = "pe_basic_excl_extra_ttm"
	ColPEG       = "peg_ratio"
	ColEPSGrowth = "earnings_per_share_diluted_growth_ttm"
	ColROE       = "return_on_equity_ttm"
	ColAvgVolume = "average_volume_90d_calc"
)

// DefaultColumns covers every field of a candidate record
var DefaultColumns = []string{
	ColName,
	ColExchange,
	ColClose,
	ColVolume,
	ColSMA200,
	ColMarketCap,
	ColAvgVolume,
	ColBeta,
	ColPE,
	ColPEG,
	ColEPSGrowth,
	ColROE,
	ColPerfWeek,
	ColPerfMonth,
	ColPerfYear,
}

// Sort orders scanner results
type Sort struct {
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// DefaultSort puts the largest companies first
var DefaultSort = Sort{SortBy: ColMarketCap, SortOrder: "desc"}

// LoadFilters reads a list of filter clauses from a JSON file, or YAML
// when the extension is .yaml or .yml
func LoadFilters(path string) ([]Filter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filters: %w", err)
	}

	var filters []Filter
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(bytes.NewReader(raw)).Decode(&filters)
	default:
		err = json.Unmarshal(raw, &filters)
	}
	if err != nil {
		return nil, fmt.Errorf("parse filters %s: %w", path, err)
	}
	return filters, nil
}
