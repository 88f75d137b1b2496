package tradingview

import (
	"context"
	"fmt"
	"strings"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/pkg/httputil"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// DefaultBaseURL is the public scanner host
const DefaultBaseURL = "https://scanner.tradingview.com"

// Client runs screener scans
// ⭐ SSOT: screener calls go through this client only
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	market     string
}

// NewClient creates a scanner client for market, e.g. "america"
func NewClient(httpClient *httputil.Client, baseURL, market string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if market == "" {
		market = "america"
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("tradingview"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		market:     market,
	}
}

// Row is one scanner hit keyed by column name
type Row struct {
	Symbol string
	Values map[string]interface{}
}

type scanResponse struct {
	TotalCount int `json:"totalCount"`
	Data       []struct {
		S string        `json:"s"`
		D []interface{} `json:"d"`
	} `json:"data"`
}

// Scan runs q and returns matching rows in scanner order
func (c *Client) Scan(ctx context.Context, q Query) ([]Row, error) {
	payload := BuildPayload(q)
	endpoint := fmt.Sprintf("%s/%s/scan", c.baseURL, c.market)

	resp, err := c.httpClient.PostJSON(ctx, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("scanner request failed: %w", err)
	}

	var raw scanResponse
	if err := httputil.DecodeJSON(resp, &raw); err != nil {
		return nil, fmt.Errorf("scanner response: %w", err)
	}

	rows := parseRows(&raw, payload.Columns)
	c.logger.WithFields(map[string]interface{}{
		"market":      c.market,
		"total_count": raw.TotalCount,
		"returned":    len(rows),
	}).Info("Screener scan completed")

	return rows, nil
}

// parseRows zips each hit's values with the requested columns.
// Missing trailing values become nil.
func parseRows(raw *scanResponse, columns []string) []Row {
	rows := make([]Row, 0, len(raw.Data))
	for _, item := range raw.Data {
		if item.S == "" {
			continue
		}
		values := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if i < len(item.D) {
				values[col] = item.D[i]
			} else {
				values[col] = nil
			}
		}
		rows = append(rows, Row{Symbol: item.S, Values: values})
	}
	return rows
}

// ToCandidate maps a row onto a candidate record without history or news
func (r Row) ToCandidate() contracts.CandidateRecord {
	rec := contracts.CandidateRecord{
		Symbol:       r.Symbol,
		Name:         r.str(ColName),
		Exchange:     r.str(ColExchange),
		Close:        r.num(ColClose),
		Volume:       r.num(ColVolume),
		MarketCap:    r.num(ColMarketCap),
		Beta:         r.num(ColBeta),
		PerfWeek:     r.num(ColPerfWeek),
		PerfMonth:    r.num(ColPerfMonth),
		PerfYear:     r.num(ColPerfYear),
		SMA200:       r.optNum(ColSMA200),
		PE:           r.optNum(ColPE),
		PEG:          r.optNum(ColPEG),
		EPSGrowth:    r.optNum(ColEPSGrowth),
		ROE:          r.optNum(ColROE),
		PriceHistory: []contracts.PriceBar{},
		News:         []contracts.NewsItem{},
	}
	if rec.Name == "" {
		rec.Name = contracts.NormalizeSymbol(r.Symbol)
	}
	if rec.Exchange == "" {
		if i := strings.Index(r.Symbol, ":"); i > 0 {
			rec.Exchange = r.Symbol[:i]
		}
	}
	return rec
}

func (r Row) str(col string) string {
	s, _ := r.Values[col].(string)
	return s
}

func (r Row) num(col string) float64 {
	if v := r.optNum(col); v != nil {
		return *v
	}
	return 0
}

func (r Row) optNum(col string) *float64 {
	switch v := r.Values[col].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}
