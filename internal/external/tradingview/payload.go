package tradingview

import "strings"

// Payload is the scanner request body
type Payload struct {
	Filter  []Filter       `json:"filter"`
	Options map[string]any `json:"options"`
	Symbols PayloadSymbols `json:"symbols"`
	Columns []string       `json:"columns"`
	Sort    Sort           `json:"sort"`
	Range   [2]int         `json:"range"`
}

// PayloadSymbols restricts the scanned universe
type PayloadSymbols struct {
	Query   PayloadQuery `json:"query"`
	Tickers []string     `json:"tickers"`
}

// PayloadQuery lists instrument types, e.g. "stock|NASDAQ"
type PayloadQuery struct {
	Types []string `json:"types"`
}

// Query describes one scan
type Query struct {
	Filters  []Filter
	Columns  []string
	Sort     Sort
	Limit    int
	Exchange string
}

// DefaultQuery is the VCP screen with limit rows
func DefaultQuery(limit int, exchange string) Query {
	return Query{
		Filters:  DefaultFilters,
		Columns:  DefaultColumns,
		Sort:     DefaultSort,
		Limit:    limit,
		Exchange: exchange,
	}
}

// BuildPayload constructs the scanner request body for q
func BuildPayload(q Query) Payload {
	limit := q.Limit
	if limit < 0 {
		limit = 0
	}

	filters := make([]Filter, len(q.Filters))
	copy(filters, q.Filters)
	columns := make([]string, len(q.Columns))
	copy(columns, q.Columns)

	p := Payload{
		Filter:  filters,
		Options: map[string]any{"lang": "en"},
		Symbols: PayloadSymbols{
			Query:   PayloadQuery{Types: []string{}},
			Tickers: []string{},
		},
		Columns: columns,
		Sort:    q.Sort,
		Range:   [2]int{0, limit},
	}

	if q.Exchange != "" {
		p.Symbols.Query.Types = []string{"stock|" + strings.ToUpper(q.Exchange)}
	}
	return p
}
