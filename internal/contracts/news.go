package contracts

import (
	"strings"
	"time"
)

// NewsItem is a single article attached to a candidate
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Publisher   string    `json:"publisher"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// PublishedSince reports whether the item was published at or after cutoff
func (n NewsItem) PublishedSince(cutoff time.Time) bool {
	return !n.PublishedAt.Before(cutoff)
}

// NormalizeSymbol strips an exchange prefix ("NASDAQ:AAPL" -> "AAPL")
// and upper-cases the ticker
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if i := strings.LastIndex(symbol, ":"); i >= 0 {
		symbol = symbol[i+1:]
	}
	return strings.ToUpper(strings.TrimSpace(symbol))
}
