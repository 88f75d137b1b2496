package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kitkwok/tightzone/internal/contracts"
)

type searchResponse struct {
	News []searchNewsItem `json:"news"`
}

type searchNewsItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Publisher   string `json:"publisher"`
	Summary     string `json:"summary"`
	PublishTime *int64 `json:"providerPublishTime"`
	Provider    *struct {
		DisplayName string `json:"displayName"`
	} `json:"provider"`
}

// FetchNews returns at most limit articles for symbol published within lookback,
// in the order the search endpoint returns them
func (c *Client) FetchNews(ctx context.Context, symbol string, limit int, lookback time.Duration) ([]contracts.NewsItem, error) {
	ticker := contracts.NormalizeSymbol(symbol)
	if ticker == "" || limit <= 0 {
		return []contracts.NewsItem{}, nil
	}

	params := url.Values{}
	params.Set("q", ticker)
	params.Set("lang", "en-US")
	params.Set("region", "US")
	params.Set("quotesCount", "0")
	params.Set("newsCount", strconv.Itoa(limit))

	var payload searchResponse
	endpoint := fmt.Sprintf("%s/v1/finance/search?%s", c.baseURL, params.Encode())
	if err := c.httpClient.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("search news for %s: %w", ticker, err)
	}

	return filterNews(payload.News, c.now().Add(-lookback), limit), nil
}

func filterNews(raw []searchNewsItem, cutoff time.Time, limit int) []contracts.NewsItem {
	items := make([]contracts.NewsItem, 0, limit)
	for _, item := range raw {
		if item.Title == "" || item.Link == "" || item.PublishTime == nil {
			continue
		}

		publishedAt := time.Unix(*item.PublishTime, 0).UTC()
		if publishedAt.Before(cutoff) {
			continue
		}

		publisher := item.Publisher
		if publisher == "" && item.Provider != nil {
			publisher = item.Provider.DisplayName
		}
		if publisher == "" {
			publisher = "Unknown"
		}

		items = append(items, contracts.NewsItem{
			Title:       item.Title,
			URL:         item.Link,
			Publisher:   publisher,
			Summary:     item.Summary,
			PublishedAt: publishedAt,
		})
		if len(items) >= limit {
			break
		}
	}
	return items
}
