package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kitkwok/tightzone/internal/contracts"
)

// ErrNoHistory is returned when the chart endpoint has no usable bars
var ErrNoHistory = errors.New("no price history")

// chartResponse is the response structure of the chart API
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchHistory downloads closing prices for symbol, e.g. rng "6mo", interval "1d"
func (c *Client) FetchHistory(ctx context.Context, symbol, rng, interval string) ([]contracts.PriceBar, error) {
	ticker := contracts.NormalizeSymbol(symbol)
	if ticker == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	params := url.Values{}
	params.Set("interval", interval)
	params.Set("range", rng)
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), params.Encode())

	var payload chartResponse
	if err := c.httpClient.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("download price history for %s: %w", ticker, err)
	}

	bars, err := parseChart(&payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	return bars, nil
}

func parseChart(payload *chartResponse) ([]contracts.PriceBar, error) {
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("chart api error: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, ErrNoHistory
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("quote data missing")
	}
	quote := result.Indicators.Quote[0]

	bars := make([]contracts.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = int64(*quote.Volume[i])
		}
		bars = append(bars, contracts.PriceBar{
			Date:   time.Unix(ts, 0).UTC(),
			Close:  *quote.Close[i],
			Volume: volume,
		})
	}

	bars = contracts.NormalizeBars(bars)
	if len(bars) == 0 {
		return nil, ErrNoHistory
	}
	return bars, nil
}
