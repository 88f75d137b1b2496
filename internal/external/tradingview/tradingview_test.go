package tradingview

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitkwok/tightzone/pkg/httputil"
	"github.com/kitkwok/tightzone/pkg/logger"
)

func TestBuildPayload_Defaults(t *testing.T) {
	p := BuildPayload(DefaultQuery(100, ""))

	assert.Equal(t, [2]int{0, 100}, p.Range)
	assert.Equal(t, "en", p.Options["lang"])
	assert.Empty(t, p.Symbols.Query.Types)
	assert.NotNil(t, p.Symbols.Tickers)
	assert.Equal(t, DefaultSort, p.Sort)
	assert.Len(t, p.Filter, len(DefaultFilters))
	assert.Contains(t, p.Columns, ColSMA200)
	assert.Contains(t, p.Columns, ColPerfYear)
}

func TestBuildPayload_Exchange(t *testing.T) {
	p := BuildPayload(DefaultQuery(10, "nasdaq"))
	assert.Equal(t, []string{"stock|NASDAQ"}, p.Symbols.Query.Types)

	p = BuildPayload(Query{Limit: -5})
	assert.Equal(t, [2]int{0, 0}, p.Range)
}

func TestBuildPayload_CopiesSlices(t *testing.T) {
	q := DefaultQuery(10, "")
	p := BuildPayload(q)
	p.Filter[0] = Filter{"left": "changed"}

	assert.Equal(t, "close", DefaultFilters[0]["left"])
}

func TestBuildPayload_JSONShape(t *testing.T) {
	raw, err := json.Marshal(BuildPayload(DefaultQuery(5, "NYSE")))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"filter", "options", "symbols", "columns", "sort", "range"} {
		assert.Contains(t, decoded, key)
	}
	sort := decoded["sort"].(map[string]interface{})
	assert.Equal(t, "market_cap_basic", sort["sortBy"])
	assert.Equal(t, "desc", sort["sortOrder"])
}

func TestLoadFilters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filters.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"left":"close","operation":"greater","right":50}]`), 0o644))

	filters, err := LoadFilters(path)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, float64(50), filters[0]["right"])

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"left":`), 0o644))
	_, err = LoadFilters(bad)
	assert.Error(t, err)

	_, err = LoadFilters(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadFilters_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.yml")
	body := `
- left: close
  operation: greater
  right: 50
- left: exchange
  operation: in_range
  right: [NASDAQ, NYSE]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	filters, err := LoadFilters(path)
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, "close", filters[0]["left"])
	assert.EqualValues(t, 50, filters[0]["right"])
	assert.Equal(t, []interface{}{"NASDAQ", "NYSE"}, filters[1]["right"])

	// clauses must still encode for the scanner
	_, err = json.Marshal(BuildPayload(Query{Filters: filters}))
	assert.NoError(t, err)
}

func TestScan(t *testing.T) {
	var gotPath string
	var gotPayload Payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotPayload)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalCount":2,"data":[
			{"s":"NASDAQ:AAPL","d":["AAPL","NASDAQ",190.5,51000000,150.2,2.9e12,60000000,0.9,29.5,1.8,10.2,150.1,1.2,3.4,20.5]},
			{"s":"NYSE:XYZ","d":["XYZ"]},
			{"s":"","d":[]}
		]}`))
	}))
	defer srv.Close()

	httpClient := httputil.New(logger.Nop()).DisableRetry()
	c := NewClient(httpClient, srv.URL, "america", logger.Nop())

	rows, err := c.Scan(context.Background(), DefaultQuery(2, ""))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "/america/scan", gotPath)
	assert.Equal(t, [2]int{0, 2}, gotPayload.Range)

	aapl := rows[0].ToCandidate()
	assert.Equal(t, "NASDAQ:AAPL", aapl.Symbol)
	assert.Equal(t, "AAPL", aapl.Name)
	assert.Equal(t, 190.5, aapl.Close)
	assert.Equal(t, 2.9e12, aapl.MarketCap)
	assert.Equal(t, 20.5, aapl.PerfYear)
	require.NotNil(t, aapl.SMA200)
	assert.Equal(t, 150.2, *aapl.SMA200)
	require.NotNil(t, aapl.PEG)
	assert.Equal(t, 1.8, *aapl.PEG)
	assert.NotNil(t, aapl.PriceHistory)
	assert.NotNil(t, aapl.News)

	xyz := rows[1].ToCandidate()
	assert.Equal(t, "NYSE", xyz.Exchange)
	assert.Zero(t, xyz.Close)
	assert.Nil(t, xyz.SMA200)
}

func TestScan_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(httputil.New(logger.Nop()).DisableRetry(), srv.URL, "", logger.Nop())
	_, err := c.Scan(context.Background(), DefaultQuery(1, ""))
	require.Error(t, err)

	var statusErr *httputil.StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}
