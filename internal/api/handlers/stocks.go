package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kitkwok/tightzone/internal/analyzer"
	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// StockHandler serves the aggregate with analytics and news
// ⭐ SSOT: read path of the aggregate over HTTP
type StockHandler struct {
	store     SnapshotReader
	news      NewsAttacher
	refresher Refresher
	segments  int
	logger    *logger.Logger
}

// NewStockHandler creates a new stock handler. news may be nil.
func NewStockHandler(store SnapshotReader, news NewsAttacher, refresher Refresher, segments int, log *logger.Logger) *StockHandler {
	return &StockHandler{
		store:     store,
		news:      news,
		refresher: refresher,
		segments:  segments,
		logger:    log,
	}
}

// StocksResponse is the body of GET /api/stocks
type StocksResponse struct {
	Stocks      []contracts.AnalyzedRecord `json:"stocks"`
	Count       int                        `json:"count"`
	LastUpdated time.Time                  `json:"lastUpdated"`
	Refreshing  bool                       `json:"refreshing"`
}

// List returns every record with fresh analytics and news
// GET /api/stocks
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Current()
	if snap == nil {
		respondNotAvailable(w)
		return
	}

	records := snap.Records
	if h.news != nil {
		records = h.news.Attach(r.Context(), records)
	}

	respondJSON(w, http.StatusOK, StocksResponse{
		Stocks:      analyzer.AnalyzeRecords(records, h.segments),
		Count:       len(records),
		LastUpdated: snap.LastUpdated,
		Refreshing:  h.refresher.Status().Running(),
	})
}

// Get returns one record
// GET /api/stocks/{symbol}
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Current()
	if snap == nil {
		respondNotAvailable(w)
		return
	}

	symbol := mux.Vars(r)["symbol"]
	rec, ok := snap.Find(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, CodeNotFound, "symbol "+contracts.NormalizeSymbol(symbol)+" is not in the current candidate set")
		return
	}

	if h.news != nil {
		rec = h.news.Attach(r.Context(), []contracts.CandidateRecord{rec})[0]
	}
	respondJSON(w, http.StatusOK, analyzer.AnalyzeRecord(rec, h.segments))
}
