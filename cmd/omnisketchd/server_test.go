package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/tvondra/omnisketch/internal/cache"
	"github.com/tvondra/omnisketch/internal/hostdispatch"
	"github.com/tvondra/omnisketch/internal/obs"
	"github.com/tvondra/omnisketch/internal/store"
)

func newTestServer(t *testing.T) *server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c, err := cache.New(1000)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	_, metrics := obs.InitMetrics(context.Background(), "omnisketchd-test")
	discardLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &server{store: st, cache: c, metrics: metrics, logger: discardLogger}
}

func doJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	rw := httptest.NewRecorder()
	h(rw, req)
	return rw
}

func TestHandleAddRecordCreatesShardOnFirstWrite(t *testing.T) {
	s := newTestServer(t)
	req := recordRequest{
		Columns:    []hostdispatch.Column{{Kind: hostdispatch.KindInt, Int: 1}},
		Epsilon:    0.1,
		Delta:      0.1,
		NumColumns: 1,
	}
	rw := doJSON(t, s.handleAddRecord, req)
	if rw.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rw.Code, rw.Body.String())
	}
}

func TestHandleAddRecordRequiresSizingParamsForNewShard(t *testing.T) {
	s := newTestServer(t)
	req := recordRequest{Columns: []hostdispatch.Column{{Kind: hostdispatch.KindInt, Int: 1}}}
	rw := doJSON(t, s.handleAddRecord, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rw.Code)
	}
}

func TestHandleEstimateEndToEnd(t *testing.T) {
	s := newTestServer(t)

	col := hostdispatch.Column{Kind: hostdispatch.KindString, Str: "alice"}
	addReq := recordRequest{Columns: []hostdispatch.Column{col}, Epsilon: 0.1, Delta: 0.1, NumColumns: 1}
	for i := 0; i < 5; i++ {
		if rw := doJSON(t, s.handleAddRecord, addReq); rw.Code != http.StatusAccepted {
			t.Fatalf("handleAddRecord status = %d", rw.Code)
		}
	}
	if rw := doJSON(t, s.handleFinalize, nil); rw.Code != http.StatusOK {
		t.Fatalf("handleFinalize status = %d: %s", rw.Code, rw.Body.String())
	}

	estReq := estimateRequest{Columns: []hostdispatch.Column{col}}
	rw := doJSON(t, s.handleEstimate, estReq)
	if rw.Code != http.StatusOK {
		t.Fatalf("handleEstimate status = %d: %s", rw.Code, rw.Body.String())
	}
	var resp estimateResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	// Each visited cell holds all 5 records and all 5 IDs, but the estimate
	// scales by the sample capacity (1024 for delta=0.1): 5*5/1024 = 0.
	if resp.Estimate != 0 {
		t.Fatalf("Estimate = %d, want 0", resp.Estimate)
	}
	if resp.Cached {
		t.Fatalf("first query must not be a cache hit")
	}
	// ristretto's Set is processed asynchronously; wait for it to land
	// before asserting the second query is served from cache.
	s.cache.Wait()

	rw2 := doJSON(t, s.handleEstimate, estReq)
	var resp2 estimateResponse
	if err := json.Unmarshal(rw2.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !resp2.Cached {
		t.Fatalf("second identical query should be served from cache")
	}
	if resp2.Estimate != 0 {
		t.Fatalf("cached Estimate = %d, want 0", resp2.Estimate)
	}
}

func TestHandleEstimateMissingShardReturns404(t *testing.T) {
	s := newTestServer(t)
	rw := doJSON(t, s.handleEstimate, estimateRequest{Columns: []hostdispatch.Column{{Kind: hostdispatch.KindInt, Int: 1}}})
	if rw.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rw.Code)
	}
}
