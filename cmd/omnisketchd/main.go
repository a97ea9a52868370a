// Command omnisketchd is a demonstration host around the sketch core: a
// small HTTP surface for building, storing, and querying shard sketches,
// wiring together internal/store, internal/cache, internal/hostdispatch,
// internal/obs, and internal/schedule. internal/ingest and internal/bus
// are not used by this command.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tvondra/omnisketch/internal/cache"
	"github.com/tvondra/omnisketch/internal/hostdispatch"
	"github.com/tvondra/omnisketch/internal/obs"
	"github.com/tvondra/omnisketch/internal/schedule"
	"github.com/tvondra/omnisketch/internal/store"
	"github.com/tvondra/omnisketch/sketch"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger := obs.InitLogging("omnisketchd")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer := obs.InitTracer(ctx, "omnisketchd")
	defer obs.Flush(context.Background(), shutdownTracer)
	shutdownMetrics, metrics := obs.InitMetrics(ctx, "omnisketchd")
	defer obs.Flush(context.Background(), shutdownMetrics)

	st, err := store.Open(getenv("OMNISKETCH_DATA_DIR", "./data"))
	if err != nil {
		logger.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	estimateCache, err := cache.New(100_000)
	if err != nil {
		logger.Error("constructing cache", "error", err)
		os.Exit(1)
	}

	compactor := schedule.NewCompactor(st)
	if err := compactor.AddSchedule(ctx, getenv("OMNISKETCH_COMPACTION_CRON", "0 */5 * * * *")); err != nil {
		logger.Error("scheduling compaction", "error", err)
		os.Exit(1)
	}
	compactor.Start()
	defer compactor.Stop(context.Background())

	srv := &server{store: st, cache: estimateCache, metrics: metrics, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", srv.handleHealth)

	auth := newAuthMiddleware(getenv("OMNISKETCH_JWT_SECRET", "dev-secret-change-me"))
	r.Route("/v1/shards/{shardID}", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Post("/records", srv.handleAddRecord)
		r.Post("/finalize", srv.handleFinalize)
		r.Post("/estimate", srv.handleEstimate)
	})

	addr := ":" + getenv("OMNISKETCH_PORT", "8080")
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("omnisketchd listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type server struct {
	store   *store.Store
	cache   *cache.EstimateCache
	metrics obs.Metrics
	logger  *slog.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type recordRequest struct {
	Columns []hostdispatch.Column `json:"columns"`
	// Sizing is only consulted if the shard does not already exist.
	Epsilon    float64 `json:"epsilon"`
	Delta      float64 `json:"delta"`
	NumColumns int     `json:"num_columns"`
}

func (s *server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	shardID := chi.URLParam(r, "shardID")
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sk, err := s.store.LoadShard(r.Context(), shardID)
	if err != nil {
		if req.NumColumns <= 0 || req.Epsilon <= 0 || req.Delta <= 0 {
			http.Error(w, "shard does not exist; epsilon/delta/num_columns required to create it", http.StatusBadRequest)
			return
		}
		sk, err = sketch.New(req.Epsilon, req.Delta, req.NumColumns)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := sk.Add(hostdispatch.HashRecord(req.Columns)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.SaveShard(r.Context(), shardID, sk); err != nil {
		obs.WithShard(s.logger, shardID).Error("saving shard", "error", err)
		http.Error(w, "failed to persist shard", http.StatusInternalServerError)
		return
	}
	s.metrics.AddsTotal.Add(r.Context(), 1)
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	shardID := chi.URLParam(r, "shardID")
	sk, err := s.store.LoadShard(r.Context(), shardID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	sk.Finalize()
	if err := s.store.SaveShard(r.Context(), shardID, sk); err != nil {
		http.Error(w, "failed to persist shard", http.StatusInternalServerError)
		return
	}
	s.metrics.FinalizesTotal.Add(r.Context(), 1)
	w.WriteHeader(http.StatusOK)
}

type estimateRequest struct {
	Columns []hostdispatch.Column `json:"columns"`
}

type estimateResponse struct {
	Estimate int64 `json:"estimate"`
	Cached   bool  `json:"cached"`
}

func (s *server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	shardID := chi.URLParam(r, "shardID")
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	columnHashes := hostdispatch.HashRecord(req.Columns)

	if cached, ok := s.cache.Get(r.Context(), shardID, columnHashes); ok {
		writeJSON(w, estimateResponse{Estimate: cached, Cached: true})
		return
	}

	sk, err := s.store.LoadShard(r.Context(), shardID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	estimate, err := sk.Estimate(columnHashes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.cache.Set(shardID, columnHashes, estimate, time.Minute)
	s.metrics.EstimatesTotal.Add(r.Context(), 1)
	writeJSON(w, estimateResponse{Estimate: estimate, Cached: false})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
