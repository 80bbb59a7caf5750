// Package server exposes the worker's status surface: health, recent
// job outcomes, and a live result stream over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"platesolver/internal/metadb"
	"platesolver/internal/pipeline"
)

// ResultFeed is the live stream of job results; the pipeline Worker
// satisfies it.
type ResultFeed interface {
	Subscribe() (<-chan pipeline.Result, func())
}

// ResultHistory serves recorded job outcomes; the metadata store
// satisfies it.
type ResultHistory interface {
	RecentResults(limit int) ([]metadb.JobResult, error)
}

// Server carries the handler dependencies.
type Server struct {
	feed     ResultFeed
	history  ResultHistory
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// Serve runs the status server until ctx is cancelled.
func Serve(ctx context.Context, addr string, feed ResultFeed, history ResultHistory, log *slog.Logger) error {
	s := &Server{feed: feed, history: history, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/jobs", s.handleJobs).Methods("GET")
	r.HandleFunc("/ws", s.handleWS).Methods("GET")

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("status server listening", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	results, err := s.history.RecentResults(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	results, unsub := s.feed.Subscribe()
	defer unsub()

	for res := range results {
		payload := map[string]any{
			"object_key":   res.ObjectKey,
			"status":       string(res.Status),
			"source_count": res.SourceCount,
			"stamp_count":  res.StampCount,
			"duration_ms":  res.Duration.Milliseconds(),
		}
		if err := conn.WriteJSON(payload); err != nil {
			return
		}
	}
}
