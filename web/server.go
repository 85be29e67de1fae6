// Package web serves a small status API over the detection database plus
// Prometheus metrics, so operators can check the monitor without grepping
// its logs.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/readguard/readguard/database"
	"github.com/readguard/readguard/tracker"
)

type Server struct {
	db         *database.DB
	store      *tracker.Store
	listenAddr string
	log        *logrus.Logger
	startedAt  time.Time
}

func NewServer(db *database.DB, store *tracker.Store, listenAddr string, log *logrus.Logger) *Server {
	return &Server{
		db:         db,
		store:      store,
		listenAddr: listenAddr,
		log:        log,
		startedAt:  time.Now(),
	}
}

// Start serves until the context is cancelled. Blocks.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/detections", s.handleDetections)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    s.listenAddr,
		Handler: mux,
	}

	s.log.WithField("addr", s.listenAddr).Info("starting status server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("status server shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.db.ListDetections(limit)
	if err != nil {
		s.log.WithError(err).Error("failed to list detections")
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*database.DetectionRecord{}
	}

	writeJSON(w, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.db.CountDetections()
	if err != nil {
		s.log.WithError(err).Error("failed to count detections")
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"tracked_threads":  s.store.Len(),
		"state_drops":      s.store.Drops(),
		"total_detections": total,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
