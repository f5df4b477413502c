package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/combilab/stagealign/coreg"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(tracker *coreg.EntryTracker, config *coreg.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasResults bool      `json:"hasResults"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasResults: tracker.HasResults(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Entry listing endpoint
	mux.HandleFunc("/entries", func(w http.ResponseWriter, r *http.Request) {
		entries := tracker.Entries()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			log.Printf("Error encoding entries: %v", err)
		}
	})

	// Reconciled results for one entry
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		entryID := r.URL.Query().Get("entry")
		if entryID == "" {
			http.Error(w, "Missing entry parameter", http.StatusBadRequest)
			return
		}

		snapshot := tracker.GetSnapshot(entryID)
		if snapshot == nil {
			http.Error(w, "No results for entry", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			log.Printf("Error encoding results for %s: %v", entryID, err)
		}
	})

	// Alignment transform for one entry
	mux.HandleFunc("/alignment", func(w http.ResponseWriter, r *http.Request) {
		entryID := r.URL.Query().Get("entry")
		if entryID == "" {
			http.Error(w, "Missing entry parameter", http.StatusBadRequest)
			return
		}

		alignment := tracker.GetAlignment(entryID)
		if alignment == nil {
			http.Error(w, "No alignment for entry", http.StatusNotFound)
			return
		}

		transform, err := alignment.Transform()
		if err != nil {
			http.Error(w, "Alignment geometry is unusable", http.StatusUnprocessableEntity)
			return
		}
		lowerLeft, err := alignment.LowerLeft()
		if err != nil {
			http.Error(w, "Alignment geometry is unusable", http.StatusUnprocessableEntity)
			return
		}

		payload := struct {
			Entry      string             `json:"entry"`
			Width      float64            `json:"width"`
			Height     float64            `json:"height"`
			UpperLeft  coreg.Point        `json:"upperLeft"`
			LowerRight coreg.Point        `json:"lowerRight"`
			LowerLeft  coreg.Point        `json:"lowerLeft"`
			Transform  coreg.AffineMatrix `json:"transform"`
			Inverse    coreg.AffineMatrix `json:"inverse"` // sample frame back to the stage
		}{
			Entry:      entryID,
			Width:      alignment.Width(),
			Height:     alignment.Height(),
			UpperLeft:  alignment.UpperLeft(),
			LowerRight: alignment.LowerRight(),
			LowerLeft:  lowerLeft,
			Transform:  transform,
			Inverse:    coreg.InvertMatrix(transform),
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("Error encoding alignment for %s: %v", entryID, err)
		}
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}
