package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthServer provides health and metrics endpoints
type HealthServer struct {
	port      int
	startTime time.Time
	server    *http.Server
	metrics   *IngestionMetrics
}

// IngestionMetrics tracks real-time ingestion metrics
type IngestionMetrics struct {
	mu                sync.RWMutex
	VouchersProcessed uint64
	ReceiptsProcessed uint64
	ErrorCount        uint64
	LastError         string
	LastErrorTime     time.Time
	LastRunTime       time.Time
}

// HealthResponse is the JSON response for /health
type HealthResponse struct {
	Status            string `json:"status"`
	Uptime            string `json:"uptime"`
	VouchersProcessed uint64 `json:"vouchers_processed"`
	ReceiptsProcessed uint64 `json:"receipts_processed"`
	ErrorCount        uint64 `json:"error_count"`
	LastRunTime       string `json:"last_run_time,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorTime     string `json:"last_error_time,omitempty"`
}

// NewHealthServer creates a new health server
func NewHealthServer(port int) *HealthServer {
	return &HealthServer{
		port:      port,
		startTime: time.Now(),
		metrics:   &IngestionMetrics{},
	}
}

// Start starts the health HTTP server
func (hs *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	hs.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", hs.port),
		Handler: mux,
	}

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Health server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully stops the health server
func (hs *HealthServer) Stop() error {
	if hs.server != nil {
		return hs.server.Close()
	}
	return nil
}

// handleHealth handles /health endpoint
func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	hs.metrics.mu.RLock()
	resp := HealthResponse{
		Status:            "healthy",
		Uptime:            time.Since(hs.startTime).String(),
		VouchersProcessed: hs.metrics.VouchersProcessed,
		ReceiptsProcessed: hs.metrics.ReceiptsProcessed,
		ErrorCount:        hs.metrics.ErrorCount,
	}
	if !hs.metrics.LastRunTime.IsZero() {
		resp.LastRunTime = hs.metrics.LastRunTime.Format(time.RFC3339)
	}
	if hs.metrics.LastError != "" {
		resp.LastError = hs.metrics.LastError
		resp.LastErrorTime = hs.metrics.LastErrorTime.Format(time.RFC3339)
	}
	hs.metrics.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateMetrics records a completed load's voucher and receipt counts
func (hs *HealthServer) UpdateMetrics(vouchers, receipts uint64) {
	hs.metrics.mu.Lock()
	defer hs.metrics.mu.Unlock()

	hs.metrics.VouchersProcessed += vouchers
	hs.metrics.ReceiptsProcessed += receipts
	hs.metrics.LastRunTime = time.Now()
}

// RecordError records an error in metrics
func (hs *HealthServer) RecordError(err error) {
	hs.metrics.mu.Lock()
	defer hs.metrics.mu.Unlock()

	hs.metrics.ErrorCount++
	hs.metrics.LastError = err.Error()
	hs.metrics.LastErrorTime = time.Now()
}
