// Package http serves the replay binary's health-check endpoint, adapted
// from the order-book service's HTTP server. It reports coordinator and
// telemetry-sink liveness instead of WebSocket/Redis feed health.
package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

var (
	coordinatorHealthy int32 = 1
	telemetryHealthy   int32 = 1
)

// HealthCheckResponse represents the health check response structure
type HealthCheckResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Coordinator struct {
			Status    string `json:"status"`
			Message   string `json:"message"`
			Timestamp int64  `json:"timestamp"`
		} `json:"coordinator"`
		Telemetry struct {
			Status    string `json:"status"`
			Message   string `json:"message"`
			Timestamp int64  `json:"timestamp"`
		} `json:"telemetry"`
	} `json:"data"`
}

// SetCoordinatorHealthy records whether the replay coordinator is still
// making progress.
func SetCoordinatorHealthy(healthy bool) {
	if healthy {
		atomic.StoreInt32(&coordinatorHealthy, 1)
	} else {
		atomic.StoreInt32(&coordinatorHealthy, 0)
	}
}

// SetTelemetryHealthy records whether the telemetry sink connection is up.
func SetTelemetryHealthy(healthy bool) {
	if healthy {
		atomic.StoreInt32(&telemetryHealthy, 1)
	} else {
		atomic.StoreInt32(&telemetryHealthy, 0)
	}
}

// StartHTTPServer starts the HTTP server in a separate goroutine, closing
// done once it has shut down after stop is closed.
func StartHTTPServer(addr string, done chan struct{}, stop chan struct{}) {
	defer close(done)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	mux.HandleFunc("/health", handleHealthCheck)

	go func() {
		log.Printf("health server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health server error: %v", err)
		}
	}()

	<-stop
	log.Println("shutting down health server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("health server shutdown error: %v", err)
	} else {
		log.Println("health server stopped gracefully")
	}
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    405,
			"message": "method not allowed",
		})
		return
	}

	coordStatus := atomic.LoadInt32(&coordinatorHealthy)
	telStatus := atomic.LoadInt32(&telemetryHealthy)

	response := HealthCheckResponse{
		Code:    200,
		Message: "success",
	}

	if coordStatus == 1 {
		response.Data.Coordinator.Status = "healthy"
		response.Data.Coordinator.Message = "replay coordinator is progressing"
	} else {
		response.Data.Coordinator.Status = "unhealthy"
		response.Data.Coordinator.Message = "replay coordinator has stalled or failed"
		response.Code = 503
	}
	response.Data.Coordinator.Timestamp = time.Now().Unix()

	if telStatus == 1 {
		response.Data.Telemetry.Status = "healthy"
		response.Data.Telemetry.Message = "telemetry sink connection is active"
	} else {
		response.Data.Telemetry.Status = "unhealthy"
		response.Data.Telemetry.Message = "telemetry sink connection failed or closed"
		response.Code = 503
	}
	response.Data.Telemetry.Timestamp = time.Now().Unix()

	if response.Code == 503 {
		response.Message = "service unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.Code)
	json.NewEncoder(w).Encode(response)
}
