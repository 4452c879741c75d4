package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"train-console/internal/messaging"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ReadyDeps are the dependencies probed by the readiness check. A nil
// database or broker is reported as disabled and does not fail readiness.
type ReadyDeps struct {
	BackendURL string
	HTTPClient *http.Client
	DB         *sql.DB
	RabbitMQ   *messaging.RabbitMQ
}

// Ready returns readiness check with dependencies
func Ready(deps ReadyDeps) http.HandlerFunc {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		backendResult := make(chan HealthCheckResult, 1)
		dbResult := make(chan HealthCheckResult, 1)
		rmqResult := make(chan HealthCheckResult, 1)

		go func() {
			backendResult <- checkBackend(ctx, client, deps.BackendURL)
		}()

		go func() {
			dbResult <- checkDatabase(ctx, deps.DB)
		}()

		go func() {
			rmqResult <- checkRabbitMQ(deps.RabbitMQ)
		}()

		checks := map[string]HealthCheckResult{
			"backend":  <-backendResult,
			"database": <-dbResult,
			"rabbitmq": <-rmqResult,
		}

		allHealthy := true
		for _, check := range checks {
			if check.Status == "down" {
				allHealthy = false
			}
		}

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}

		if allHealthy {
			response["status"] = "ready"
			writeJSON(w, http.StatusOK, response)
			return
		}
		response["status"] = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, response)
	}
}

// checkBackend treats any HTTP answer as reachable; only transport
// failures mark the backend down
func checkBackend(ctx context.Context, client *http.Client, backendURL string) HealthCheckResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backendURL, nil)
	if err != nil {
		return HealthCheckResult{Status: "down", Error: err.Error()}
	}

	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}
	resp.Body.Close()

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
		},
	}
}

// checkDatabase verifies database connectivity
func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	if db == nil {
		return HealthCheckResult{Status: "disabled"}
	}

	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	stats := db.Stats()
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

// checkRabbitMQ verifies RabbitMQ connectivity
func checkRabbitMQ(rmq *messaging.RabbitMQ) HealthCheckResult {
	if rmq == nil {
		return HealthCheckResult{Status: "disabled"}
	}

	if rmq.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}

	return HealthCheckResult{Status: "up"}
}
