// Package health provides health check functionality for API components.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Pinger is an interface for components that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs health checks against the backing store.
type Checker struct {
	pinger    Pinger
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewChecker creates a new health checker.
func NewChecker(pinger Pinger, version string) *Checker {
	return &Checker{
		pinger:    pinger,
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// Check runs the health check and returns the aggregate response.
func (c *Checker) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := Response{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentStatus),
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}

	db := ComponentStatus{Status: StatusHealthy}
	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			db = ComponentStatus{Status: StatusUnhealthy, Message: err.Error()}
			resp.Status = StatusUnhealthy
		}
	}
	resp.Components["database"] = db

	return resp
}

// Handler returns an http.HandlerFunc serving the health check.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := c.Check(r.Context())

		status := http.StatusOK
		if resp.Status != StatusHealthy {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
}
