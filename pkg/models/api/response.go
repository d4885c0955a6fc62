package api

import (
	"time"

	"github.com/iddaa-lens/jobscheduler/pkg/coordination"
	"github.com/iddaa-lens/jobscheduler/pkg/jobs"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	InstanceID string    `json:"instance_id"`
	Store      string    `json:"store"`
	Jobs       int       `json:"jobs"`
}

// JobResponse is one job as seen by this server and, when the
// coordination store is reachable, by the whole cluster
type JobResponse struct {
	jobs.Status
	Cluster *coordination.JobStatus `json:"cluster,omitempty"`
}

// RescheduleRequest is the body of POST /api/jobs/{name}/reschedule
type RescheduleRequest struct {
	Cron string `json:"cron"`
}

// LifecycleResult reports the outcome of a lifecycle request
type LifecycleResult struct {
	Job       string   `json:"job"`
	Operation string   `json:"operation"`
	Instances []string `json:"instances,omitempty"`
}

// Response represents a general API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Message string      `json:"message,omitempty"`
}
