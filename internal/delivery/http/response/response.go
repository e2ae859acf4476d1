package response

import "github.com/user/leadflow-service/internal/entity"

// TaskListResponse wraps the task history, newest first.
type TaskListResponse struct {
	Items []entity.ScrapeTask `json:"items"`
}

// HealthResponse reports the state of each backing dependency.
type HealthResponse struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
