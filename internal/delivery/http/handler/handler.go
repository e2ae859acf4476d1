package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/leadflow-service/internal/delivery/http/request"
	"github.com/user/leadflow-service/internal/delivery/http/response"
	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/usecase"
)

const (
	maxBodyBytes  = 1 << 16
	healthTimeout = 2 * time.Second
)

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	taskManager usecase.TaskManager
	checks      map[string]Pinger
}

func NewHandler(taskManager usecase.TaskManager, checks map[string]Pinger) *Handler {
	return &Handler{
		taskManager: taskManager,
		checks:      checks,
	}
}

func (h *Handler) HandleSubmitScrape(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitScrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	task, err := h.taskManager.Submit(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidRequest) {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to submit scrape task", "query", req.Query, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.taskManager.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			h.writeJSONError(w, "Task not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get task status", "task_id", id, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskManager.List(r.Context())
	if err != nil {
		slog.Error("Failed to list tasks", "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []entity.ScrapeTask{}
	}

	h.writeJSON(w, http.StatusOK, response.TaskListResponse{Items: tasks})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := response.HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, dep := range h.checks {
		if err := dep.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "dependency", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
