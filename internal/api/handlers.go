package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/club-registration/internal/health"
	"github.com/terra-clan/club-registration/internal/models"
	"github.com/terra-clan/club-registration/internal/registration"
	"github.com/terra-clan/club-registration/internal/storage"
)

// maxBodyBytes bounds request bodies; an overwrite of every roster fits easily
const maxBodyBytes = 1 << 20

// apiResponse is the standard API response wrapper
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

// apiError represents an API error
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps service errors onto status codes
func respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, registration.ErrRegistrationClosed):
		respondError(w, http.StatusBadRequest, "registration_closed", "registration is closed")
	case errors.Is(err, registration.ErrInvalidSubmission), errors.Is(err, registration.ErrInvalidOverwrite):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "submission not found")
	default:
		slog.Error("failed to "+action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.health.CheckAll(r.Context())

	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	if !health.Healthy(results) {
		slog.Warn("readiness check failed", "checks", checks)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "dependencies unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Catalog handlers

func (s *Server) handleListClubs(w http.ResponseWriter, r *http.Request) {
	cat := s.service.Catalog()

	var clubs []models.Club
	if raw := r.URL.Query().Get("grade"); raw != "" {
		grade, err := models.ParseGrade(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", "grade must be a number")
			return
		}
		clubs = cat.ClubsForGrade(grade)
	} else {
		clubs = cat.AllClubs()
	}
	if clubs == nil {
		clubs = []models.Club{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"clubs": clubs,
		"total": len(clubs),
	})
}

// Submission handlers

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.service.ListSubmissions(r.Context())
	if err != nil {
		respondServiceError(w, err, "list submissions")
		return
	}
	if subs == nil {
		subs = []*models.Submission{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": subs,
		"total":       len(subs),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sub, err := s.service.Submit(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "record submission")
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	grade, err := models.ParseGrade(chi.URLParam(r, "grade"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "grade must be a number")
		return
	}

	name := chi.URLParam(r, "studentName")
	if name == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "student name is required")
		return
	}

	if err := s.service.Delete(r.Context(), name, grade); err != nil {
		respondServiceError(w, err, "delete submission")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "submission deleted",
	})
}

func (s *Server) handleClearSubmissions(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.ClearSubmissions(r.Context())
	if err != nil {
		respondServiceError(w, err, "clear submissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "submissions cleared",
		"deleted": n,
	})
}

// Assignment handlers

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListAssignments(r.Context())
	if err != nil {
		respondServiceError(w, err, "list assignments")
		return
	}
	if list == nil {
		list = []*models.Assignment{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assignments": list,
		"total":       len(list),
	})
}

func (s *Server) handleOverwriteAssignments(w http.ResponseWriter, r *http.Request) {
	var req models.OverwriteRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	list, err := s.service.OverwriteAssignments(r.Context(), req.Assignments)
	if err != nil {
		respondServiceError(w, err, "overwrite assignments")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assignments": list,
		"total":       len(list),
	})
}

func (s *Server) handleClearAssignments(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.ClearAssignments(r.Context())
	if err != nil {
		respondServiceError(w, err, "clear assignments")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "assignments cleared",
		"deleted": n,
	})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	out := s.service.Recompute(r.Context())
	if out.Status == registration.StatusFailed {
		respondJSON(w, http.StatusInternalServerError, out)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// Waitlist handlers

func (s *Server) handleListWaitlists(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListWaitlists(r.Context())
	if err != nil {
		respondServiceError(w, err, "list waitlists")
		return
	}
	if list == nil {
		list = []*models.Waitlist{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"waitlists": list,
		"total":     len(list),
	})
}

func (s *Server) handleClearWaitlists(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.ClearWaitlists(r.Context())
	if err != nil {
		respondServiceError(w, err, "clear waitlists")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "waitlists cleared",
		"deleted": n,
	})
}

// Notification handlers

func (s *Server) handleSendResults(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.SendResults(r.Context())
	if err != nil {
		respondServiceError(w, err, "send results")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
