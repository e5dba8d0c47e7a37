package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/terra-clan/club-registration/internal/models"
	"github.com/terra-clan/club-registration/internal/registration"
	"github.com/terra-clan/club-registration/internal/storage"
)

// legacyMessage is the plain success body of the single-endpoint API
type legacyMessage struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// legacyError is the plain error body of the single-endpoint API
type legacyError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeLegacy(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func legacyInternal(w http.ResponseWriter, err error) {
	slog.Error("club registration request failed", "error", err)
	writeLegacy(w, http.StatusInternalServerError, legacyError{
		Error:   "Internal server error",
		Details: err.Error(),
	})
}

// handleLegacy dispatches on method plus the query or body "type"
func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		s.legacyGet(w, r)
	case http.MethodPost:
		s.legacyPost(w, r)
	case http.MethodDelete:
		s.legacyDelete(w, r)
	default:
		writeLegacy(w, http.StatusMethodNotAllowed, legacyError{Error: "Method not allowed"})
	}
}

func (s *Server) legacyGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.URL.Query().Get("type") {
	case "assignments":
		list, err := s.service.ListAssignments(ctx)
		if err != nil {
			legacyInternal(w, err)
			return
		}
		if list == nil {
			list = []*models.Assignment{}
		}
		writeLegacy(w, http.StatusOK, map[string]interface{}{"assignments": list})
	case "waitlists":
		list, err := s.service.ListWaitlists(ctx)
		if err != nil {
			legacyInternal(w, err)
			return
		}
		if list == nil {
			list = []*models.Waitlist{}
		}
		writeLegacy(w, http.StatusOK, map[string]interface{}{"waitlists": list})
	default:
		subs, err := s.service.ListSubmissions(ctx)
		if err != nil {
			legacyInternal(w, err)
			return
		}
		if subs == nil {
			subs = []*models.Submission{}
		}
		writeLegacy(w, http.StatusOK, map[string]interface{}{"submissions": subs})
	}
}

func (s *Server) legacyPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid request body", Details: err.Error()})
		return
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid request body", Details: err.Error()})
		return
	}

	if head.Type == "assignment" {
		var req models.OverwriteRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid request body", Details: err.Error()})
			return
		}
		if _, err := s.service.OverwriteAssignments(r.Context(), req.Assignments); err != nil {
			if errors.Is(err, registration.ErrInvalidOverwrite) {
				writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid assignments", Details: err.Error()})
				return
			}
			legacyInternal(w, err)
			return
		}
		writeLegacy(w, http.StatusOK, legacyMessage{Success: true, Message: "Assignments saved"})
		return
	}

	var req models.SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid request body", Details: err.Error()})
		return
	}

	if _, err := s.service.Submit(r.Context(), req); err != nil {
		switch {
		case errors.Is(err, registration.ErrRegistrationClosed):
			writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Registration is closed"})
		case errors.Is(err, registration.ErrInvalidSubmission):
			writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid registration", Details: err.Error()})
		default:
			legacyInternal(w, err)
		}
		return
	}

	writeLegacy(w, http.StatusOK, legacyMessage{Success: true, Message: "Registration submitted successfully"})
}

func (s *Server) legacyDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	switch {
	case q.Get("type") == "assignments":
		if _, err := s.service.ClearAssignments(ctx); err != nil {
			legacyInternal(w, err)
			return
		}
		writeLegacy(w, http.StatusOK, legacyMessage{Success: true, Message: "Assignments cleared"})
	case q.Get("type") == "waitlists":
		if _, err := s.service.ClearWaitlists(ctx); err != nil {
			legacyInternal(w, err)
			return
		}
		writeLegacy(w, http.StatusOK, legacyMessage{Success: true, Message: "Waitlists cleared"})
	case q.Get("type") == "submissions":
		if _, err := s.service.ClearSubmissions(ctx); err != nil {
			legacyInternal(w, err)
			return
		}
		writeLegacy(w, http.StatusOK, legacyMessage{Success: true, Message: "All submissions cleared"})
	case q.Get("studentName") != "" && q.Get("grade") != "":
		grade, err := models.ParseGrade(q.Get("grade"))
		if err != nil {
			writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid delete request"})
			return
		}
		if err := s.service.Delete(ctx, q.Get("studentName"), grade); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeLegacy(w, http.StatusNotFound, legacyError{Error: "Submission not found"})
				return
			}
			legacyInternal(w, err)
			return
		}
		writeLegacy(w, http.StatusOK, legacyMessage{Success: true, Message: "Submission deleted successfully"})
	default:
		writeLegacy(w, http.StatusBadRequest, legacyError{Error: "Invalid delete request"})
	}
}
