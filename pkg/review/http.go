package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/chartreview/pkg/adjudication"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/gateway/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/patients/{id}", h.handleOpenPatient).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}/navigate", h.handleNavigate).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/adjudicate", h.handleAdjudicate).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/event-date", h.handleMarkEventDate).Methods(http.MethodPut)
	r.HandleFunc("/patients/{id}/event-date", h.handleDeleteEventDate).Methods(http.MethodDelete)
	r.HandleFunc("/patients/{id}/annotations/{annotation_id}/comment", h.handleUpdateComment).Methods(http.MethodPut)
	r.HandleFunc("/patients/{id}/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}/state", h.handleReset).Methods(http.MethodDelete)
}

type navigateRequest struct {
	Action string `json:"action"`
}

type eventDateRequest struct {
	EventDate string `json:"event_date"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleOpenPatient(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	view, err := h.service.OpenPatient(withActor(r), patientID)
	if err != nil {
		writeError(w, err, patientID, "failed to open patient")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Action == "" {
		http.Error(w, "action is required", http.StatusBadRequest)
		return
	}
	view, err := h.service.Navigate(withActor(r), patientID, adjudication.ShiftAction(req.Action))
	if err != nil {
		writeError(w, err, patientID, "failed to navigate")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	view, err := h.service.Adjudicate(withActor(r), patientID)
	if err != nil {
		writeError(w, err, patientID, "failed to adjudicate")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleMarkEventDate(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	var req eventDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	eventDate, err := time.Parse(adjudication.DateLayout, req.EventDate)
	if err != nil {
		http.Error(w, "event_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	view, err := h.service.MarkEventDate(withActor(r), patientID, eventDate)
	if err != nil {
		writeError(w, err, patientID, "failed to mark event date")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDeleteEventDate(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	view, err := h.service.DeleteEventDate(withActor(r), patientID)
	if err != nil {
		writeError(w, err, patientID, "failed to delete event date")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	patientID := vars["id"]
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateComment(withActor(r), patientID, vars["annotation_id"], req.Comment); err != nil {
		writeError(w, err, patientID, "failed to update comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	view, err := h.service.Status(withActor(r), patientID)
	if err != nil {
		writeError(w, err, patientID, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	if err := h.service.Reset(withActor(r), patientID); err != nil {
		writeError(w, err, patientID, "failed to reset state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func withActor(r *http.Request) context.Context {
	actor := middleware.Subject(r.Context())
	if actor == "" {
		actor = "system"
	}
	return WithActor(r.Context(), actor)
}

func writeError(w http.ResponseWriter, err error, patientID, message string) {
	status := http.StatusInternalServerError
	switch {
	case adjudication.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrPatientLocked):
		status = http.StatusConflict
	case errors.Is(err, adjudication.ErrNoAnnotations):
		status = http.StatusConflict
	}

	entry := logger.WithPatient(patientID).WithError(err)
	if status == http.StatusInternalServerError {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}
	http.Error(w, message, status)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
