package tagger

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/notes", h.handleIngestNote).Methods(http.MethodPost)
	r.HandleFunc("/notes/preview", h.handlePreview).Methods(http.MethodPost)
}

func (h *Handler) handleIngestNote(w http.ResponseWriter, r *http.Request) {
	var note models.Note
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if note.NoteID == "" || note.PatientID == "" || note.TextDate.IsZero() {
		http.Error(w, "note_id, patient_id and text_date are required", http.StatusBadRequest)
		return
	}
	count, err := h.service.TagNote(r.Context(), note)
	if err != nil {
		logger.WithPatient(note.PatientID).WithError(err).Error("failed to tag note")
		http.Error(w, "failed to tag note", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"note_id": note.NoteID, "annotations": count})
}

// handlePreview tags without storing, for tuning pattern sets.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var note models.Note
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	annotations := h.service.tagger.Tag(note)
	if annotations == nil {
		annotations = []models.Annotation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": annotations})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
