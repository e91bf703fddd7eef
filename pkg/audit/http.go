package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/audit/patients/{id}", h.handleListPatientEvents).Methods(http.MethodGet)
}

func (h *Handler) handleListPatientEvents(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	limit := parseLimit(r, 100)
	entries, err := h.service.ListByPatient(r.Context(), patientID, limit)
	if err != nil {
		logger.WithPatient(patientID).WithError(err).Error("failed to list audit events")
		http.Error(w, "failed to list audit events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": entries})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
