package adjudication

import (
	"time"

	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

type ShiftAction string

const (
	ShiftFirst  ShiftAction = "first_anno"
	ShiftLast   ShiftAction = "last_anno"
	ShiftPrev1  ShiftAction = "prev_1"
	ShiftNext1  ShiftAction = "next_1"
	ShiftPrev10 ShiftAction = "prev_10"
	ShiftNext10 ShiftAction = "next_10"
)

// Handler drives the review of one patient's annotations. It holds no
// synchronisation; callers serialise access per patient.
type Handler struct {
	patientID string
	state     State
}

func NewHandler() *Handler {
	return &Handler{state: NewState()}
}

func (h *Handler) PatientID() string {
	return h.patientID
}

// InitPatientData builds a fresh state from raw annotations and any stored
// event date. The returned ids are the duplicates suppressed by the filter.
func (h *Handler) InitPatientData(patientID string, annotations []models.Annotation, hideDuplicates bool, storedEventDate *time.Time, storedAnnotationID string) (State, []string, error) {
	filtered, err := FilterAnnotations(annotations, hideDuplicates)
	if err != nil {
		return State{}, nil, err
	}

	state := NewState()
	state.AnnotationIDs = filtered.AnnotationIDs
	state.ReviewStatuses = filtered.ReviewStatuses
	if storedEventDate != nil {
		d := *storedEventDate
		state.EventDate = &d
	}
	state.EventAnnotationID = storedAnnotationID

	// An event annotation that was itself filtered out is re-pointed at the
	// occurrence that survived.
	if storedAnnotationID != "" && state.IndexOf(storedAnnotationID) < 0 {
		if original, ok := filtered.DuplicateOf[storedAnnotationID]; ok {
			logger.WithPatient(patientID).WithFields(map[string]interface{}{
				"annotation_id": storedAnnotationID,
				"kept_id":       original,
			}).Warn("event annotation was a duplicate, using kept occurrence")
			state.EventAnnotationID = original
		}
	}

	if len(state.AnnotationIDs) > 0 {
		state.CurrentIndex = initialIndex(state, storedEventDate != nil && storedAnnotationID != "")
		if state.CurrentIndex < 0 {
			logger.WithPatient(patientID).WithField("annotation_id", state.EventAnnotationID).
				Warn("event annotation not among annotations, starting at first")
			state.CurrentIndex = 0
		}
	}

	h.patientID = patientID
	h.state = state
	return state.Clone(), filtered.Duplicates, nil
}

// initialIndex prefers the first unreviewed entry, then the event annotation,
// then 0. It returns -1 when the event annotation cannot be located.
func initialIndex(state State, hasStoredEvent bool) int {
	for i, status := range state.ReviewStatuses {
		if status == Unreviewed {
			return i
		}
	}
	if hasStoredEvent {
		return state.IndexOf(state.EventAnnotationID)
	}
	return 0
}

// LoadFromPatientData resumes a persisted session.
func (h *Handler) LoadFromPatientData(patientID string, state State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	h.patientID = patientID
	h.state = state.Clone()
	if len(h.state.AnnotationIDs) == 0 {
		h.state.CurrentIndex = -1
	}
	return nil
}

// PatientData returns a copy of the current state for persistence.
func (h *Handler) PatientData() State {
	return h.state.Clone()
}

func (h *Handler) CurrentAnnotationID() (string, error) {
	if len(h.state.AnnotationIDs) == 0 {
		return "", ErrNoAnnotations
	}
	return h.state.AnnotationIDs[h.state.CurrentIndex], nil
}

func (h *Handler) CurrentIndex() int {
	return h.state.CurrentIndex
}

func (h *Handler) PatientStatus() PatientStatus {
	if len(h.state.AnnotationIDs) == 0 {
		return NoAnnotations
	}
	if h.IsPatientReviewed() {
		if h.state.EventDate != nil {
			return ReviewedWithEvent
		}
		return ReviewedNoEvent
	}
	return UnderReview
}

// IsPatientReviewed reports whether no annotation is left unreviewed.
func (h *Handler) IsPatientReviewed() bool {
	for _, status := range h.state.ReviewStatuses {
		if status == Unreviewed {
			return false
		}
	}
	return true
}

// PerformShift moves the cursor without touching review statuses. Unknown
// actions and moves past either end leave the index clamped.
func (h *Handler) PerformShift(action ShiftAction) {
	if len(h.state.AnnotationIDs) == 0 {
		return
	}
	last := len(h.state.AnnotationIDs) - 1
	idx := h.state.CurrentIndex

	switch action {
	case ShiftFirst:
		idx = 0
	case ShiftLast:
		idx = last
	case ShiftPrev1:
		idx--
	case ShiftNext1:
		idx++
	case ShiftPrev10:
		idx -= 10
	case ShiftNext10:
		idx += 10
	default:
		logger.WithPatient(h.patientID).WithField("action", string(action)).Debug("ignoring unknown shift action")
		return
	}

	h.state.CurrentIndex = clamp(idx, 0, last)
}

// MarkReviewed adjudicates the current annotation.
func (h *Handler) MarkReviewed() error {
	if len(h.state.AnnotationIDs) == 0 {
		return ErrNoAnnotations
	}
	h.adjudicate()
	return nil
}

func (h *Handler) adjudicate() {
	s := &h.state
	cur := s.CurrentIndex
	last := len(s.AnnotationIDs) - 1
	s.ReviewStatuses[cur] = Reviewed

	if h.IsPatientReviewed() {
		s.CurrentIndex = min(cur+1, last)
		return
	}

	for i := cur + 1; i <= last; i++ {
		if s.ReviewStatuses[i] == Unreviewed {
			s.CurrentIndex = i
			return
		}
	}
	for i := 0; i <= cur; i++ {
		if s.ReviewStatuses[i] == Unreviewed {
			s.CurrentIndex = i
			return
		}
	}
}

// MarkEventDate records the patient's event date, skips every still
// unreviewed annotation listed in annotationsAfterEvent and adjudicates the
// current annotation.
func (h *Handler) MarkEventDate(eventDate time.Time, eventAnnotationID string, annotationsAfterEvent []string) error {
	if len(h.state.AnnotationIDs) == 0 {
		return ErrNoAnnotations
	}

	h.state.EventDate = &eventDate
	h.state.EventAnnotationID = eventAnnotationID

	after := make(map[string]struct{}, len(annotationsAfterEvent))
	for _, id := range annotationsAfterEvent {
		after[id] = struct{}{}
	}
	for i, id := range h.state.AnnotationIDs {
		if _, ok := after[id]; ok && h.state.ReviewStatuses[i] == Unreviewed {
			h.state.ReviewStatuses[i] = Skipped
		}
	}

	h.adjudicate()
	return nil
}

// DeleteEventDate clears the event date, reopens every skipped annotation and
// the current one.
func (h *Handler) DeleteEventDate() {
	h.state.EventDate = nil
	h.state.EventAnnotationID = ""
	h.ResetAllSkipped()
	if len(h.state.AnnotationIDs) > 0 {
		h.state.ReviewStatuses[h.state.CurrentIndex] = Unreviewed
	}
}

func (h *Handler) ResetAllSkipped() {
	for i, status := range h.state.ReviewStatuses {
		if status == Skipped {
			h.state.ReviewStatuses[i] = Unreviewed
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
