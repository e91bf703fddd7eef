package adjudication

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

const DateLayout = "2006-01-02"

// AnnotationDetails is everything the review screen shows for the current annotation.
type AnnotationDetails struct {
	PatientID           string               `json:"patient_id"`
	AnnotationID        string               `json:"annotation_id"`
	NoteID              string               `json:"note_id"`
	Position            int                  `json:"position"`
	Total               int                  `json:"total"`
	ReviewStatus        ReviewStatus         `json:"review_status"`
	PatientStatus       PatientStatus        `json:"patient_status"`
	NoteDate            string               `json:"note_date"`
	EventDate           string               `json:"event_date,omitempty"`
	EventAnnotationID   string               `json:"event_annotation_id,omitempty"`
	HighlightedSentence string               `json:"highlighted_sentence"`
	HighlightedNote     string               `json:"highlighted_note"`
	Comment             string               `json:"comment,omitempty"`
	Tags                []string             `json:"tags"`
	Counts              map[ReviewStatus]int `json:"counts"`
}

// AnnotationDetails assembles the display payload without mutating state.
// noteAnnotations are all annotations of the current annotation's note.
// A sentence that cannot be located in the note is shown unhighlighted.
func (h *Handler) AnnotationDetails(current models.Annotation, note models.Note, noteAnnotations []models.Annotation) (AnnotationDetails, error) {
	currentID, err := h.CurrentAnnotationID()
	if err != nil {
		return AnnotationDetails{}, err
	}
	if current.ID != currentID {
		return AnnotationDetails{}, fmt.Errorf("annotation %s is not the current annotation %s: %w", current.ID, currentID, ErrInvalidState)
	}
	if current.NoteID != note.NoteID {
		return AnnotationDetails{}, ValidationError{Record: "note", ID: note.NoteID,
			reason: fmt.Errorf("annotation %s belongs to note %s: %w", current.ID, current.NoteID, ErrMissingField)}
	}

	highlightedNote, err := GetHighlightedText(note, noteAnnotations)
	if err != nil {
		return AnnotationDetails{}, err
	}

	highlightedSentence, err := GetHighlightedSentence(current, note, noteAnnotations)
	if err != nil {
		if !errors.Is(err, ErrSentenceNotFound) {
			return AnnotationDetails{}, err
		}
		logger.WithPatient(h.patientID).WithError(err).Warn("rendering sentence without highlights")
		highlightedSentence = strings.ReplaceAll(html.EscapeString(current.Sentence), "\n", lineBreak)
	}

	tags := make([]string, 0, models.MaxNoteTags)
	for _, tag := range note.Tags {
		if len(tags) == models.MaxNoteTags {
			break
		}
		tags = append(tags, tag)
	}

	details := AnnotationDetails{
		PatientID:           h.patientID,
		AnnotationID:        current.ID,
		NoteID:              note.NoteID,
		Position:            h.state.CurrentIndex + 1,
		Total:               len(h.state.AnnotationIDs),
		ReviewStatus:        h.state.ReviewStatuses[h.state.CurrentIndex],
		PatientStatus:       h.PatientStatus(),
		EventAnnotationID:   h.state.EventAnnotationID,
		HighlightedSentence: highlightedSentence,
		HighlightedNote:     highlightedNote,
		Comment:             current.Comment,
		Tags:                tags,
		Counts:              h.state.StatusCounts(),
	}
	if !note.TextDate.IsZero() {
		details.NoteDate = note.TextDate.Format(DateLayout)
	}
	if h.state.EventDate != nil {
		details.EventDate = h.state.EventDate.Format(DateLayout)
	}

	return details, nil
}
